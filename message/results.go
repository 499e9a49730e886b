package message

// AnalysisResult is the result shape of analyze_document. Storage layers persist
// these fields as-is.
type AnalysisResult struct {
	Summary    string   `json:"summary"`
	KeyPoints  []string `json:"keyPoints"`
	Issues     []string `json:"issues"`
	Confidence float64  `json:"confidence"` // 0-100
}

// TypeHint names the expected JSON type of a capability parameter.
type TypeHint string

const (
	TypeString  TypeHint = "string"
	TypeNumber  TypeHint = "number"
	TypeBoolean TypeHint = "boolean"
	TypeArray   TypeHint = "array"
	TypeObject  TypeHint = "object"
)

// Capability describes one named operation and its parameter shape.
type Capability struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  map[string]TypeHint `json:"parameters"`
}
