package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Method names of the closed operation set served by the RPC server.
const (
	MethodGenerate         = "generate"
	MethodAnalyzeDocument  = "analyze_document"
	MethodGenerateDocument = "generate_document"
	MethodListCapabilities = "list_capabilities"
)

var (
	ErrUnknownMethod = errors.New("unknown method")
	ErrInvalidParams = errors.New("invalid params")
)

// Request is one of the typed request variants. The set is closed: only the types
// in this package implement it.
type Request interface {
	Method() string
	request()
}

// GenerateRequest asks the upstream service for free text.
// Unrecognized keys in the params object are kept in Options and forwarded as
// generation options.
type GenerateRequest struct {
	Prompt      string         `json:"prompt"`
	Model       string         `json:"model,omitempty"`
	System      string         `json:"system,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	TopP        *float64       `json:"top_p,omitempty"`
	MaxTokens   *int           `json:"max_tokens,omitempty"`
	Options     map[string]any `json:"-"`
}

// AnalyzeDocumentRequest asks for a structured analysis of a legal document.
type AnalyzeDocumentRequest struct {
	Content      string `json:"content"`
	DocumentType string `json:"document_type,omitempty"`
	Model        string `json:"model,omitempty"`
}

// GenerateDocumentRequest asks for a templated legal document.
type GenerateDocumentRequest struct {
	DocumentType string         `json:"document_type,omitempty"`
	CaseData     map[string]any `json:"case_data,omitempty"`
	Model        string         `json:"model,omitempty"`
}

// ListCapabilitiesRequest asks for the server's capability descriptors.
type ListCapabilitiesRequest struct{}

func (*GenerateRequest) Method() string         { return MethodGenerate }
func (*AnalyzeDocumentRequest) Method() string  { return MethodAnalyzeDocument }
func (*GenerateDocumentRequest) Method() string { return MethodGenerateDocument }
func (*ListCapabilitiesRequest) Method() string { return MethodListCapabilities }

func (*GenerateRequest) request()         {}
func (*AnalyzeDocumentRequest) request()  {}
func (*GenerateDocumentRequest) request() {}
func (*ListCapabilitiesRequest) request() {}

var generateKnownKeys = []string{"prompt", "model", "system", "temperature", "top_p", "max_tokens"}

type generateRequestFields GenerateRequest

func (r GenerateRequest) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(generateRequestFields(r))
	if err != nil || len(r.Options) == 0 {
		return base, err
	}
	merged := make(map[string]any, len(r.Options)+len(generateKnownKeys))
	for k, v := range r.Options {
		merged[k] = v
	}
	var fields map[string]any
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (r *GenerateRequest) UnmarshalJSON(data []byte) error {
	var fields generateRequestFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range generateKnownKeys {
		delete(all, k)
	}
	*r = GenerateRequest(fields)
	if len(all) > 0 {
		r.Options = all
	}
	return nil
}

// DecodeRequest maps a Call Envelope onto its typed request variant.
// It returns an error wrapping ErrUnknownMethod or ErrInvalidParams.
func DecodeRequest(env *Envelope) (Request, error) {
	var req Request
	switch env.Method {
	case MethodGenerate:
		req = &GenerateRequest{}
	case MethodAnalyzeDocument:
		req = &AnalyzeDocumentRequest{}
	case MethodGenerateDocument:
		req = &GenerateDocumentRequest{}
	case MethodListCapabilities:
		req = &ListCapabilitiesRequest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, env.Method)
	}

	if len(env.Params) > 0 && string(env.Params) != "null" {
		if err := json.Unmarshal(env.Params, req); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParams, env.Method, err)
		}
	}

	switch r := req.(type) {
	case *GenerateRequest:
		if strings.TrimSpace(r.Prompt) == "" {
			return nil, fmt.Errorf("%w: generate requires a prompt", ErrInvalidParams)
		}
	case *AnalyzeDocumentRequest:
		if strings.TrimSpace(r.Content) == "" {
			return nil, fmt.Errorf("%w: analyze_document requires content", ErrInvalidParams)
		}
	}
	return req, nil
}
