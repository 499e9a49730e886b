package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/DANIELAGORA/leiberluna/message"
)

// Methods only the simulated transport answers.
const (
	MethodLegalAnalysis       = "legal_analysis"
	MethodCaseStrategy        = "case_strategy"
	MethodJurisprudenceSearch = "jurisprudence_search"
	MethodDocumentGeneration  = "document_generation"
)

// Capabilities is the fixed table a simulated connection reports.
func Capabilities() []message.Capability {
	return []message.Capability{
		{
			Name:        MethodLegalAnalysis,
			Description: "Análisis especializado de documentos legales colombianos",
			Parameters: map[string]message.TypeHint{
				"document_type": message.TypeString,
				"content":       message.TypeString,
				"focus_areas":   message.TypeArray,
			},
		},
		{
			Name:        MethodCaseStrategy,
			Description: "Generación de estrategias procesales para casos fiscales",
			Parameters: map[string]message.TypeHint{
				"case_type":         message.TypeString,
				"evidence":          message.TypeArray,
				"defendant_profile": message.TypeObject,
			},
		},
		{
			Name:        MethodJurisprudenceSearch,
			Description: "Búsqueda de jurisprudencia relevante",
			Parameters: map[string]message.TypeHint{
				"legal_issue": message.TypeString,
				"court_level": message.TypeString,
				"date_range":  message.TypeObject,
			},
		},
		{
			Name:        MethodDocumentGeneration,
			Description: "Generación de escritos judiciales especializados",
			Parameters: map[string]message.TypeHint{
				"document_type":  message.TypeString,
				"case_data":      message.TypeObject,
				"template_style": message.TypeString,
			},
		},
	}
}

type LegalAnalysis struct {
	AnalysisID       string   `json:"analysis_id"`
	DocumentType     string   `json:"document_type"`
	ConfidenceScore  float64  `json:"confidence_score"`
	KeyFindings      []string `json:"key_findings"`
	LegalIssues      []string `json:"legal_issues"`
	Recommendations  []string `json:"recommendations"`
	RelevantArticles []string `json:"relevant_articles"`
}

type CaseStrategy struct {
	StrategyID         string   `json:"strategy_id"`
	CaseType           string   `json:"case_type"`
	PriorityLevel      string   `json:"priority_level"`
	InvestigationPlan  []string `json:"investigation_plan"`
	EvidencePriorities []string `json:"evidence_priorities"`
	TimelineEstimate   string   `json:"timeline_estimate"`
	SuccessProbability float64  `json:"success_probability"`
}

type Precedent struct {
	Court          string  `json:"court"`
	CaseNumber     string  `json:"case_number"`
	Date           string  `json:"date"`
	Summary        string  `json:"summary"`
	RelevanceScore float64 `json:"relevance_score"`
}

type JurisprudenceSearch struct {
	SearchID     string      `json:"search_id"`
	Query        string      `json:"query"`
	Results      []Precedent `json:"results"`
	TotalResults int         `json:"total_results"`
	SearchTime   string      `json:"search_time"`
}

type DocumentMetadata struct {
	GeneratedAt     string `json:"generated_at"`
	TemplateVersion string `json:"template_version"`
	LegalFramework  string `json:"legal_framework"`
}

type GeneratedDocument struct {
	DocumentID   string           `json:"document_id"`
	DocumentType string           `json:"document_type"`
	Content      string           `json:"content"`
	Metadata     DocumentMetadata `json:"metadata"`
}

var (
	analysisFindings = []string{
		"Documento cumple con requisitos formales del CPP",
		"Identificación clara de elementos probatorios",
		"Coherencia temporal en la narración de hechos",
		"Fundamentos jurídicos apropiados",
	}
	analysisIssues = []string{
		"Verificar cadena de custodia en evidencia física",
		"Confirmar competencia territorial del juzgado",
	}
)

// answer builds the canned response for call. It never returns nil.
func (r *responder) answer(call *message.Envelope) *message.Envelope {
	result, err := r.result(call)
	if err != nil {
		code := message.CodeInvalidParams
		if errors.Is(err, message.ErrUnknownMethod) {
			code = message.CodeMethodNotFound
		}
		return message.NewError(call.ID, code, err.Error())
	}
	resp, err := message.NewResult(call.ID, result)
	if err != nil {
		return message.NewError(call.ID, message.CodeInternal, "encode result: "+err.Error())
	}
	return resp
}

func (r *responder) result(call *message.Envelope) (any, error) {
	now := r.now()
	switch call.Method {
	case MethodLegalAnalysis, MethodCaseStrategy, MethodJurisprudenceSearch, MethodDocumentGeneration:
		return r.legacy(call.Method, looseParams(call.Params), now), nil
	}

	req, err := message.DecodeRequest(call)
	if err != nil {
		return nil, err
	}
	switch q := req.(type) {
	case *message.GenerateRequest:
		return "Respuesta simulada: " + q.Prompt, nil
	case *message.AnalyzeDocumentRequest:
		return &message.AnalysisResult{
			Summary:    summarize(q.Content, 200),
			KeyPoints:  analysisFindings,
			Issues:     analysisIssues,
			Confidence: 85,
		}, nil
	case *message.GenerateDocumentRequest:
		return r.templates.Lookup(q.DocumentType).Render(q.CaseData, now), nil
	case *message.ListCapabilitiesRequest:
		return Capabilities(), nil
	default:
		return nil, fmt.Errorf("%w: %q", message.ErrUnknownMethod, call.Method)
	}
}

func (r *responder) legacy(method string, params map[string]any, now time.Time) any {
	stamp := now.UnixMilli()
	switch method {
	case MethodLegalAnalysis:
		return &LegalAnalysis{
			AnalysisID:      fmt.Sprintf("analysis_%d", stamp),
			DocumentType:    stringParam(params, "document_type", "documento_general"),
			ConfidenceScore: 0.85 + rand.Float64()*0.1,
			KeyFindings:     analysisFindings,
			LegalIssues:     analysisIssues,
			Recommendations: []string{
				"Solicitar peritaje complementario",
				"Ampliar declaración del testigo principal",
			},
			RelevantArticles: []string{
				"Art. 275 CPP - Autenticidad de documentos",
				"Art. 254 CPP - Cadena de custodia",
			},
		}
	case MethodCaseStrategy:
		return &CaseStrategy{
			StrategyID:    fmt.Sprintf("strategy_%d", stamp),
			CaseType:      stringParam(params, "case_type", "delito_economico"),
			PriorityLevel: "alta",
			InvestigationPlan: []string{
				"Solicitar información financiera a entidades bancarias",
				"Realizar inspección judicial en sede de la empresa",
				"Citar a declarar a contador y revisor fiscal",
			},
			EvidencePriorities: []string{
				"Estados financieros de los últimos 3 años",
				"Correspondencia electrónica entre directivos",
				"Registros contables detallados",
			},
			TimelineEstimate:   "4-6 meses",
			SuccessProbability: 0.78,
		}
	case MethodJurisprudenceSearch:
		return &JurisprudenceSearch{
			SearchID: fmt.Sprintf("search_%d", stamp),
			Query:    stringParam(params, "legal_issue", "consulta_general"),
			Results: []Precedent{
				{
					Court:          "Corte Suprema de Justicia",
					CaseNumber:     "SP-2023-00123",
					Date:           "2023-03-15",
					Summary:        "Criterios para valoración de prueba documental en delitos económicos",
					RelevanceScore: 0.92,
				},
				{
					Court:          "Corte Constitucional",
					CaseNumber:     "C-456/2022",
					Date:           "2022-11-20",
					Summary:        "Principio de proporcionalidad en medidas de aseguramiento",
					RelevanceScore: 0.87,
				},
			},
			TotalResults: 15,
			SearchTime:   "0.3s",
		}
	default:
		docType := stringParam(params, "document_type", "auto_apertura")
		caseData, _ := params["case_data"].(map[string]any)
		return &GeneratedDocument{
			DocumentID:   fmt.Sprintf("doc_%d", stamp),
			DocumentType: docType,
			Content:      r.templates.Lookup(docType).Render(caseData, now),
			Metadata: DocumentMetadata{
				GeneratedAt:     now.UTC().Format(time.RFC3339),
				TemplateVersion: "2.1",
				LegalFramework:  "CPP Colombia 2024",
			},
		}
	}
}

// looseParams decodes params as an object, yielding an empty map for anything else.
func looseParams(raw json.RawMessage) map[string]any {
	params := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &params)
	}
	if params == nil {
		params = map[string]any{}
	}
	return params
}

func stringParam(params map[string]any, key, def string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return def
}

func summarize(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
