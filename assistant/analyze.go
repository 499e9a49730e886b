package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DANIELAGORA/leiberluna/message"
	"github.com/DANIELAGORA/leiberluna/upstream"
)

const analysisPrompt = `Analiza el siguiente documento legal colombiano de tipo "%s":

%s

Proporciona un análisis estructurado que incluya:
1. Resumen ejecutivo
2. Puntos clave identificados
3. Posibles problemas o inconsistencias
4. Nivel de confianza del análisis (0-100)

Responde en formato JSON con las siguientes claves:
- summary: string
- keyPoints: array de strings
- issues: array de strings
- confidence: number (0-100)
`

var (
	fallbackKeyPoints = []string{"Análisis completado", "Revisar contenido manualmente"}
	fallbackIssues    = []string{"Formato de respuesta no estructurado"}
)

// AnalyzeDocument asks the backend for a JSON analysis. Output that does not parse
// as one degrades to a fallback result built from the raw text; only a backend
// failure is an error.
func (s *Service) AnalyzeDocument(ctx context.Context, req *message.AnalyzeDocumentRequest) (*message.AnalysisResult, error) {
	raw, err := s.gen.Generate(ctx, &upstream.Request{
		Model:   orDefault(req.Model, s.cfg.AnalyzeModel),
		Prompt:  fmt.Sprintf(analysisPrompt, req.DocumentType, req.Content),
		Options: s.cfg.Options,
	})
	if err != nil {
		return nil, err
	}

	if result, ok := parseAnalysis(raw); ok {
		return result, nil
	}
	s.log.Warn().Int("output_len", len(raw)).Msg("unstructured analysis output, using fallback")
	return s.fallbackAnalysis(raw), nil
}

func parseAnalysis(raw string) (*message.AnalysisResult, bool) {
	text := stripCodeFence(strings.TrimSpace(raw))
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var result message.AnalysisResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, false
	}
	if result.KeyPoints == nil {
		result.KeyPoints = []string{}
	}
	if result.Issues == nil {
		result.Issues = []string{}
	}
	result.Confidence = clamp(result.Confidence, 0, 100)
	return &result, true
}

func (s *Service) fallbackAnalysis(raw string) *message.AnalysisResult {
	summary := raw
	if runes := []rune(raw); len(runes) > s.cfg.SummaryRunes {
		summary = string(runes[:s.cfg.SummaryRunes])
	}
	return &message.AnalysisResult{
		Summary:    summary + "...",
		KeyPoints:  append([]string(nil), fallbackKeyPoints...),
		Issues:     append([]string(nil), fallbackIssues...),
		Confidence: s.cfg.FallbackConfidence,
	}
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") || len(s) < 6 {
		return s
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 && !strings.Contains(inner[:nl], "{") {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
