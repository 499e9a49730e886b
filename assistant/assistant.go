// Package assistant implements the operations served over RPC: free generation,
// legal document analysis and templated document drafting, all backed by an
// upstream.Generator.
package assistant

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/DANIELAGORA/leiberluna/message"
	"github.com/DANIELAGORA/leiberluna/upstream"
)

// Config holds the tunables of the service. Zero fields take the DefaultConfig value.
type Config struct {
	GenerateModel string
	AnalyzeModel  string
	DocumentModel string

	// FallbackConfidence is reported when the backend's analysis is not valid JSON.
	FallbackConfidence float64
	// SummaryRunes is how much raw backend output the fallback summary keeps.
	SummaryRunes int

	Options   upstream.Options
	Templates Templates
	Location  *time.Location
}

func DefaultConfig() Config {
	return Config{
		GenerateModel:      upstream.AliasCodeLlama,
		AnalyzeModel:       upstream.AliasDeepSeek,
		DocumentModel:      upstream.AliasCodeLlama,
		FallbackConfidence: 75,
		SummaryRunes:       200,
		Options:            upstream.DefaultOptions(),
		Templates:          DefaultTemplates(),
		Location:           time.Local,
	}
}

// Service runs the named operations.
type Service struct {
	gen upstream.Generator
	cfg Config
	log zerolog.Logger
	now func() time.Time
}

func New(gen upstream.Generator, cfg Config, log zerolog.Logger) *Service {
	def := DefaultConfig()
	if cfg.GenerateModel == "" {
		cfg.GenerateModel = def.GenerateModel
	}
	if cfg.AnalyzeModel == "" {
		cfg.AnalyzeModel = def.AnalyzeModel
	}
	if cfg.DocumentModel == "" {
		cfg.DocumentModel = def.DocumentModel
	}
	if cfg.FallbackConfidence == 0 {
		cfg.FallbackConfidence = def.FallbackConfidence
	}
	if cfg.SummaryRunes <= 0 {
		cfg.SummaryRunes = def.SummaryRunes
	}
	if cfg.Options.IsZero() {
		cfg.Options = def.Options
	}
	if cfg.Templates == nil {
		cfg.Templates = def.Templates
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	return &Service{
		gen: gen,
		cfg: cfg,
		log: log.With().Str("component", "assistant").Logger(),
		now: time.Now,
	}
}

// Generate forwards a free prompt. Unset sampling fields take the configured defaults;
// extra params ride along as backend options.
func (s *Service) Generate(ctx context.Context, req *message.GenerateRequest) (string, error) {
	opts := s.cfg.Options
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		opts.TopP = *req.TopP
	}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}
	opts.Extra = req.Options

	return s.gen.Generate(ctx, &upstream.Request{
		Model:   orDefault(req.Model, s.cfg.GenerateModel),
		Prompt:  req.Prompt,
		System:  req.System,
		Options: opts,
	})
}

// Capabilities describes the operations this service answers.
func (s *Service) Capabilities() []message.Capability {
	return []message.Capability{
		{
			Name:        message.MethodGenerate,
			Description: "Genera texto libre a partir de un prompt",
			Parameters: map[string]message.TypeHint{
				"prompt":      message.TypeString,
				"model":       message.TypeString,
				"system":      message.TypeString,
				"temperature": message.TypeNumber,
				"top_p":       message.TypeNumber,
				"max_tokens":  message.TypeNumber,
			},
		},
		{
			Name:        message.MethodAnalyzeDocument,
			Description: "Analiza un documento legal y devuelve resumen, puntos clave y problemas",
			Parameters: map[string]message.TypeHint{
				"content":       message.TypeString,
				"document_type": message.TypeString,
				"model":         message.TypeString,
			},
		},
		{
			Name:        message.MethodGenerateDocument,
			Description: "Redacta un documento legal a partir de una plantilla y los datos del caso",
			Parameters: map[string]message.TypeHint{
				"document_type": message.TypeString,
				"case_data":     message.TypeObject,
				"model":         message.TypeString,
			},
		},
		{
			Name:        message.MethodListCapabilities,
			Description: "Lista las capacidades disponibles",
			Parameters:  map[string]message.TypeHint{},
		},
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
