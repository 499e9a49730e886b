package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxErrorBody = 4096

// Ollama calls the /api/generate endpoint of an Ollama daemon.
type Ollama struct {
	baseURL string
	client  *http.Client
	models  Models
	log     zerolog.Logger
}

type OllamaOption func(*Ollama)

func WithHTTPClient(c *http.Client) OllamaOption {
	return func(o *Ollama) { o.client = c }
}

func WithModels(m Models) OllamaOption {
	return func(o *Ollama) { o.models = m }
}

func WithOllamaLogger(l zerolog.Logger) OllamaOption {
	return func(o *Ollama) { o.log = l }
}

// NewOllama returns a client for the daemon at baseURL, e.g. http://localhost:11434.
func NewOllama(baseURL string, opts ...OllamaOption) *Ollama {
	o := &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
		models:  DefaultModels(),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With().Str("component", "ollama").Logger()
	return o
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	System  string         `json:"system,omitempty"`
	Options map[string]any `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

func (o *Ollama) Generate(ctx context.Context, req *Request) (string, error) {
	options := make(map[string]any, len(req.Options.Extra)+3)
	options["temperature"] = req.Options.Temperature
	options["top_p"] = req.Options.TopP
	options["max_tokens"] = req.Options.MaxTokens
	for k, v := range req.Options.Extra {
		options[k] = v
	}

	payload, err := json.Marshal(ollamaRequest{
		Model:   o.models.Resolve(req.Model),
		Prompt:  req.Prompt,
		System:  req.System,
		Options: options,
	})
	if err != nil {
		return "", fmt.Errorf("encode ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	o.log.Debug().
		Str("model", o.models.Resolve(req.Model)).
		Dur("duration", time.Since(start)).
		Int("response_len", len(out.Response)).
		Msg("generation finished")
	return out.Response, nil
}
