// Package upstream talks to the text-generation backends that answer prompts for the
// RPC server: a local Ollama daemon or any OpenAI-compatible endpoint.
package upstream

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks failures to reach the backend at all, as opposed to the
// backend answering with an error.
var ErrUnavailable = errors.New("upstream: unavailable")

// ErrCircuitOpen is returned without calling the backend while the breaker is open.
// It also matches ErrUnavailable.
var ErrCircuitOpen = errors.New("upstream: circuit open")

// StatusError is a non-success HTTP answer from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether a failure is worth retrying: the backend could not be
// reached, or it answered 429 or 5xx.
func Retryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == 429 || se.StatusCode >= 500
	}
	return false
}

// Options are the sampling parameters forwarded to the backend.
type Options struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	// Extra is forwarded verbatim by backends that accept free-form options.
	Extra map[string]any
}

// IsZero reports whether no sampling parameter is set.
func (o Options) IsZero() bool {
	return o.Temperature == 0 && o.TopP == 0 && o.MaxTokens == 0 && len(o.Extra) == 0
}

// DefaultOptions returns the generation defaults.
func DefaultOptions() Options {
	return Options{Temperature: 0.7, TopP: 0.9, MaxTokens: 2048}
}

// Request is one generation call.
type Request struct {
	Model   string // alias or concrete model name
	Prompt  string
	System  string
	Options Options
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req *Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req *Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req *Request) (string, error) {
	return f(ctx, req)
}
