package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelsResolve(t *testing.T) {
	m := DefaultModels()
	assert.Equal(t, "codellama:7b", m.Resolve(AliasCodeLlama))
	assert.Equal(t, "deepseek-coder:6.7b", m.Resolve(AliasDeepSeek))
	assert.Equal(t, "llama3:8b", m.Resolve("llama3:8b"))
	assert.Equal(t, []string{"codellama", "deepseek"}, m.Aliases())
}

func TestOllamaGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "auto generado", "done": true})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL + "/")
	opts := DefaultOptions()
	opts.Extra = map[string]any{"num_ctx": 4096}
	out, err := o.Generate(context.Background(), &Request{
		Model:   AliasCodeLlama,
		Prompt:  "redacta",
		System:  "eres un fiscal",
		Options: opts,
	})
	require.NoError(t, err)
	assert.Equal(t, "auto generado", out)

	assert.Equal(t, "codellama:7b", got["model"])
	assert.Equal(t, "redacta", got["prompt"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, "eres un fiscal", got["system"])
	options := got["options"].(map[string]any)
	assert.InDelta(t, 0.7, options["temperature"], 1e-9)
	assert.InDelta(t, 0.9, options["top_p"], 1e-9)
	assert.InDelta(t, 2048, options["max_tokens"], 1e-9)
	assert.InDelta(t, 4096, options["num_ctx"], 1e-9)
}

func TestOllamaOmitsEmptySystem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, has := body["system"]
		assert.False(t, has)
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL).Generate(context.Background(), &Request{Model: "x", Prompt: "p", Options: DefaultOptions()})
	require.NoError(t, err)
}

func TestOllamaStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `model "nope" not found`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL).Generate(context.Background(), &Request{Model: "nope", Prompt: "p"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Body, "not found")
	assert.False(t, Retryable(err))
}

func TestOllamaUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllama(url).Generate(context.Background(), &Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, Retryable(err))
}

func TestOllamaContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewOllama(srv.URL).Generate(ctx, &Request{Prompt: "p"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&StatusError{StatusCode: 503}))
	assert.True(t, Retryable(&StatusError{StatusCode: 429}))
	assert.False(t, Retryable(&StatusError{StatusCode: 400}))
	assert.False(t, Retryable(errors.New("boom")))
	assert.False(t, Retryable(errors.Join(ErrCircuitOpen, ErrUnavailable)))
}

func TestOpenAIGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "deepseek-coder:6.7b",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"summary\":\"ok\"}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	o := NewOpenAI("sk-test", srv.URL+"/v1/", nil, zerolog.Nop())
	out, err := o.Generate(context.Background(), &Request{
		Model:   AliasDeepSeek,
		Prompt:  "analiza",
		System:  "sistema",
		Options: DefaultOptions(),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, out)

	assert.Equal(t, "deepseek-coder:6.7b", got["model"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assert.InDelta(t, 0.7, got["temperature"], 1e-9)
}

func TestOpenAIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI("k", srv.URL, nil, zerolog.Nop()).Generate(context.Background(), &Request{Prompt: "p"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	failing := GeneratorFunc(func(ctx context.Context, req *Request) (string, error) {
		calls.Add(1)
		return "", &StatusError{StatusCode: 502, Body: "bad gateway"}
	})
	b := NewBreaker(failing, BreakerSettings{MaxFailures: 3, OpenTimeout: time.Hour}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := b.Generate(context.Background(), &Request{})
		var se *StatusError
		assert.True(t, errors.As(err, &se))
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Generate(context.Background(), &Request{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	bad := GeneratorFunc(func(ctx context.Context, req *Request) (string, error) {
		return "", &StatusError{StatusCode: 400}
	})
	b := NewBreaker(bad, BreakerSettings{MaxFailures: 1}, zerolog.Nop())
	for i := 0; i < 5; i++ {
		_, err := b.Generate(context.Background(), &Request{})
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreakerPassesThrough(t *testing.T) {
	ok := GeneratorFunc(func(ctx context.Context, req *Request) (string, error) { return "hola " + req.Prompt, nil })
	out, err := NewBreaker(ok, BreakerSettings{}, zerolog.Nop()).Generate(context.Background(), &Request{Prompt: "mundo"})
	require.NoError(t, err)
	assert.Equal(t, "hola mundo", out)
}
