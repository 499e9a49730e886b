package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DANIELAGORA/leiberluna/config"
	"github.com/DANIELAGORA/leiberluna/message"
	"github.com/DANIELAGORA/leiberluna/upstream"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LEIBERLUNA_CLIENT_TRANSPORT", "sim")
	t.Setenv("LEIBERLUNA_CLIENT_SIM_LATENCY_MIN", "0s")
	t.Setenv("LEIBERLUNA_CLIENT_SIM_LATENCY_MAX", "0s")
	t.Setenv("LEIBERLUNA_LOG_LEVEL", "error")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCallCommand(t *testing.T) {
	out, err := runCLI(t, "call", "generate", "--params", `{"prompt":"hola"}`)
	require.NoError(t, err)

	var text string
	require.NoError(t, json.Unmarshal([]byte(out), &text))
	assert.Equal(t, "Respuesta simulada: hola", text)
}

func TestCallCommandRemoteError(t *testing.T) {
	_, err := runCLI(t, "call", "delete_case")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-32601")
}

func TestCallCommandBadParams(t *testing.T) {
	_, err := runCLI(t, "call", "generate", "-p", "{not json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--params")
}

func TestCapabilitiesCommand(t *testing.T) {
	out, err := runCLI(t, "capabilities", "--log-level", "warn")
	require.NoError(t, err)

	var caps []message.Capability
	require.NoError(t, json.Unmarshal([]byte(out), &caps))
	assert.Len(t, caps, 4)
	assert.Equal(t, "legal_analysis", caps[0].Name)
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runCLI(t, "capabilities", "--log-level", "shouting")
	assert.Error(t, err)
}

func TestNewGenerator(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	gen, err := newGenerator(cfg.Upstream, upstream.DefaultModels(), zerolog.Nop())
	require.NoError(t, err)
	breaker, ok := gen.(*upstream.Breaker)
	require.True(t, ok)
	assert.Equal(t, "closed", breaker.State())

	cfg.Upstream.Provider = "openai"
	_, err = newGenerator(cfg.Upstream, nil, zerolog.Nop())
	require.NoError(t, err)

	cfg.Upstream.Provider = "llamafile"
	_, err = newGenerator(cfg.Upstream, nil, zerolog.Nop())
	assert.Error(t, err)
}
