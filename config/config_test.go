package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3002", cfg.Server.WSAddr)
	assert.Equal(t, ":3001", cfg.Server.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.Client.CallTimeout)
	assert.Equal(t, 5*time.Second, cfg.Client.ReconnectDelay)
	assert.Equal(t, 75.0, cfg.Assistant.FallbackConfidence)
	assert.Equal(t, 200, cfg.Assistant.SummaryRunes)
	assert.Equal(t, "http://localhost:11434", cfg.Upstream.OllamaHost)
	assert.Equal(t, "codellama:7b", cfg.Upstream.Models["codellama"])
	assert.Equal(t, "deepseek-coder:6.7b", cfg.Upstream.Models["deepseek"])
	assert.Empty(t, cfg.Registry.Endpoints)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leiberluna.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  ws_addr: ":4002"
  handler_timeout: 90s
client:
  call_timeout: 45s
  transport: sim
registry:
  endpoints: ["10.0.0.1:2379", "10.0.0.2:2379"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":4002", cfg.Server.WSAddr)
	assert.Equal(t, 90*time.Second, cfg.Server.HandlerTimeout)
	assert.Equal(t, 45*time.Second, cfg.Client.CallTimeout)
	assert.Equal(t, "sim", cfg.Client.Transport)
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, cfg.Registry.Endpoints)
	assert.Equal(t, ":3001", cfg.Server.HTTPAddr)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leiberluna.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  call_timeout: 45s\n"), 0o644))
	t.Setenv("LEIBERLUNA_CLIENT_CALL_TIMEOUT", "12s")
	t.Setenv("LEIBERLUNA_ASSISTANT_FALLBACK_CONFIDENCE", "60")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, cfg.Client.CallTimeout)
	assert.Equal(t, 60.0, cfg.Assistant.FallbackConfidence)
}

func TestLegacyUpstreamEnv(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("MODEL_DEEPSEEK", "deepseek-coder:33b")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:11434", cfg.Upstream.OllamaHost)
	assert.Equal(t, "deepseek-coder:33b", cfg.Upstream.Models["deepseek"])
	assert.Equal(t, "codellama:7b", cfg.Upstream.Models["codellama"])

	t.Setenv("LEIBERLUNA_UPSTREAM_OLLAMA_HOST", "http://preferred:11434")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://preferred:11434", cfg.Upstream.OllamaHost)
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Upstream.Provider = "anthropic"
	cfg.Client.Transport = "carrier-pigeon"
	cfg.Client.Codec = "xml"
	cfg.Assistant.FallbackConfidence = 120
	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"upstream.provider", "client.transport", "client.codec", "fallback_confidence"} {
		assert.Contains(t, err.Error(), want)
	}
}
