// Package config loads the layered configuration: built-in defaults, then an
// optional config file, then LEIBERLUNA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "LEIBERLUNA"

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Client    ClientConfig    `mapstructure:"client"`
	Registry  RegistryConfig  `mapstructure:"registry"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type ServerConfig struct {
	WSAddr          string        `mapstructure:"ws_addr"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	TCPAddr         string        `mapstructure:"tcp_addr"`
	Codec           string        `mapstructure:"codec"`
	Heartbeat       time.Duration `mapstructure:"heartbeat"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	HandlerTimeout  time.Duration `mapstructure:"handler_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"` // calls per second, 0 disables
	RateBurst       int           `mapstructure:"rate_burst"`
	Retries         int           `mapstructure:"retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	AdvertiseWS     string        `mapstructure:"advertise_ws"`
	AdvertiseTCP    string        `mapstructure:"advertise_tcp"`
	Weight          int           `mapstructure:"weight"`
}

type UpstreamConfig struct {
	Provider      string            `mapstructure:"provider"` // ollama or openai
	OllamaHost    string            `mapstructure:"ollama_host"`
	OpenAIBaseURL string            `mapstructure:"openai_base_url"`
	OpenAIKey     string            `mapstructure:"openai_api_key"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	Models        map[string]string `mapstructure:"models"`
	Breaker       BreakerConfig     `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type AssistantConfig struct {
	GenerateModel      string  `mapstructure:"generate_model"`
	AnalyzeModel       string  `mapstructure:"analyze_model"`
	DocumentModel      string  `mapstructure:"document_model"`
	FallbackConfidence float64 `mapstructure:"fallback_confidence"`
	SummaryRunes       int     `mapstructure:"summary_runes"`
	Temperature        float64 `mapstructure:"temperature"`
	TopP               float64 `mapstructure:"top_p"`
	MaxTokens          int     `mapstructure:"max_tokens"`
	TemplatesFile      string  `mapstructure:"templates_file"`
}

type ClientConfig struct {
	Addr                 string        `mapstructure:"addr"`
	Transport            string        `mapstructure:"transport"` // ws, tcp or sim
	Codec                string        `mapstructure:"codec"`
	CallTimeout          time.Duration `mapstructure:"call_timeout"`
	ConnectTimeout       time.Duration `mapstructure:"connect_timeout"`
	Backoff              string        `mapstructure:"backoff"` // fixed or exponential
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	SimLatencyMin        time.Duration `mapstructure:"sim_latency_min"`
	SimLatencyMax        time.Duration `mapstructure:"sim_latency_max"`
	Balancer             string        `mapstructure:"balancer"`
}

type RegistryConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Service     string        `mapstructure:"service"`
	TTL         int64         `mapstructure:"ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("server.ws_addr", ":3002")
	v.SetDefault("server.http_addr", ":3001")
	v.SetDefault("server.tcp_addr", "")
	v.SetDefault("server.codec", "json")
	v.SetDefault("server.heartbeat", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.handler_timeout", 5*time.Minute)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.retries", 2)
	v.SetDefault("server.retry_delay", 500*time.Millisecond)
	v.SetDefault("server.advertise_ws", "")
	v.SetDefault("server.advertise_tcp", "")
	v.SetDefault("server.weight", 1)

	v.SetDefault("upstream.provider", "ollama")
	v.SetDefault("upstream.ollama_host", "http://localhost:11434")
	v.SetDefault("upstream.openai_base_url", "")
	v.SetDefault("upstream.openai_api_key", "")
	v.SetDefault("upstream.timeout", 5*time.Minute)
	v.SetDefault("upstream.models.codellama", "codellama:7b")
	v.SetDefault("upstream.models.deepseek", "deepseek-coder:6.7b")
	v.SetDefault("upstream.breaker.max_failures", 5)
	v.SetDefault("upstream.breaker.open_timeout", 30*time.Second)

	v.SetDefault("assistant.generate_model", "codellama")
	v.SetDefault("assistant.analyze_model", "deepseek")
	v.SetDefault("assistant.document_model", "codellama")
	v.SetDefault("assistant.fallback_confidence", 75.0)
	v.SetDefault("assistant.summary_runes", 200)
	v.SetDefault("assistant.temperature", 0.7)
	v.SetDefault("assistant.top_p", 0.9)
	v.SetDefault("assistant.max_tokens", 2048)
	v.SetDefault("assistant.templates_file", "")

	v.SetDefault("client.addr", "ws://localhost:3002")
	v.SetDefault("client.transport", "ws")
	v.SetDefault("client.codec", "json")
	v.SetDefault("client.call_timeout", 30*time.Second)
	v.SetDefault("client.connect_timeout", 10*time.Second)
	v.SetDefault("client.backoff", "fixed")
	v.SetDefault("client.reconnect_delay", 5*time.Second)
	v.SetDefault("client.reconnect_max_delay", time.Minute)
	v.SetDefault("client.max_reconnect_attempts", 0)
	v.SetDefault("client.sim_latency_min", 800*time.Millisecond)
	v.SetDefault("client.sim_latency_max", 2*time.Second)
	v.SetDefault("client.balancer", "round_robin")

	v.SetDefault("registry.endpoints", []string{})
	v.SetDefault("registry.dial_timeout", 5*time.Second)
	v.SetDefault("registry.service", "leiberluna")
	v.SetDefault("registry.ttl", 10)
}

// Names the upstream daemon has always been configured with.
var legacyEnv = map[string]string{
	"upstream.ollama_host":      "OLLAMA_HOST",
	"upstream.models.codellama": "MODEL_CODELLAMA",
	"upstream.models.deepseek":  "MODEL_DEEPSEEK",
	"upstream.openai_api_key":   "OPENAI_API_KEY",
}

// New returns a viper instance with defaults and environment bindings in place.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		// prefixed name first so it wins over the legacy one
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.NewReplacer(".", "_").Replace(key)), env)
	}
	return v
}

// Load reads the configuration. path may be empty, in which case only defaults
// and the environment apply.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Upstream.Provider {
	case "ollama", "openai":
	default:
		errs = append(errs, fmt.Errorf("upstream.provider: unknown provider %q", c.Upstream.Provider))
	}
	switch c.Client.Transport {
	case "ws", "tcp", "sim":
	default:
		errs = append(errs, fmt.Errorf("client.transport: unknown transport %q", c.Client.Transport))
	}
	switch c.Client.Backoff {
	case "fixed", "exponential":
	default:
		errs = append(errs, fmt.Errorf("client.backoff: unknown policy %q", c.Client.Backoff))
	}
	for name, codec := range map[string]string{"server.codec": c.Server.Codec, "client.codec": c.Client.Codec} {
		if codec != "json" && codec != "binary" {
			errs = append(errs, fmt.Errorf("%s: unknown codec %q", name, codec))
		}
	}
	if c.Client.CallTimeout <= 0 {
		errs = append(errs, errors.New("client.call_timeout must be positive"))
	}
	if c.Assistant.FallbackConfidence < 0 || c.Assistant.FallbackConfidence > 100 {
		errs = append(errs, errors.New("assistant.fallback_confidence must be within 0-100"))
	}
	if c.Server.WSAddr == "" && c.Server.HTTPAddr == "" && c.Server.TCPAddr == "" {
		errs = append(errs, errors.New("server: at least one listen address is required"))
	}
	return errors.Join(errs...)
}
