package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/DANIELAGORA/leiberluna/assistant"
	"github.com/DANIELAGORA/leiberluna/codec"
	"github.com/DANIELAGORA/leiberluna/config"
	"github.com/DANIELAGORA/leiberluna/middleware"
	"github.com/DANIELAGORA/leiberluna/registry"
	"github.com/DANIELAGORA/leiberluna/server"
	"github.com/DANIELAGORA/leiberluna/upstream"
)

const version = "0.3.0"

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the RPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg, a.log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	models := upstream.Models(cfg.Upstream.Models)
	gen, err := newGenerator(cfg.Upstream, models, log)
	if err != nil {
		return err
	}

	templates := assistant.DefaultTemplates()
	if cfg.Assistant.TemplatesFile != "" {
		if templates, err = assistant.LoadTemplates(cfg.Assistant.TemplatesFile); err != nil {
			return err
		}
	}
	svc := assistant.New(gen, assistant.Config{
		GenerateModel:      cfg.Assistant.GenerateModel,
		AnalyzeModel:       cfg.Assistant.AnalyzeModel,
		DocumentModel:      cfg.Assistant.DocumentModel,
		FallbackConfidence: cfg.Assistant.FallbackConfidence,
		SummaryRunes:       cfg.Assistant.SummaryRunes,
		Options: upstream.Options{
			Temperature: cfg.Assistant.Temperature,
			TopP:        cfg.Assistant.TopP,
			MaxTokens:   cfg.Assistant.MaxTokens,
		},
		Templates: templates,
	}, log)

	opts := server.Options{
		WSAddr:          cfg.Server.WSAddr,
		HTTPAddr:        cfg.Server.HTTPAddr,
		TCPAddr:         cfg.Server.TCPAddr,
		Codec:           codec.ParseCodecType(cfg.Server.Codec),
		Heartbeat:       cfg.Server.Heartbeat,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Models:          models,
		ServiceName:     cfg.Registry.Service,
		AdvertiseWS:     cfg.Server.AdvertiseWS,
		AdvertiseTCP:    cfg.Server.AdvertiseTCP,
		RegistryTTL:     cfg.Registry.TTL,
		Weight:          cfg.Server.Weight,
		Version:         version,
	}
	if len(cfg.Registry.Endpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout, log)
		if err != nil {
			return err
		}
		defer reg.Close()
		opts.Registry = reg
	}

	s := server.New(svc, opts, log)
	s.Use(middleware.RecoverMiddleware(log))
	s.Use(middleware.LoggingMiddleware(log))
	if cfg.Server.RateLimit > 0 {
		s.Use(middleware.RateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.RateBurst))
	}
	if cfg.Server.HandlerTimeout > 0 {
		s.Use(middleware.TimeOutMiddleware(cfg.Server.HandlerTimeout, log))
	}
	if cfg.Server.Retries > 0 {
		s.Use(middleware.RetryMiddleware(cfg.Server.Retries, cfg.Server.RetryDelay, log))
	}

	log.Info().
		Str("ws", cfg.Server.WSAddr).
		Str("http", cfg.Server.HTTPAddr).
		Str("tcp", cfg.Server.TCPAddr).
		Str("upstream", cfg.Upstream.Provider).
		Msg("starting leiberluna server")
	return s.Run(ctx)
}

func newGenerator(cfg config.UpstreamConfig, models upstream.Models, log zerolog.Logger) (upstream.Generator, error) {
	var gen upstream.Generator
	switch cfg.Provider {
	case "ollama":
		gen = upstream.NewOllama(cfg.OllamaHost,
			upstream.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			upstream.WithModels(models),
			upstream.WithOllamaLogger(log))
	case "openai":
		gen = upstream.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, models, log)
	default:
		return nil, fmt.Errorf("unknown upstream provider %q", cfg.Provider)
	}
	return upstream.NewBreaker(gen, upstream.BreakerSettings{
		Name:        cfg.Provider,
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: cfg.Breaker.OpenTimeout,
	}, log), nil
}
