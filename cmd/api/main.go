package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/knowledgebase/internal/api"
	"github.com/seanblong/knowledgebase/internal/app"
	"github.com/seanblong/knowledgebase/internal/auth"
	"github.com/seanblong/knowledgebase/internal/config"
	"github.com/seanblong/knowledgebase/internal/enrich"
	"github.com/seanblong/knowledgebase/internal/rag"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("knowledgebase-api", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		stdlog.Fatal(err)
	}
	log.Logger = logger
	logger.Info().
		Str("provider", cfg.Provider).
		Str("store", cfg.Store).
		Str("log_level", cfg.LogLevel).
		Bool("auth_enabled", cfg.Auth.Enabled).
		Msg("starting knowledgebase api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize components")
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close store")
		}
	}()
	logger.Info().Int("embedding_dim", comps.Client.Dim()).Str("embed_model", cfg.EmbedModel).Msg("AI client initialized")

	timeout := time.Duration(cfg.CompletionTimeout) * time.Second
	pipeline := rag.New(comps.Documents, comps.Client, rag.Options{
		TopK:        cfg.TopK,
		MaxTokens:   cfg.CompletionMaxTokens,
		Temperature: cfg.CompletionTemperature,
		Timeout:     timeout,
	})
	auto := enrich.NewAutoEnricher(comps.Client, comps.Documents, cfg.UploadDir, timeout)
	external := enrich.NewSourceEnricher(enrich.NewFetcher(enrich.FetcherConfig{}), comps.Documents, cfg.UploadDir)
	authn := auth.New(cfg.Auth.JwtSecret, cfg.Auth.Enabled)
	if authn.Enabled() {
		logger.Info().Msg("Authentication is ENABLED")
	} else {
		logger.Info().Msg("Authentication is DISABLED - running in open mode")
	}

	srv := api.NewServer(api.Config{
		UploadDir:     cfg.UploadDir,
		MaxFileSizeMB: cfg.MaxFileSizeMB,
	}, comps.Documents, pipeline, auto, external, authn)

	s := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server stopped")
		return
	}
	logger.Info().Msg("api server stopped")
}
