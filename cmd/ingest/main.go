package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/knowledgebase/internal/app"
	"github.com/seanblong/knowledgebase/internal/config"
	"github.com/seanblong/knowledgebase/internal/indexer"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("knowledgebase-ingest", pflag.ExitOnError)

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

	root := cfg.IngestDir
	if cfg.RepoURL != "" {
		root, err = cloneToTemp(cfg.RepoURL, cfg.GitRef, cfg.GithubToken)
		if err != nil {
			logger.Fatal().Err(err).Str("repo", cfg.RepoURL).Msg("clone failed")
		}
		defer func() {
			if err := os.RemoveAll(root); err != nil {
				logger.Warn().Err(err).Str("dir", root).Msg("failed to remove temp directory")
			}
		}()
	}

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

	logger.Info().Str("root", root).Str("provider", cfg.Provider).Str("store", cfg.Store).Msg("starting ingestion")
	start := time.Now()
	stats, err := indexer.New(comps.Documents, root, cfg.UploadDir).Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("ingestion aborted")
		return
	}
	logger.Info().
		Int("ingested", stats.Ingested).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Int("chunks", stats.Chunks).
		Dur("dur", time.Since(start)).
		Msg("ingestion complete")
}

func cloneToTemp(repoURL, ref, token string) (string, error) {
	dir, err := os.MkdirTemp("", "knowledgebase-*")
	if err != nil {
		return "", err
	}
	url := repoURL
	if token != "" && strings.HasPrefix(url, "https://") {
		url = "https://" + token + ":x-oauth-basic@" + strings.TrimPrefix(url, "https://")
	}
	cmd := exec.Command("git", "clone", "--depth", "1", "--branch", ref, url, dir)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warn().Err(rmErr).Str("dir", dir).Msg("failed to remove temp directory")
		}
		return "", fmt.Errorf("git clone: %w", err)
	}
	return dir, nil
}
