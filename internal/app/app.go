// Package app assembles the ingestion and retrieval components from a loaded
// configuration. Both binaries share it.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/seanblong/knowledgebase/internal/ai"
	"github.com/seanblong/knowledgebase/internal/chunker"
	"github.com/seanblong/knowledgebase/internal/config"
	"github.com/seanblong/knowledgebase/internal/documents"
	"github.com/seanblong/knowledgebase/internal/extract"
	"github.com/seanblong/knowledgebase/internal/store"
)

// Components are the long lived pieces built from one configuration.
type Components struct {
	Client    ai.Client
	Store     store.VectorStore
	Documents *documents.Manager
}

func (c *Components) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// NewLogger builds the process logger at the configured level.
func NewLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger(), nil
}

// ClientConfig maps the provider settings onto an ai.ClientConfig.
func ClientConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	cc := &ai.ClientConfig{
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.BaseURL,
		APIVersion:      cfg.APIVersion,
		EmbedModel:      cfg.EmbedModel,
		CompletionModel: cfg.CompletionModel,
		Dim:             cfg.Dim,
		ProjectID:       cfg.ProjectID,
		Location:        cfg.Location,
		Timeout:         time.Duration(cfg.CompletionTimeout) * time.Second,
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		cc.Provider = ai.ProviderOpenAI
	case "azure":
		cc.Provider = ai.ProviderAzure
	case "vertexai", "google":
		cc.Provider = ai.ProviderVertexAI
	case "ollama":
		cc.Provider = ai.ProviderOllama
	case "stub":
		cc.Provider = ai.ProviderStub
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	return cc, nil
}

// NewChunker builds a chunker measuring length in the configured unit.
func NewChunker(cfg config.Specification) (*chunker.Chunker, error) {
	var opts []chunker.Option
	if cfg.ChunkUnit == "tokens" {
		fn, err := chunker.TokenLength()
		if err != nil {
			return nil, err
		}
		opts = append(opts, chunker.WithLengthFunc(fn))
	}
	return chunker.New(cfg.ChunkSize, cfg.ChunkOverlap, opts...)
}

// Build connects the provider and the vector store and wires the document
// manager over them. Callers must Close the result.
func Build(ctx context.Context, cfg config.Specification) (*Components, error) {
	cc, err := ClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := ai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create AI client: %w", err)
	}
	if client.Dim() == 0 {
		return nil, fmt.Errorf("embedding dimension must be set for provider %s", cfg.Provider)
	}

	embedder, err := ai.NewCachedEmbedder(client, cfg.EmbedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	ch, err := NewChunker(cfg)
	if err != nil {
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	vs, err := store.Open(ctx, store.Options{
		Kind:        store.Kind(cfg.Store),
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.Database,
		Dim:         client.Dim(),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	return &Components{
		Client:    client,
		Store:     vs,
		Documents: documents.NewManager(extract.New(), ch, embedder, vs),
	}, nil
}
