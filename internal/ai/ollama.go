package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
	"github.com/seanblong/knowledgebase/pkg/models"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaClient runs embeddings and chat against a local Ollama server.
type OllamaClient struct {
	config *ClientConfig
	client *ollama.Client
}

func NewOllamaClient(config *ClientConfig) (*OllamaClient, error) {
	if config.BaseURL == "" {
		config.BaseURL = defaultOllamaURL
	}
	if config.EmbedModel == "" {
		config.EmbedModel = "nomic-embed-text"
	}
	if config.CompletionModel == "" {
		config.CompletionModel = "llama3.1"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	u, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	hc := &http.Client{Timeout: config.Timeout}
	return &OllamaClient{
		config: config,
		client: ollama.NewClient(u, hc),
	}, nil
}

func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.client.Embed(ctx, &ollama.EmbedRequest{
		Model: c.config.EmbedModel,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (c *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	msgs := make([]ollama.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, ollama.Message{Role: m.Role, Content: m.Content})
	}

	opts := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if req.TopP > 0 {
		opts["top_p"] = req.TopP
	}

	stream := false
	chat := &ollama.ChatRequest{
		Model:    c.config.CompletionModel,
		Messages: msgs,
		Stream:   &stream,
		Options:  opts,
	}
	if req.JSON {
		chat.Format = json.RawMessage(`"json"`)
	}

	var sb strings.Builder
	err := c.client.Chat(ctx, chat, func(resp ollama.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrCompletionEndpoint, err)
	}
	return sb.String(), nil
}

func (c *OllamaClient) Dim() int {
	return c.config.Dim
}
