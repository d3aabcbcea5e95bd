package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/seanblong/knowledgebase/pkg/models"
	"google.golang.org/genai"
)

const vertexEmbedBatchSize = 100

type embedContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)

type VertexAIClient struct {
	config       *ClientConfig
	client       *genai.Client
	embedContent embedContentFunc
}

// NewVertexAIClient creates a new client for the Google Gemini API.
func NewVertexAIClient(ctx context.Context, config *ClientConfig) (*VertexAIClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	// Defaults for Gemini API
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-005"
	}
	if config.CompletionModel == "" {
		config.CompletionModel = "gemini-2.0-flash"
	}
	if config.Dim == 0 {
		config.Dim = 768
	}
	if config.Location == "" && strings.TrimSpace(config.APIKey) == "" {
		config.Location = "us-central1"
	}

	cc := genai.ClientConfig{
		Backend: genai.BackendVertexAI,
	}
	if strings.TrimSpace(config.APIKey) != "" {
		cc.APIKey = config.APIKey
	}
	if strings.TrimSpace(config.ProjectID) != "" {
		cc.Project = config.ProjectID
	}
	if strings.TrimSpace(config.Location) != "" {
		cc.Location = config.Location
	}

	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &VertexAIClient{
		config:       config,
		client:       client,
		embedContent: client.Models.EmbedContent,
	}, nil
}

// Embed embeds texts as documents to be retrieved.
func (c *VertexAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embed(ctx, texts, "RETRIEVAL_DOCUMENT")
}

// EmbedQuery embeds a search query with the retrieval query task type.
func (c *VertexAIClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *VertexAIClient) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	cfg := genai.EmbedContentConfig{TaskType: taskType}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += vertexEmbedBatchSize {
		end := min(start+vertexEmbedBatchSize, len(texts))
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}

		res, err := c.embedContent(ctx, c.config.EmbedModel, contents, &cfg)
		if err != nil {
			return nil, fmt.Errorf("embedding failed: %w", err)
		}
		if res == nil || len(res.Embeddings) != len(contents) {
			return nil, errors.New("embedding count mismatch")
		}
		for _, e := range res.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// Complete maps the chat messages onto a Gemini request: system messages
// become the system instruction, the rest become user turns.
func (c *VertexAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var system []string
	var contents []*genai.Content
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		role := genai.Role(genai.RoleUser)
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	temp := float32(req.Temperature)
	cfg := genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.TopP > 0 {
		topP := float32(req.TopP)
		cfg.TopP = &topP
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.config.CompletionModel, contents, &cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrCompletionEndpoint, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no candidates returned", models.ErrCompletionParse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func (c *VertexAIClient) Dim() int {
	return c.config.Dim
}
