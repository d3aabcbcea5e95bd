package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/knowledgebase/pkg/models"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	embedBatchSize       = 64
)

// OpenAIClient talks to the OpenAI REST API, or to an Azure OpenAI resource
// when APIVersion is set. In Azure mode the model names are deployment names.
type OpenAIClient struct {
	config *ClientConfig
	http   *http.Client
}

func NewOpenAIClient(config *ClientConfig) *OpenAIClient {
	// Set default models if not provided
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-3-small"
	}
	if config.CompletionModel == "" {
		config.CompletionModel = "gpt-4o-mini"
	}
	if config.Provider == ProviderAzure && config.APIVersion == "" {
		config.APIVersion = "2024-02-15-preview"
	}
	if config.Dim == 0 {
		// Set default dimensions based on the embedding model
		switch config.EmbedModel {
		case "text-embedding-3-large":
			config.Dim = 3072
		default:
			config.Dim = 1536
		}
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	transport := &http.Transport{}

	// Check for environment variable to skip TLS verification (for corporate proxies, etc.)
	if skipTLS, _ := strconv.ParseBool(os.Getenv("KB_SKIP_TLS_VERIFY")); skipTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return &OpenAIClient{
		config: config,
		http: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

func (c *OpenAIClient) azure() bool {
	return c.config.APIVersion != ""
}

func (c *OpenAIClient) endpoint(op, model string) string {
	base := strings.TrimRight(c.config.BaseURL, "/")
	if c.azure() {
		return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
			base, url.PathEscape(model), op, url.QueryEscape(c.config.APIVersion))
	}
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	return base + "/" + op
}

// Embed sends texts in batches and returns vectors in input order.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.config.APIKey == "" {
		return nil, errors.New("PROVIDER_API_KEY unset")
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *OpenAIClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]any{
		"input": texts,
		"model": c.config.EmbedModel,
	}

	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("embeddings", c.config.EmbedModel), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai embedding: %s", resp.Status)
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedding: got %d vectors for %d inputs", len(out.Data), len(texts))
	}
	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })

	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// Complete posts a chat completion. Transport failures and non-2xx replies
// wrap models.ErrCompletionEndpoint; the error text carries the status and
// body so callers can surface it.
func (c *OpenAIClient) Complete(ctx context.Context, cr CompletionRequest) (string, error) {
	if c.config.APIKey == "" {
		return "", fmt.Errorf("%w: PROVIDER_API_KEY unset", models.ErrCompletionEndpoint)
	}

	payload := map[string]any{
		"messages":    cr.Messages,
		"temperature": cr.Temperature,
	}
	if cr.MaxTokens > 0 {
		payload["max_tokens"] = cr.MaxTokens
	}
	if cr.TopP > 0 {
		payload["top_p"] = cr.TopP
	}
	if cr.JSON {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}
	if !c.azure() {
		payload["model"] = c.config.CompletionModel
	}

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("chat/completions", c.config.CompletionModel), &buf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrCompletionEndpoint, err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrCompletionEndpoint, err)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &EndpointError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", models.ErrCompletionParse, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", models.ErrCompletionParse)
	}
	return out.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Dim() int {
	return c.config.Dim
}

// setHeaders sets common headers for OpenAI requests
func (c *OpenAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.azure() {
		req.Header.Set("api-key", c.config.APIKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	if strings.HasPrefix(c.config.APIKey, "sk-proj-") && c.config.ProjectID != "" {
		req.Header.Set("OpenAI-Project", c.config.ProjectID)
	}
}

// EndpointError is a non-2xx reply from a completion endpoint.
type EndpointError struct {
	StatusCode int
	Body       string
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("%d - %s", e.StatusCode, e.Body)
}

func (e *EndpointError) Unwrap() error {
	return models.ErrCompletionEndpoint
}

func closeBody(b io.Closer) {
	if err := b.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close response body")
	}
}
