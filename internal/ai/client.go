package ai

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"
	"unicode"
)

// Embedder turns text into fixed-dimension vectors. Every call on one
// instance returns vectors of the same length.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// Completer sends a chat style request to a language model and returns the
// raw text of the first choice.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// QueryEmbedder is implemented by providers that embed search queries
// differently from stored documents.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbedQuery embeds one search query, in the provider's query mode when it
// has one.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	if q, ok := e.(QueryEmbedder); ok {
		return q.EmbedQuery(ctx, text)
	}
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("got %d vectors for one query", len(vecs))
	}
	return vecs[0], nil
}

// Client provides both embedding and completion capabilities
type Client interface {
	Embedder
	Completer
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	TopP        float64
	// JSON asks the provider to emit a single JSON object.
	JSON bool
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderAzure    Provider = "azure"
	ProviderVertexAI Provider = "vertexai"
	ProviderOllama   Provider = "ollama"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey          string
	BaseURL         string
	APIVersion      string
	EmbedModel      string
	CompletionModel string
	Dim             int
	ProjectID       string
	Provider        Provider
	Location        string
	Timeout         time.Duration
}

// NewClient creates a new AI client based on configuration
func NewClient(ctx context.Context, config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderOpenAI, ProviderAzure:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, config)
	case ProviderOllama:
		return NewOllamaClient(config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

const defaultStubDim = 384

// StubClient is an offline Client. Embeddings are hashed bag-of-words
// vectors, so texts sharing words land close together; completions are a
// fixed JSON answer.
type StubClient struct {
	dim int
	// Reply overrides the canned completion when set.
	Reply string
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = defaultStubDim
	}
	return &StubClient{dim: dim}
}

func (s *StubClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = s.vector(t)
	}
	return out, nil
}

func (s *StubClient) vector(text string) []float32 {
	v := make([]float32, s.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	// text with no words still gets a unit vector so cosine distance stays defined
	if len(words) == 0 {
		words = []string{strings.TrimSpace(text)}
	}
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%uint32(s.dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}

const stubReply = `{"answer":"This is an offline answer generated without a language model.","missing_info":[],"enrichment_suggestions":[]}`

func (s *StubClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Reply != "" {
		return s.Reply, nil
	}
	if !req.JSON {
		return "Offline mode: no background information is available for this topic.", nil
	}
	return stubReply, nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}
