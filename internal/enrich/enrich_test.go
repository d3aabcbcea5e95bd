package enrich

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/seanblong/knowledgebase/internal/ai"
	"github.com/seanblong/knowledgebase/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

type MockIngester struct {
	IngestFunc func(ctx context.Context, filePath, filename string) (models.IngestResult, error)
	paths      []string
	names      []string
}

func (m *MockIngester) Ingest(ctx context.Context, filePath, filename string) (models.IngestResult, error) {
	m.paths = append(m.paths, filePath)
	m.names = append(m.names, filename)
	if m.IngestFunc != nil {
		return m.IngestFunc(ctx, filePath, filename)
	}
	return models.IngestResult{DocumentID: "doc", Filename: filename, TotalChunks: 3}, nil
}

type MockCompleter struct {
	CompleteFunc func(ctx context.Context, req ai.CompletionRequest) (string, error)
	requests     []ai.CompletionRequest
}

func (m *MockCompleter) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	m.requests = append(m.requests, req)
	return m.CompleteFunc(ctx, req)
}

func TestShortName(t *testing.T) {
	tests := []struct {
		query    string
		expected string
	}{
		{"What is machine learning?", "machine_learning"},
		{"Tell me about the history of quantum computing", "history_quantum_comp"},
		{"How does photosynthesis work in plants", "photosynthesis_work_"},
		{"Why is the sky blue?", "sky_blue"},
		{"Is it AI?", "isitai"},
		{"??", "query"},
		{"kubernetes", "kubernetes"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := ShortName(tt.query)
			assert.Equal(t, tt.expected, got)
			assert.LessOrEqual(t, len([]rune(got)), 20)
			assert.NotContains(t, got, "/")
		})
	}
}

func fixedClock() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }

func TestAutoEnricher_Success(t *testing.T) {
	dir := t.TempDir()
	comp := &MockCompleter{CompleteFunc: func(ctx context.Context, req ai.CompletionRequest) (string, error) {
		return "  Machine learning is a field of study.\n\nIt has many uses.  ", nil
	}}
	ing := &MockIngester{}
	a := NewAutoEnricher(comp, ing, dir, time.Second)
	a.now = fixedClock

	res := a.Enrich(context.Background(), "What is machine learning?")

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "auto_enriched_machine_learning.txt", res.Filename)
	assert.Equal(t, 3, res.ChunksAdded)
	assert.Equal(t, "What is machine learning?", res.Query)
	assert.Equal(t, len("Machine learning is a field of study.\n\nIt has many uses."), res.ContentLength)
	assert.Empty(t, res.Error)

	require.Len(t, comp.requests, 1)
	req := comp.requests[0]
	assert.Equal(t, 1000, req.MaxTokens)
	assert.Equal(t, 0.3, req.Temperature)
	assert.Equal(t, 0.9, req.TopP)
	assert.False(t, req.JSON)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, autoSystemPrompt, req.Messages[0].Content)
	assert.Contains(t, req.Messages[1].Content, `The user asked: "What is machine learning?"`)

	require.Len(t, ing.paths, 1)
	assert.Equal(t, "auto_enriched_machine_learning.txt", ing.names[0])
	assert.Equal(t, dir, filepath.Dir(ing.paths[0]))
	assert.True(t, strings.HasSuffix(ing.paths[0], "_auto_enriched_machine_learning.txt"))

	data, err := os.ReadFile(ing.paths[0])
	require.NoError(t, err)
	doc := string(data)
	assert.True(t, strings.HasPrefix(doc, "AUTO-ENRICHMENT: What is machine learning?\nGenerated: 2025-03-04 05:06:07\n"))
	assert.Contains(t, doc, "QUERY: What is machine learning?")
	assert.Contains(t, doc, "ENRICHMENT CONTENT:\nMachine learning is a field of study.")
	assert.Contains(t, doc, strings.Repeat("=", 80))
}

func TestAutoEnricher_Failures(t *testing.T) {
	t.Run("empty query", func(t *testing.T) {
		a := NewAutoEnricher(&MockCompleter{}, &MockIngester{}, t.TempDir(), 0)
		res := a.Enrich(context.Background(), "   ")
		assert.Equal(t, "error", res.Status)
		assert.Equal(t, "query is required", res.Error)
	})

	t.Run("completion error", func(t *testing.T) {
		comp := &MockCompleter{CompleteFunc: func(ctx context.Context, req ai.CompletionRequest) (string, error) {
			return "", &ai.EndpointError{StatusCode: 503, Body: "busy"}
		}}
		ing := &MockIngester{}
		res := NewAutoEnricher(comp, ing, t.TempDir(), 0).Enrich(context.Background(), "golang generics")
		assert.Equal(t, "error", res.Status)
		assert.Contains(t, res.Error, "503")
		assert.Empty(t, ing.paths)
	})

	t.Run("ingest error", func(t *testing.T) {
		comp := &MockCompleter{CompleteFunc: func(ctx context.Context, req ai.CompletionRequest) (string, error) {
			return "content", nil
		}}
		ing := &MockIngester{IngestFunc: func(ctx context.Context, filePath, filename string) (models.IngestResult, error) {
			return models.IngestResult{}, models.ErrStoreWrite
		}}
		res := NewAutoEnricher(comp, ing, t.TempDir(), 0).Enrich(context.Background(), "golang generics")
		assert.Equal(t, "error", res.Status)
		assert.True(t, strings.HasPrefix(res.Error, "Failed to store enrichment: "))
		assert.Equal(t, "golang generics", res.Query)
	})
}

type MockFinder struct {
	FetchFunc func(ctx context.Context, topics []string) []models.ExternalSource
	topics    [][]string
}

func (m *MockFinder) Fetch(ctx context.Context, topics []string) []models.ExternalSource {
	m.topics = append(m.topics, topics)
	return m.FetchFunc(ctx, topics)
}

func TestSourceEnricher_Success(t *testing.T) {
	finder := &MockFinder{FetchFunc: func(ctx context.Context, topics []string) []models.ExternalSource {
		return []models.ExternalSource{
			{Title: "Go", Content: "Go is a language.", Source: "Wikipedia", URL: "https://w/Go", Confidence: 0.9, Type: "encyclopedia"},
			{Title: "Definition: go", Content: "To move.", Source: "DuckDuckGo", Confidence: 0.6, Type: "definition"},
		}
	}}
	ing := &MockIngester{}
	s := NewSourceEnricher(finder, ing, t.TempDir())
	s.now = fixedClock

	res := s.Enrich(context.Background(), "What is Go programming?", []string{" go ", "", "concurrency"})

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "external_enriched_programming.txt", res.Filename)
	assert.Equal(t, 2, res.Sources)
	assert.Equal(t, 3, res.ChunksAdded)
	assert.Equal(t, [][]string{{"go", "concurrency"}}, finder.topics)

	require.Len(t, ing.paths, 1)
	data, err := os.ReadFile(ing.paths[0])
	require.NoError(t, err)
	doc := string(data)
	assert.Equal(t, len([]rune(doc)), res.ContentLength)
	assert.True(t, strings.HasPrefix(doc, "EXTERNAL ENRICHMENT: What is Go programming?\nFetched: 2025-03-04 05:06:07\nTopics: go, concurrency\n"))
	assert.Contains(t, doc, "[1] Go\nSource: Wikipedia (encyclopedia, confidence 0.9)\nURL: https://w/Go\n\nGo is a language.")
	assert.Contains(t, doc, "[2] Definition: go\nSource: DuckDuckGo (definition, confidence 0.6)\n\nTo move.")
}

func TestSourceEnricher_QueryAsTopic(t *testing.T) {
	finder := &MockFinder{FetchFunc: func(ctx context.Context, topics []string) []models.ExternalSource {
		return nil
	}}
	ing := &MockIngester{}
	res := NewSourceEnricher(finder, ing, t.TempDir()).Enrich(context.Background(), "rust ownership", nil)

	assert.Equal(t, [][]string{{"rust ownership"}}, finder.topics)
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, "No external sources found", res.Error)
	assert.Empty(t, ing.paths)
}

func TestSourceEnricher_Failures(t *testing.T) {
	finder := &MockFinder{FetchFunc: func(ctx context.Context, topics []string) []models.ExternalSource {
		return []models.ExternalSource{{Title: "t", Content: "c", Source: "s", Confidence: 0.5}}
	}}

	res := NewSourceEnricher(finder, &MockIngester{}, t.TempDir()).Enrich(context.Background(), "", nil)
	assert.Equal(t, "error", res.Status)
	assert.Empty(t, finder.topics)

	ing := &MockIngester{IngestFunc: func(ctx context.Context, filePath, filename string) (models.IngestResult, error) {
		return models.IngestResult{}, errors.New("disk full")
	}}
	res = NewSourceEnricher(finder, ing, t.TempDir()).Enrich(context.Background(), "", []string{"topic"})
	assert.Equal(t, "error", res.Status)
	assert.Equal(t, "Failed to store enrichment: disk full", res.Error)
	assert.Equal(t, []string{"external_enriched_topic.txt"}, ing.names)
}
