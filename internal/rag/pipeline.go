// Package rag answers questions from retrieved document chunks and reports
// what the knowledge base is missing.
package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/knowledgebase/internal/ai"
	"github.com/seanblong/knowledgebase/pkg/models"
)

// Retriever finds the chunks nearest to a query.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]models.SearchHit, error)
}

type Options struct {
	TopK        int
	MaxTokens   int
	Temperature float64
	// Timeout bounds the completion call; on expiry the answer degrades.
	Timeout time.Duration
}

func DefaultOptions() Options {
	return Options{TopK: 5, MaxTokens: 1500, Temperature: 0.3, Timeout: 60 * time.Second}
}

type Pipeline struct {
	retriever Retriever
	completer ai.Completer
	opts      Options
}

func New(r Retriever, c ai.Completer, opts Options) *Pipeline {
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Pipeline{retriever: r, completer: c, opts: opts}
}

// Answer runs retrieve, assemble, complete, score and attribute in that
// order. It never fails: completion problems become a degraded result.
func (p *Pipeline) Answer(ctx context.Context, query string) models.QueryResult {
	start := time.Now()

	hits, err := p.retriever.Search(ctx, query, p.opts.TopK)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("retrieval failed")
		return models.QueryResult{
			Answer:                fmt.Sprintf("Error retrieving documents: %v", err),
			Confidence:            0,
			MissingInfo:           []string{"System error occurred"},
			EnrichmentSuggestions: []string{"Check system configuration and try again"},
			Sources:               []models.Source{},
		}
	}
	if len(hits) == 0 {
		log.Info().Str("query", query).Msg("no relevant documents")
		return noDocumentsResult()
	}

	comp := p.complete(ctx, query, buildContext(hits))

	distances := make([]float64, len(hits))
	sources := make([]models.Source, len(hits))
	for i, h := range hits {
		distances[i] = h.Distance
		sources[i] = models.Source{
			Filename:       h.Chunk.Filename,
			ChunkIndex:     h.Chunk.ChunkIndex,
			TotalChunks:    h.Chunk.TotalChunks,
			RelevanceScore: Relevance(h.Distance),
		}
	}

	res := models.QueryResult{
		Answer:                comp.Answer,
		Confidence:            Confidence(distances),
		MissingInfo:           comp.MissingInfo,
		EnrichmentSuggestions: comp.EnrichmentSuggestions,
		Sources:               sources,
	}

	log.Info().
		Str("query", query).
		Float64("confidence", res.Confidence).
		Int("sources", len(sources)).
		Int("missing_info", len(res.MissingInfo)).
		Dur("took", time.Since(start)).
		Msg("query answered")
	return res
}

func (p *Pipeline) complete(ctx context.Context, query, docContext string) completion {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	raw, err := p.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(docContext, query)},
		},
		MaxTokens:   p.opts.MaxTokens,
		Temperature: p.opts.Temperature,
		JSON:        true,
	})
	if err == nil {
		var comp completion
		comp, err = parseCompletion(raw)
		if err == nil {
			return comp
		}
	}

	log.Warn().Err(err).Str("query", query).Msg("completion degraded")
	return degraded(err)
}

func degraded(err error) completion {
	var ee *ai.EndpointError
	switch {
	case errors.As(err, &ee):
		return completion{
			Answer:                fmt.Sprintf("Error calling completion API: %d - %s", ee.StatusCode, ee.Body),
			MissingInfo:           []string{"API call failed"},
			EnrichmentSuggestions: []string{"Check API configuration and try again"},
		}
	case errors.Is(err, models.ErrCompletionEndpoint), errors.Is(err, context.DeadlineExceeded):
		return completion{
			Answer:                fmt.Sprintf("Error calling completion API: %v", err),
			MissingInfo:           []string{"API call failed"},
			EnrichmentSuggestions: []string{"Check API configuration and try again"},
		}
	default:
		return completion{
			Answer:                fmt.Sprintf("Error generating response: %v", err),
			MissingInfo:           []string{"System error occurred"},
			EnrichmentSuggestions: []string{"Check system configuration and try again"},
		}
	}
}

func noDocumentsResult() models.QueryResult {
	return models.QueryResult{
		Answer:      "I don't have any relevant documents to answer your question.",
		Confidence:  0,
		MissingInfo: []string{"No relevant documents found in the knowledge base"},
		EnrichmentSuggestions: []string{
			"Upload documents related to your query",
			"Try rephrasing your question with different keywords",
		},
		Sources: []models.Source{},
	}
}

// Confidence maps the mean cosine distance onto [0, 1], rounded to three
// decimals. No distances means no confidence.
func Confidence(distances []float64) float64 {
	if len(distances) == 0 {
		return 0
	}
	var sum float64
	for _, d := range distances {
		sum += finite(d)
	}
	c := 1 - (sum/float64(len(distances)))/2
	return round3(math.Max(0, math.Min(1, c)))
}

// Relevance is the per hit score 1 - d/2, rounded but not clamped.
func Relevance(distance float64) float64 {
	return round3(1 - finite(distance)/2)
}

// finite treats an undefined distance (NaN or infinite, as pgvector reports
// for a zero vector) as orthogonal.
func finite(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 1
	}
	return d
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

// SuggestAutoEnrichment builds search suggestions for each missing topic.
// It makes no network calls.
func (p *Pipeline) SuggestAutoEnrichment(missingInfo []string, query string) []models.EnrichmentSuggestion {
	return SuggestAutoEnrichment(missingInfo, query)
}

func SuggestAutoEnrichment(missingInfo []string, query string) []models.EnrichmentSuggestion {
	out := make([]models.EnrichmentSuggestion, 0, len(missingInfo))
	for _, info := range missingInfo {
		out = append(out, models.EnrichmentSuggestion{
			MissingTopic: info,
			SuggestedSources: []string{
				fmt.Sprintf("Search for '%s' in academic papers", info),
				fmt.Sprintf("Look up '%s' in industry documentation", info),
				fmt.Sprintf("Find recent articles about '%s'", info),
			},
			SearchQueries: []string{
				fmt.Sprintf("%s %s", info, query),
				fmt.Sprintf("%s best practices", info),
				fmt.Sprintf("%s latest research", info),
			},
		})
	}
	return out
}

// RateAnswerQuality records feedback in the log and acknowledges it.
func (p *Pipeline) RateAnswerQuality(_ context.Context, fb models.Feedback) models.FeedbackAck {
	log.Info().
		Str("query", fb.Query).
		Int("rating", fb.Rating).
		Str("feedback", fb.Feedback).
		Int("answer_length", len(fb.Answer)).
		Msg("answer feedback")
	return models.FeedbackAck{
		Status:  "success",
		Message: "Thank you for your feedback! This will help improve future responses.",
	}
}
