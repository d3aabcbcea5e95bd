package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/knowledgebase/internal/ai"
	"github.com/seanblong/knowledgebase/pkg/models"
)

const autoSystemPrompt = "You are a helpful assistant that provides comprehensive, factual information on any topic."

const autoUserPrompt = `You are a knowledgeable assistant. The user asked: "%s"

Please provide comprehensive, factual information to answer this question. Include:
- Key facts and background information
- Important details and context
- Relevant examples or explanations
- Any additional useful information related to the topic

Write in a clear, informative style suitable for a knowledge base. Aim for 3-4 paragraphs of detailed information.`

// AutoEnricher asks the language model for background on a query and adds
// the answer to the knowledge base as a text document.
type AutoEnricher struct {
	completer ai.Completer
	ingester  Ingester
	dir       string
	timeout   time.Duration
	now       func() time.Time
}

func NewAutoEnricher(c ai.Completer, ing Ingester, uploadDir string, timeout time.Duration) *AutoEnricher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AutoEnricher{completer: c, ingester: ing, dir: uploadDir, timeout: timeout, now: time.Now}
}

// Enrich never returns an error; failures are reported in the result.
func (a *AutoEnricher) Enrich(ctx context.Context, query string) models.EnrichmentResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return failed(query, "query is required")
	}
	log.Info().Str("query", query).Msg("auto-enrichment started")

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	content, err := a.completer.Complete(cctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: autoSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(autoUserPrompt, query)},
		},
		MaxTokens:   1000,
		Temperature: 0.3,
		TopP:        0.9,
	})
	cancel()
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("auto-enrichment generation failed")
		return failed(query, err.Error())
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return failed(query, "Failed to generate enrichment content")
	}

	filename := "auto_enriched_" + ShortName(query) + ".txt"
	res, err := store(ctx, a.ingester, a.dir, filename, a.document(query, content))
	if err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("auto-enrichment store failed")
		return failed(query, fmt.Sprintf("Failed to store enrichment: %v", err))
	}

	log.Info().Str("filename", filename).Int("chunks", res.TotalChunks).Msg("auto-enrichment stored")
	return models.EnrichmentResult{
		Status:        "success",
		Filename:      filename,
		ChunksAdded:   res.TotalChunks,
		Query:         query,
		ContentLength: len([]rune(content)),
	}
}

func (a *AutoEnricher) document(query, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "AUTO-ENRICHMENT: %s\n", query)
	fmt.Fprintf(&b, "Generated: %s\n", a.now().Format(time.DateTime))
	b.WriteString("Source: LLM Knowledge Generation\n\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "QUERY: %s\n\n", query)
	b.WriteString("ENRICHMENT CONTENT:\n")
	b.WriteString(content + "\n\n")
	b.WriteString(rule + "\n\n")
	fmt.Fprintf(&b, "This content was automatically generated to enrich the knowledge base in response to the query: %q\n", query)
	return b.String()
}
