package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/knowledgebase/pkg/models"
)

// SourceFinder returns reference passages for a set of topics.
type SourceFinder interface {
	Fetch(ctx context.Context, topics []string) []models.ExternalSource
}

// SourceEnricher stores passages from external references as one document.
type SourceEnricher struct {
	finder   SourceFinder
	ingester Ingester
	dir      string
	now      func() time.Time
}

func NewSourceEnricher(f SourceFinder, ing Ingester, uploadDir string) *SourceEnricher {
	return &SourceEnricher{finder: f, ingester: ing, dir: uploadDir, now: time.Now}
}

// Enrich looks up topics, or the query itself when no topics are given.
func (s *SourceEnricher) Enrich(ctx context.Context, query string, topics []string) models.EnrichmentResult {
	query = strings.TrimSpace(query)
	var clean []string
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	if len(clean) == 0 {
		if query == "" {
			return failed(query, "query or topics required")
		}
		clean = []string{query}
	}

	found := s.finder.Fetch(ctx, clean)
	if len(found) == 0 {
		log.Info().Str("query", query).Strs("topics", clean).Msg("no external sources found")
		return failed(query, "No external sources found")
	}

	name := query
	if name == "" {
		name = clean[0]
	}
	filename := "external_enriched_" + ShortName(name) + ".txt"
	content := s.document(query, clean, found)
	res, err := store(ctx, s.ingester, s.dir, filename, content)
	if err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("external enrichment store failed")
		return failed(query, fmt.Sprintf("Failed to store enrichment: %v", err))
	}

	log.Info().Str("filename", filename).Int("sources", len(found)).Int("chunks", res.TotalChunks).
		Msg("external enrichment stored")
	return models.EnrichmentResult{
		Status:        "success",
		Filename:      filename,
		ChunksAdded:   res.TotalChunks,
		Query:         query,
		ContentLength: len([]rune(content)),
		Sources:       len(found),
	}
}

func (s *SourceEnricher) document(query string, topics []string, found []models.ExternalSource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "EXTERNAL ENRICHMENT: %s\n", query)
	fmt.Fprintf(&b, "Fetched: %s\n", s.now().Format(time.DateTime))
	fmt.Fprintf(&b, "Topics: %s\n\n", strings.Join(topics, ", "))
	b.WriteString(rule + "\n")
	for i, src := range found {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, src.Title)
		fmt.Fprintf(&b, "Source: %s (%s, confidence %.1f)\n", src.Source, src.Type, src.Confidence)
		if src.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", src.URL)
		}
		b.WriteString("\n" + src.Content + "\n")
	}
	b.WriteString("\n" + rule + "\n")
	return b.String()
}
