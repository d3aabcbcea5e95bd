// Package enrich fills gaps in the knowledge base with generated or fetched
// reference material, stored and indexed like any uploaded document.
package enrich

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/seanblong/knowledgebase/internal/documents"
	"github.com/seanblong/knowledgebase/pkg/models"
)

// Ingester indexes a stored file under a display filename.
type Ingester interface {
	Ingest(ctx context.Context, filePath, filename string) (models.IngestResult, error)
}

const rule = "================================================================================"

var (
	questionWords = regexp.MustCompile(`\b(what|who|where|when|why|how|is|are|was|were|do|does|did|can|could|would|should|tell|me|about|the|a|an)\b`)
	nonWord       = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
)

// ShortName derives a compact filename stem from a query: up to three
// words longer than two characters, question words dropped, at most 20
// characters.
func ShortName(query string) string {
	q := questionWords.ReplaceAllString(strings.ToLower(query), "")
	q = nonWord.ReplaceAllString(q, "")

	var words []string
	for _, w := range strings.Fields(q) {
		if utf8.RuneCountInString(w) > 2 {
			words = append(words, w)
		}
		if len(words) == 3 {
			break
		}
	}
	if len(words) > 0 {
		return truncateRunes(strings.Join(words, "_"), 20)
	}

	fallback := nonWord.ReplaceAllString(strings.ReplaceAll(strings.ToLower(query), " ", ""), "")
	fallback = truncateRunes(fallback, 8)
	if fallback == "" {
		return "query"
	}
	return fallback
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// store writes content as a new upload and ingests it under filename.
func store(ctx context.Context, ing Ingester, dir, filename, content string) (models.IngestResult, error) {
	path, err := documents.SaveUpload(dir, filename, strings.NewReader(content))
	if err != nil {
		return models.IngestResult{}, err
	}
	return ing.Ingest(ctx, path, filename)
}

func failed(query, msg string) models.EnrichmentResult {
	return models.EnrichmentResult{Status: "error", Query: query, Error: msg}
}
