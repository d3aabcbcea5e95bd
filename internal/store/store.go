package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/seanblong/knowledgebase/pkg/models"
)

// VectorStore persists chunk vectors with their metadata and answers
// nearest neighbour queries by cosine distance. Add and DeleteByDocument
// are atomic to concurrent readers.
type VectorStore interface {
	// Add upserts chunks by id. Failures wrap models.ErrStoreWrite.
	Add(ctx context.Context, chunks []models.Chunk) error
	// Query returns up to k hits ordered by ascending distance.
	Query(ctx context.Context, vec []float32, k int) ([]models.SearchHit, error)
	ListAll(ctx context.Context) ([]models.ChunkMeta, error)
	// DeleteByDocument returns the number of chunks removed, or
	// models.ErrDocumentNotFound when none matched.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

type Kind string

const (
	KindMemory   Kind = "memory"
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
)

type Options struct {
	Kind        Kind
	SQLitePath  string
	DatabaseURL string
	// Dim sizes the pgvector column.
	Dim int
}

// Open builds the configured backend and prepares its schema.
func Open(ctx context.Context, opts Options) (VectorStore, error) {
	switch Kind(strings.ToLower(string(opts.Kind))) {
	case KindMemory:
		return NewMemory(), nil
	case KindSQLite:
		return NewSQLite(ctx, opts.SQLitePath)
	case KindPostgres, "pgvector":
		s, err := NewPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx, opts.Dim); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store: %s", opts.Kind)
	}
}

// CosineDistance is 1 - cosine similarity, in [0, 2]. A zero vector is at
// distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// topK sorts hits by distance, keeping insertion order among ties, and
// truncates to k.
func topK(hits []models.SearchHit, k int) []models.SearchHit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// checkQueryDim rejects a query vector that cannot be compared with the
// stored vectors. An empty store (dim 0) accepts anything.
func checkQueryDim(vec []float32, dim int) error {
	if dim != 0 && len(vec) != dim {
		return fmt.Errorf("%w: query has dimension %d, store uses %d", models.ErrDimensionMismatch, len(vec), dim)
	}
	return nil
}

func checkDims(chunks []models.Chunk, dim int) (int, error) {
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return dim, fmt.Errorf("%w: chunk %s has no embedding", models.ErrStoreWrite, c.ID)
		}
		if dim == 0 {
			dim = len(c.Embedding)
		}
		if len(c.Embedding) != dim {
			return dim, fmt.Errorf("%w: chunk %s has dimension %d, store uses %d",
				models.ErrStoreWrite, c.ID, len(c.Embedding), dim)
		}
	}
	return dim, nil
}
