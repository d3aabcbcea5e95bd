package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seanblong/knowledgebase/pkg/models"
)

// MemoryStore keeps every chunk in process and scans all of them per
// query. Suited to tests and small collections.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks []models.Chunk
	byID   map[string]int
	dim    int
}

func NewMemory() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

func (m *MemoryStore) Add(ctx context.Context, chunks []models.Chunk) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreWrite, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dim, err := checkDims(chunks, m.dim)
	if err != nil {
		return err
	}
	m.dim = dim

	now := time.Now().UTC()
	for _, c := range chunks {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.Embedding = append([]float32(nil), c.Embedding...)
		if i, ok := m.byID[c.ID]; ok {
			m.chunks[i] = c
			continue
		}
		m.byID[c.ID] = len(m.chunks)
		m.chunks = append(m.chunks, c)
	}
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, vec []float32, k int) ([]models.SearchHit, error) {
	if k <= 0 {
		return []models.SearchHit{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := checkQueryDim(vec, m.dim); err != nil {
		return nil, err
	}

	hits := make([]models.SearchHit, 0, len(m.chunks))
	for _, c := range m.chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits = append(hits, models.SearchHit{Chunk: c, Distance: CosineDistance(vec, c.Embedding)})
	}
	return topK(hits, k), nil
}

func (m *MemoryStore) ListAll(_ context.Context) ([]models.ChunkMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ChunkMeta, len(m.chunks))
	for i, c := range m.chunks {
		out[i] = c.ChunkMeta
	}
	return out, nil
}

func (m *MemoryStore) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.chunks[:0]
	deleted := 0
	for _, c := range m.chunks {
		if c.DocumentID == documentID {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	if deleted == 0 {
		return 0, models.ErrDocumentNotFound
	}

	m.chunks = kept
	m.byID = make(map[string]int, len(kept))
	for i, c := range kept {
		m.byID[c.ID] = i
	}
	if len(kept) == 0 {
		m.dim = 0
	}
	return deleted, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

func (m *MemoryStore) Close() error { return nil }
