package documents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/knowledgebase/internal/ai"
	"github.com/seanblong/knowledgebase/internal/extract"
	"github.com/seanblong/knowledgebase/internal/store"
	"github.com/seanblong/knowledgebase/pkg/models"
)

// Splitter is the chunking step of ingestion.
type Splitter interface {
	Split(text string) []string
}

// Manager runs ingestion (extract, chunk, embed, store) and exposes
// document level listing and deletion over the vector store.
type Manager struct {
	extractor extract.Extractor
	splitter  Splitter
	embedder  ai.Embedder
	store     store.VectorStore
	newID     func() string
}

func NewManager(ex extract.Extractor, sp Splitter, em ai.Embedder, vs store.VectorStore) *Manager {
	return &Manager{
		extractor: ex,
		splitter:  sp,
		embedder:  em,
		store:     vs,
		newID:     func() string { return uuid.NewString() },
	}
}

// Ingest indexes the file at filePath under the display name filename.
// Nothing is written to the store unless every chunk was embedded.
func (m *Manager) Ingest(ctx context.Context, filePath, filename string) (models.IngestResult, error) {
	start := time.Now()

	text, err := m.extractor.Extract(filePath, extract.TypeOf(filename))
	if err != nil {
		return models.IngestResult{}, err
	}
	if strings.TrimSpace(text) == "" {
		return models.IngestResult{}, models.ErrEmptyDocument
	}

	pieces := m.splitter.Split(text)
	if len(pieces) == 0 {
		return models.IngestResult{}, fmt.Errorf("%w: no chunks generated from the document", models.ErrEmptyDocument)
	}

	vecs, err := m.embedder.Embed(ctx, pieces)
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("embed %s: %w", filename, err)
	}
	if len(vecs) != len(pieces) {
		return models.IngestResult{}, fmt.Errorf("embed %s: got %d vectors for %d chunks", filename, len(vecs), len(pieces))
	}

	docID := m.newID()
	now := time.Now().UTC()
	chunks := make([]models.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = models.Chunk{
			ChunkMeta: models.ChunkMeta{
				ID:          fmt.Sprintf("%s_%d", docID, i),
				DocumentID:  docID,
				Filename:    filename,
				ChunkIndex:  i,
				TotalChunks: len(pieces),
				FilePath:    filePath,
			},
			Text:      p,
			Embedding: vecs[i],
			CreatedAt: now,
		}
	}

	if err := m.store.Add(ctx, chunks); err != nil {
		if !errors.Is(err, models.ErrStoreWrite) {
			err = fmt.Errorf("%w: %v", models.ErrStoreWrite, err)
		}
		return models.IngestResult{}, err
	}

	log.Info().
		Str("document_id", docID).
		Str("filename", filename).
		Int("chunks", len(chunks)).
		Dur("took", time.Since(start)).
		Msg("document ingested")

	return models.IngestResult{DocumentID: docID, Filename: filename, TotalChunks: len(chunks)}, nil
}

// Delete removes every chunk of a document and then, best effort, its
// backing file.
func (m *Manager) Delete(ctx context.Context, documentID string) (models.DeleteResult, error) {
	all, err := m.store.ListAll(ctx)
	if err != nil {
		return models.DeleteResult{}, err
	}
	var meta *models.ChunkMeta
	for i := range all {
		if all[i].DocumentID == documentID {
			meta = &all[i]
			break
		}
	}
	if meta == nil {
		return models.DeleteResult{}, models.ErrDocumentNotFound
	}

	n, err := m.store.DeleteByDocument(ctx, documentID)
	if err != nil {
		return models.DeleteResult{}, err
	}

	if meta.FilePath != "" {
		if err := os.Remove(meta.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("document_id", documentID).Str("path", meta.FilePath).
				Msg("failed to remove document file")
		}
	}

	log.Info().Str("document_id", documentID).Str("filename", meta.Filename).Int("chunks", n).Msg("document deleted")
	return models.DeleteResult{DocumentID: documentID, Filename: meta.Filename, DeletedChunks: n}, nil
}

// ListDocuments groups stored chunks by document, sorted by filename.
func (m *Manager) ListDocuments(ctx context.Context) ([]models.DocumentSummary, error) {
	all, err := m.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byDoc := make(map[string]*models.DocumentSummary)
	var order []string
	for _, c := range all {
		d, ok := byDoc[c.DocumentID]
		if !ok {
			d = &models.DocumentSummary{
				DocumentID:  c.DocumentID,
				Filename:    c.Filename,
				TotalChunks: c.TotalChunks,
				FilePath:    c.FilePath,
			}
			byDoc[c.DocumentID] = d
			order = append(order, c.DocumentID)
		}
		d.Chunks = append(d.Chunks, models.ChunkRef{ChunkIndex: c.ChunkIndex, TotalChunks: c.TotalChunks})
	}

	out := make([]models.DocumentSummary, 0, len(order))
	for _, id := range order {
		d := byDoc[id]
		sort.Slice(d.Chunks, func(i, j int) bool { return d.Chunks[i].ChunkIndex < d.Chunks[j].ChunkIndex })
		out = append(out, *d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// Count returns the number of stored chunks.
func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

// Search embeds query and returns the k nearest chunks.
func (m *Manager) Search(ctx context.Context, query string, k int) ([]models.SearchHit, error) {
	vec, err := ai.EmbedQuery(ctx, m.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return m.store.Query(ctx, vec, k)
}
