package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/seanblong/knowledgebase/pkg/models"
)

// PostgresStore keeps chunks in a pgvector table and lets the database
// rank them with the cosine distance operator.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new store connected to the given database URL.
func NewPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: p}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies necessary database migrations and schema setup.
func (s *PostgresStore) Migrate(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS kb_chunks (
  id           TEXT PRIMARY KEY,
  document_id  TEXT NOT NULL,
  filename     TEXT NOT NULL,
  chunk_index  INT NOT NULL,
  total_chunks INT NOT NULL,
  file_path    TEXT NOT NULL DEFAULT '',
  content      TEXT NOT NULL,
  embedding    vector(%d) NOT NULL,
  created_at   TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS kb_chunks_document_idx
  ON kb_chunks (document_id);

CREATE INDEX IF NOT EXISTS kb_chunks_embedding_idx
  ON kb_chunks USING hnsw (embedding vector_cosine_ops);
`
	_, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim))
	return err
}

// Add upserts all chunks in one transaction.
func (s *PostgresStore) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if _, err := checkDims(chunks, 0); err != nil {
		return err
	}

	const q = `
INSERT INTO kb_chunks (id, document_id, filename, chunk_index, total_chunks, file_path, content, embedding, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  document_id  = EXCLUDED.document_id,
  filename     = EXCLUDED.filename,
  chunk_index  = EXCLUDED.chunk_index,
  total_chunks = EXCLUDED.total_chunks,
  file_path    = EXCLUDED.file_path,
  content      = EXCLUDED.content,
  embedding    = EXCLUDED.embedding,
  created_at   = kb_chunks.created_at`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, c := range chunks {
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		batch.Queue(q, c.ID, c.DocumentID, c.Filename, c.ChunkIndex, c.TotalChunks,
			c.FilePath, c.Text, pgvector.NewVector(c.Embedding), created)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreWrite, err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, vec []float32, k int) ([]models.SearchHit, error) {
	if k <= 0 {
		return []models.SearchHit{}, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, document_id, filename, chunk_index, total_chunks, file_path, content, created_at,
       embedding <=> $1 AS distance
FROM kb_chunks
ORDER BY embedding <=> $1
LIMIT $2`, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []models.SearchHit{}
	for rows.Next() {
		var h models.SearchHit
		c := &h.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Filename, &c.ChunkIndex, &c.TotalChunks,
			&c.FilePath, &c.Text, &c.CreatedAt, &h.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]models.ChunkMeta, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, document_id, filename, chunk_index, total_chunks, file_path
FROM kb_chunks ORDER BY document_id, chunk_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ChunkMeta{}
	for rows.Next() {
		var m models.ChunkMeta
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.Filename, &m.ChunkIndex, &m.TotalChunks, &m.FilePath); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kb_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreWrite, err)
	}
	if tag.RowsAffected() == 0 {
		return 0, models.ErrDocumentNotFound
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM kb_chunks`).Scan(&n)
	return n, err
}

// Ping checks the database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
