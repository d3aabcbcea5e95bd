package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/seanblong/knowledgebase/pkg/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
  id           TEXT PRIMARY KEY,
  document_id  TEXT NOT NULL,
  filename     TEXT NOT NULL,
  chunk_index  INTEGER NOT NULL,
  total_chunks INTEGER NOT NULL,
  file_path    TEXT NOT NULL,
  content      TEXT NOT NULL,
  dim          INTEGER NOT NULL,
  vector       TEXT NOT NULL,
  created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks (document_id);
`

// SQLiteStore persists chunks in a single SQLite file. Vectors are stored
// as JSON arrays and ranked by a full scan at query time.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path. ":memory:"
// gives a throwaway store.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) dim(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}) (int, error) {
	var dim int
	err := q.QueryRowContext(ctx, `SELECT dim FROM chunks LIMIT 1`).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return dim, err
}

func (s *SQLiteStore) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	dim, err := s.dim(ctx, tx)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreWrite, err)
	}
	if _, err := checkDims(chunks, dim); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, document_id, filename, chunk_index, total_chunks, file_path, content, dim, vector, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  document_id  = excluded.document_id,
  filename     = excluded.filename,
  chunk_index  = excluded.chunk_index,
  total_chunks = excluded.total_chunks,
  file_path    = excluded.file_path,
  content      = excluded.content,
  dim          = excluded.dim,
  vector       = excluded.vector`)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreWrite, err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UTC()
	for _, c := range chunks {
		vec, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrStoreWrite, err)
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.Filename, c.ChunkIndex, c.TotalChunks, c.FilePath, c.Text,
			len(c.Embedding), string(vec), created.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("%w: insert %s: %v", models.ErrStoreWrite, c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreWrite, err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, vec []float32, k int) ([]models.SearchHit, error) {
	if k <= 0 {
		return []models.SearchHit{}, nil
	}
	dim, err := s.dim(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if err := checkQueryDim(vec, dim); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, filename, chunk_index, total_chunks, file_path, content, vector, created_at
FROM chunks ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []models.SearchHit{}
	for rows.Next() {
		var c models.Chunk
		var vecJSON, created string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Filename, &c.ChunkIndex, &c.TotalChunks,
			&c.FilePath, &c.Text, &vecJSON, &created); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(vecJSON), &c.Embedding); err != nil {
			return nil, fmt.Errorf("decode vector %s: %w", c.ID, err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		hits = append(hits, models.SearchHit{Chunk: c, Distance: CosineDistance(vec, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topK(hits, k), nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]models.ChunkMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, filename, chunk_index, total_chunks, file_path
FROM chunks ORDER BY document_id, chunk_index`)
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

func (s *SQLiteStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreWrite, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStoreWrite, err)
	}
	if n == 0 {
		return 0, models.ErrDocumentNotFound
	}
	return int(n), nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
