package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/hayakawa-lab/jprag/internal/errors"
)

// State keys recorded next to the chunk corpus.
const (
	// StateKeyEmbedModel records the embedding model the dense artifact
	// in this data directory was built with.
	StateKeyEmbedModel = "index_embedding_model"
	// StateKeyNgramSize records the n-gram size of the BM25 artifact.
	StateKeyNgramSize = "index_ngram_size"
)

// ChunkStore persists chunk text and metadata in SQLite. The reranker and
// result enrichment look chunk text up by ID here; sweeps also keep their
// checkpoint rows in the same database.
type ChunkStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

const chunkSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	chunk_id TEXT PRIMARY KEY,
	doc_id   TEXT NOT NULL,
	page     INTEGER NOT NULL,
	text     TEXT NOT NULL,
	meta     TEXT
);
CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewChunkStore opens (or creates) a chunk database. An empty path opens an
// in-memory database for tests.
func NewChunkStore(path string) (*ChunkStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create chunk store directory: %w", err)
		}
		// WAL allows concurrent readers during sweep evaluation.
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	if _, err := db.Exec(chunkSchema); err != nil {
		db.Close()
		return nil, errors.CorruptIndex("chunk store schema setup failed", err)
	}

	return &ChunkStore{db: db}, nil
}

// SaveChunks upserts chunks in a single transaction.
func (s *ChunkStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("chunk store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO chunks (chunk_id, doc_id, page, text, meta) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk save: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		var meta any
		if len(c.Meta) > 0 {
			data, err := json.Marshal(c.Meta)
			if err != nil {
				return fmt.Errorf("marshal metadata for chunk %s: %w", c.ID, err)
			}
			meta = string(data)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocID, c.Page, c.Text, meta); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// GetChunk returns a single chunk by ID, or nil when absent.
func (s *ChunkStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT chunk_id, doc_id, page, text, meta FROM chunks WHERE chunk_id = ?`, id)
	return scanChunk(row)
}

// GetChunks returns chunks for the given IDs, preserving input order.
// Missing IDs are skipped.
func (s *ChunkStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, doc_id, page, text, meta FROM chunks WHERE chunk_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetText returns the text of a chunk. Absent chunks return an empty
// string and no error so the reranker can skip them.
func (s *ChunkStore) GetText(ctx context.Context, id string) (string, error) {
	c, err := s.GetChunk(ctx, id)
	if err != nil || c == nil {
		return "", err
	}
	return c.Text, nil
}

// AllIDs returns every stored chunk ID.
func (s *ChunkStore) AllIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id FROM chunks ORDER BY chunk_id`)
	if err != nil {
		return nil, fmt.Errorf("query chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of stored chunks.
func (s *ChunkStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("chunk store is closed")
	}

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// SetState stores a key-value pair.
func (s *ChunkStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("chunk store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, key, value)
	return err
}

// GetState returns the value for a key, or empty string when unset.
func (s *ChunkStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", fmt.Errorf("chunk store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// DB exposes the underlying handle so sweep checkpoints can share the
// database file.
func (s *ChunkStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var meta sql.NullString
	if err := row.Scan(&c.ID, &c.DocID, &c.Page, &c.Text, &meta); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &c.Meta); err != nil {
			return nil, fmt.Errorf("decode metadata for chunk %s: %w", c.ID, err)
		}
	}
	return &c, nil
}
