// Package store provides the retrieval indexes: the character n-gram BM25
// inverted index, the dense vector indexes (exact and HNSW), and the SQLite
// chunk store used for text lookup. Indexes are built once per corpus
// snapshot and are read-only afterwards, so they may be shared across
// concurrent queries without locking.
package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hayakawa-lab/jprag/internal/errors"
)

// Chunk is a retrievable unit of document text, produced by the external
// chunking stage. Chunk IDs follow the doc_id:page:seq convention and are
// treated as opaque unique keys by the indexes.
type Chunk struct {
	ID    string            `json:"chunk_id"`
	DocID string            `json:"doc_id"`
	Page  int               `json:"page"`
	Text  string            `json:"text"`
	Meta  map[string]string `json:"metadata,omitempty"`
}

// ParseChunkID splits a doc_id:page:seq chunk ID into its parts.
// doc_id itself may contain colons; page and seq are the last two segments.
func ParseChunkID(id string) (docID string, page int, seq int, err error) {
	i := strings.LastIndex(id, ":")
	if i <= 0 {
		return "", 0, 0, fmt.Errorf("chunk id %q: missing seq segment", id)
	}
	seq, err = strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, 0, fmt.Errorf("chunk id %q: bad seq: %w", id, err)
	}
	rest := id[:i]
	j := strings.LastIndex(rest, ":")
	if j <= 0 {
		return "", 0, 0, fmt.Errorf("chunk id %q: missing page segment", id)
	}
	page, err = strconv.Atoi(rest[j+1:])
	if err != nil {
		return "", 0, 0, fmt.Errorf("chunk id %q: bad page: %w", id, err)
	}
	return rest[:j], page, seq, nil
}

// LoadChunksJSONL reads a chunk feed file with one JSON chunk per line.
// Blank lines are skipped. A chunk without an ID is a validation error.
func LoadChunksJSONL(path string) ([]*Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	defer f.Close()

	var chunks []*Chunk
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var c Chunk
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, errors.Newf(errors.ErrCodeInvalidInput, "chunk feed %s line %d: %v", path, line, err)
		}
		if c.ID == "" {
			return nil, errors.Newf(errors.ErrCodeInvalidInput, "chunk feed %s line %d: empty chunk_id", path, line)
		}
		chunks = append(chunks, &c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read chunk feed: %w", err)
	}
	return chunks, nil
}

// BM25Result is a single BM25 hit.
type BM25Result struct {
	ChunkID string
	Score   float64
}

// VectorResult is a single dense retrieval hit. Score is the inner product
// of unit-normalized vectors, i.e. cosine similarity.
type VectorResult struct {
	ChunkID string
	Score   float32
}

// VectorIndex provides dense nearest-neighbor search over chunk embeddings.
// Implementations are immutable after build and safe for concurrent reads.
type VectorIndex interface {
	// Search returns the top-k entries by inner product against query,
	// ties broken by ascending chunk ID.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Model returns the embedding model identity the index was built with.
	Model() string

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// Count returns the number of stored vectors.
	Count() int

	// Exact reports whether Search performs exhaustive exact scoring.
	// Approximate backends may miss neighbors; evaluation reports should
	// note the backend when comparing recall numbers.
	Exact() bool

	// Save persists the index with its build metadata.
	Save(path string) error
}

// VectorIndexConfig configures dense index construction.
type VectorIndexConfig struct {
	// Backend selects the index structure: "flat" (exact, default) or
	// "hnsw" (approximate, faster on large corpora).
	Backend string

	// Model is the embedding model identity recorded in index metadata.
	Model string

	// Dimensions is the embedding dimensionality.
	Dimensions int

	// BatchSize groups chunks per embedding call to amortize per-call
	// overhead (default: 32).
	BatchSize int

	// HNSW parameters, ignored by the flat backend.
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorIndexConfig returns defaults for the given model identity.
func DefaultVectorIndexConfig(model string, dims int) VectorIndexConfig {
	return VectorIndexConfig{
		Backend:    VectorBackendFlat,
		Model:      model,
		Dimensions: dims,
		BatchSize:  32,
		M:          16,
		EfSearch:   64,
	}
}

// Vector backend names.
const (
	VectorBackendFlat = "flat"
	VectorBackendHNSW = "hnsw"
)
