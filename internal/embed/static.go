package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/hayakawa-lab/jprag/internal/store"
)

// StaticDimensions is the output dimensionality of the static embedder.
const StaticDimensions = 256

// StaticModelName identifies the static embedder in index metadata.
const StaticModelName = "static-ngram-256"

// Character n-gram sizes mixed into the static vector. Bigrams capture
// short kana/kanji collocations, trigrams the same units BM25 indexes.
const (
	staticBigramWeight  = 0.4
	staticTrigramWeight = 0.6
)

// StaticEmbedder generates embeddings by hashing character n-grams into a
// fixed-dimension vector. Deterministic and offline: no model server, no
// network. Semantic quality is far below a neural model; it exists for
// tests, offline sweeps, and environments without an embedding endpoint.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time.
var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates an embedding for a single text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector := make([]float32, StaticDimensions)
	for _, g := range store.TokenizeNgrams(text, 2) {
		vector[hashToIndex(g, StaticDimensions)] += staticBigramWeight
	}
	for _, g := range store.TokenizeNgrams(text, 3) {
		vector[hashToIndex(g, StaticDimensions)] += staticTrigramWeight
	}

	normalizeInPlace(vector)
	return vector, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// ModelName returns the static model identity.
func (e *StaticEmbedder) ModelName() string {
	return StaticModelName
}

// Dimensions returns the output dimensionality.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// Close marks the embedder closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// hashToIndex maps a token to a vector index via FNV-1a.
func hashToIndex(token string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum32() % uint32(dims))
}

// normalizeInPlace scales a vector to unit length. Zero vectors are left
// as-is.
func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
