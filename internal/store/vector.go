package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/hayakawa-lab/jprag/internal/errors"
)

// EmbedFunc is the externally supplied embedding function: a batch of texts
// in, one fixed-dimension vector per text out. Calls are synchronous and
// may be slow; builds batch chunks to amortize per-call overhead.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// FlatVectorIndex stores unit-normalized embeddings and performs exact
// inner-product top-k by exhaustive scan. Cosine similarity is realized as
// inner product because vectors are normalized at build time.
type FlatVectorIndex struct {
	cfg     VectorIndexConfig
	ids     []string
	vectors [][]float32
}

// Verify interface implementation at compile time.
var _ VectorIndex = (*FlatVectorIndex)(nil)

// buildVectors embeds all chunks in batches and normalizes the results.
// Shared by the flat and HNSW backends.
func buildVectors(ctx context.Context, chunks []*Chunk, embedFn EmbedFunc, cfg *VectorIndexConfig) ([]string, [][]float32, error) {
	if embedFn == nil {
		return nil, nil, errors.ConfigErrorf("embedding function is required")
	}
	if cfg.Model == "" {
		return nil, nil, errors.ConfigErrorf("embedding model identity is required in vector index config")
	}
	if len(chunks) == 0 {
		return nil, nil, errors.New(errors.ErrCodeEmptyCorpus, "cannot build vector index over empty corpus", nil)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}

	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		texts[i] = c.Text
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(texts); start += batch {
		end := start + batch
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := embedFn(ctx, texts[start:end])
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrCodeEmbedFailed, err)
		}
		if len(vecs) != end-start {
			return nil, nil, errors.Newf(errors.ErrCodeEmbedFailed,
				"embedding function returned %d vectors for %d chunks", len(vecs), end-start)
		}
		vectors = append(vectors, vecs...)
	}

	for i, v := range vectors {
		if cfg.Dimensions == 0 {
			cfg.Dimensions = len(v)
		}
		if len(v) != cfg.Dimensions {
			return nil, nil, errors.Newf(errors.ErrCodeDimensionMismatch,
				"chunk %s: expected %d dimensions, got %d", ids[i], cfg.Dimensions, len(v))
		}
		normalizeVectorInPlace(v)
	}

	return ids, vectors, nil
}

// BuildFlatVectorIndex embeds every chunk and stores unit-length vectors.
func BuildFlatVectorIndex(ctx context.Context, chunks []*Chunk, embedFn EmbedFunc, cfg VectorIndexConfig) (*FlatVectorIndex, error) {
	cfg.Backend = VectorBackendFlat
	ids, vectors, err := buildVectors(ctx, chunks, embedFn, &cfg)
	if err != nil {
		return nil, err
	}
	return &FlatVectorIndex{cfg: cfg, ids: ids, vectors: vectors}, nil
}

// Search returns the exact top-k entries by inner product, ties broken by
// ascending chunk ID.
func (x *FlatVectorIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != x.cfg.Dimensions {
		return nil, errors.Newf(errors.ErrCodeDimensionMismatch,
			"query has %d dimensions, index has %d", len(query), x.cfg.Dimensions)
	}
	if k <= 0 || len(x.ids) == 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeVectorInPlace(q)

	results := make([]*VectorResult, len(x.ids))
	for i, v := range x.vectors {
		results[i] = &VectorResult{ChunkID: x.ids[i], Score: dot(q, v)}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Model returns the embedding model identity recorded at build time.
func (x *FlatVectorIndex) Model() string { return x.cfg.Model }

// Dimensions returns the embedding dimensionality.
func (x *FlatVectorIndex) Dimensions() int { return x.cfg.Dimensions }

// Count returns the number of stored vectors.
func (x *FlatVectorIndex) Count() int { return len(x.ids) }

// Exact reports that the flat backend scores exhaustively.
func (x *FlatVectorIndex) Exact() bool { return true }

// vectorArtifact is the persisted form of a dense index. Raw vectors are
// stored regardless of backend; an HNSW graph is rebuilt on load.
type vectorArtifact struct {
	Config  VectorIndexConfig
	IDs     []string
	Vectors [][]float32
}

// Save persists the index atomically with its build metadata.
func (x *FlatVectorIndex) Save(path string) error {
	return saveVectorArtifact(path, vectorArtifact{Config: x.cfg, IDs: x.ids, Vectors: x.vectors})
}

func saveVectorArtifact(path string, art vectorArtifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeArtifactWrite, err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(errors.ErrCodeArtifactWrite, err)
	}
	if err := gob.NewEncoder(f).Encode(art); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(errors.ErrCodeArtifactWrite, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.ErrCodeArtifactWrite, err)
	}
	return os.Rename(tmp, path)
}

func loadVectorArtifact(path string) (vectorArtifact, error) {
	var art vectorArtifact
	f, err := os.Open(path)
	if err != nil {
		return art, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&art); err != nil {
		return art, errors.CorruptIndex(fmt.Sprintf("decode vector artifact %s", path), err)
	}
	if len(art.IDs) != len(art.Vectors) {
		return art, errors.CorruptIndex(
			fmt.Sprintf("vector artifact %s: %d ids but %d vectors", path, len(art.IDs), len(art.Vectors)), nil)
	}
	for i, v := range art.Vectors {
		if len(v) != art.Config.Dimensions {
			return art, errors.CorruptIndex(
				fmt.Sprintf("vector artifact %s: vector %d has %d dimensions, expected %d",
					path, i, len(v), art.Config.Dimensions), nil)
		}
	}
	return art, nil
}

// CheckConsistency verifies that every stored chunk ID exists in the given
// corpus snapshot.
func (x *FlatVectorIndex) CheckConsistency(corpusIDs map[string]struct{}) error {
	return checkVectorConsistency(x.ids, corpusIDs)
}

func checkVectorConsistency(ids []string, corpusIDs map[string]struct{}) error {
	for _, id := range ids {
		if _, ok := corpusIDs[id]; !ok {
			return errors.New(errors.ErrCodeCorruptIndex,
				fmt.Sprintf("vector index references chunk %q absent from corpus; rebuild required", id), nil)
		}
	}
	return nil
}

// dot computes the inner product of two equal-length vectors.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
// Zero vectors are left unchanged.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
