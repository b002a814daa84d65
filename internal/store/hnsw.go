package store

import (
	"context"
	"sort"

	"github.com/coder/hnsw"

	"github.com/hayakawa-lab/jprag/internal/errors"
)

// HNSWVectorIndex is the approximate dense backend built on coder/hnsw.
// Search is sublinear but not exhaustive: recall can degrade relative to
// the flat backend, so sweep reports record which backend produced a run.
type HNSWVectorIndex struct {
	cfg   VectorIndexConfig
	graph *hnsw.Graph[int]
	ids   []string // node key -> chunk ID, insertion order
}

// Verify interface implementation at compile time.
var _ VectorIndex = (*HNSWVectorIndex)(nil)

// BuildHNSWVectorIndex embeds every chunk and inserts unit-length vectors
// into an HNSW graph.
func BuildHNSWVectorIndex(ctx context.Context, chunks []*Chunk, embedFn EmbedFunc, cfg VectorIndexConfig) (*HNSWVectorIndex, error) {
	cfg.Backend = VectorBackendHNSW
	ids, vectors, err := buildVectors(ctx, chunks, embedFn, &cfg)
	if err != nil {
		return nil, err
	}
	return newHNSWFromVectors(cfg, ids, vectors), nil
}

// newHNSWFromVectors constructs the graph from already-normalized vectors.
// Also used when loading a persisted artifact.
func newHNSWFromVectors(cfg VectorIndexConfig, ids []string, vectors [][]float32) *HNSWVectorIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[int]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch

	for i, v := range vectors {
		graph.Add(hnsw.MakeNode(i, v))
	}

	return &HNSWVectorIndex{cfg: cfg, graph: graph, ids: ids}
}

// Search returns approximate top-k neighbors by inner product. Results are
// re-sorted by (score desc, chunk ID asc) so ordering stays deterministic
// for ties even though candidate selection is approximate.
func (x *HNSWVectorIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
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

	nodes := x.graph.Search(q, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		// Vectors are unit length, so inner product = 1 - cosine distance.
		score := 1 - x.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{ChunkID: x.ids[node.Key], Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	return results, nil
}

// Model returns the embedding model identity recorded at build time.
func (x *HNSWVectorIndex) Model() string { return x.cfg.Model }

// Dimensions returns the embedding dimensionality.
func (x *HNSWVectorIndex) Dimensions() int { return x.cfg.Dimensions }

// Count returns the number of stored vectors.
func (x *HNSWVectorIndex) Count() int { return len(x.ids) }

// Exact reports that HNSW search is approximate.
func (x *HNSWVectorIndex) Exact() bool { return false }

// Save persists the raw vectors; the graph is rebuilt on load.
func (x *HNSWVectorIndex) Save(path string) error {
	vectors := make([][]float32, len(x.ids))
	for i := range x.ids {
		node, ok := x.graph.Lookup(i)
		if !ok {
			return errors.CorruptIndex("hnsw graph lost a node during save", nil)
		}
		vectors[i] = node
	}
	return saveVectorArtifact(path, vectorArtifact{Config: x.cfg, IDs: x.ids, Vectors: vectors})
}

// CheckConsistency verifies that every stored chunk ID exists in the given
// corpus snapshot.
func (x *HNSWVectorIndex) CheckConsistency(corpusIDs map[string]struct{}) error {
	return checkVectorConsistency(x.ids, corpusIDs)
}
