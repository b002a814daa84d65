package search

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hayakawa-lab/jprag/internal/embed"
	"github.com/hayakawa-lab/jprag/internal/errors"
	"github.com/hayakawa-lab/jprag/internal/store"
	"github.com/hayakawa-lab/jprag/internal/textnorm"
)

// Engine dispatches queries to the configured retrievers, fuses their
// rankings, optionally reranks, and enriches hits with chunk provenance.
// An engine is immutable after construction and safe for concurrent use.
type Engine struct {
	bm25     *store.BM25Index
	dense    store.VectorIndex
	embedder embed.Embedder
	chunks   *store.ChunkStore
	reranker *Reranker
	weights  Weights
	rrfK     int
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBM25 attaches the sparse index.
func WithBM25(idx *store.BM25Index) EngineOption {
	return func(e *Engine) { e.bm25 = idx }
}

// WithDense attaches the vector index and the embedder that produces query
// vectors for it.
func WithDense(idx store.VectorIndex, embedder embed.Embedder) EngineOption {
	return func(e *Engine) {
		e.dense = idx
		e.embedder = embedder
	}
}

// WithChunkStore attaches the chunk store used for result enrichment and
// reranker text lookup.
func WithChunkStore(cs *store.ChunkStore) EngineOption {
	return func(e *Engine) { e.chunks = cs }
}

// WithReranker attaches a rerank stage.
func WithReranker(r *Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// WithWeights overrides the hybrid fusion weights.
func WithWeights(w Weights) EngineOption {
	return func(e *Engine) { e.weights = w }
}

// WithRRFK overrides the reciprocal rank fusion constant.
func WithRRFK(k int) EngineOption {
	return func(e *Engine) { e.rrfK = k }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine assembles a search engine. The indexes required depend on the
// modes that will be used; Search validates availability per call.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		weights: DefaultWeights(),
		rrfK:    DefaultRRFK,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs a query through the selected mode. An empty query (after
// normalization) returns an empty result list, not an error.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	o := opts.withDefaults()
	start := time.Now()

	normalized := textnorm.NormalizeQuery(query)
	if normalized == "" {
		return []*Result{}, nil
	}

	fused, err := e.retrieve(ctx, normalized, o)
	if err != nil {
		return nil, err
	}

	if o.Rerank && e.reranker != nil {
		reranked, err := e.reranker.Rerank(ctx, normalized, fused, o.RerankDepth)
		if err != nil {
			// Recoverable degradation: keep the fused order and continue.
			e.logger.Warn("rerank unavailable, serving fusion order",
				"error", err, "query_len", len(normalized))
		}
		fused = reranked
	}

	if len(fused) > o.TopK {
		fused = fused[:o.TopK]
	}

	results, err := e.enrich(ctx, fused)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("search complete",
		"mode", string(o.Mode),
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds())
	return results, nil
}

// retrieve produces the fused candidate list for the requested mode.
func (e *Engine) retrieve(ctx context.Context, query string, o Options) ([]Candidate, error) {
	switch o.Mode {
	case ModeBM25:
		list, err := e.searchBM25(query, o.FetchK)
		if err != nil {
			return nil, err
		}
		return Fuse(map[string][]Candidate{ListBM25: list}, map[string]float64{ListBM25: 1}, e.rrfK), nil

	case ModeDense:
		list, err := e.searchDense(ctx, query, o.FetchK)
		if err != nil {
			return nil, err
		}
		return Fuse(map[string][]Candidate{ListDense: list}, map[string]float64{ListDense: 1}, e.rrfK), nil

	case ModeHybrid:
		if e.bm25 == nil {
			return nil, errors.ConfigErrorf("hybrid mode requires a BM25 index")
		}
		if e.dense == nil {
			return nil, errors.ConfigErrorf("hybrid mode requires a dense index")
		}

		var bm25List, denseList []Candidate
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			bm25List, err = e.searchBM25(query, o.FetchK)
			return err
		})
		g.Go(func() error {
			var err error
			denseList, err = e.searchDense(gctx, query, o.FetchK)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		return Fuse(
			map[string][]Candidate{ListBM25: bm25List, ListDense: denseList},
			map[string]float64{ListBM25: e.weights.BM25, ListDense: e.weights.Dense},
			e.rrfK,
		), nil

	default:
		return nil, errors.ConfigErrorf("unknown search mode %q", o.Mode)
	}
}

func (e *Engine) searchBM25(query string, k int) ([]Candidate, error) {
	if e.bm25 == nil {
		return nil, errors.ConfigErrorf("bm25 mode requires a BM25 index")
	}
	hits := e.bm25.Search(query, k)
	list := make([]Candidate, len(hits))
	for i, h := range hits {
		list[i] = Candidate{ChunkID: h.ChunkID, Score: h.Score, Rank: i + 1}
	}
	return list, nil
}

func (e *Engine) searchDense(ctx context.Context, query string, k int) ([]Candidate, error) {
	if e.dense == nil || e.embedder == nil {
		return nil, errors.ConfigErrorf("dense mode requires a dense index and an embedder")
	}
	if err := store.VerifyModel(e.dense, e.embedder.ModelName(), e.embedder.Dimensions()); err != nil {
		return nil, err
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbedFailed, err)
	}

	hits, err := e.dense.Search(ctx, vec, k)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}

	list := make([]Candidate, len(hits))
	for i, h := range hits {
		list[i] = Candidate{ChunkID: h.ChunkID, Score: float64(h.Score), Rank: i + 1}
	}
	return list, nil
}

// enrich attaches doc ID, page, and text to final candidates. Without a
// chunk store the provenance is parsed from the chunk ID convention.
func (e *Engine) enrich(ctx context.Context, candidates []Candidate) ([]*Result, error) {
	results := make([]*Result, 0, len(candidates))

	var byID map[string]*store.Chunk
	if e.chunks != nil {
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ChunkID
		}
		chunks, err := e.chunks.GetChunks(ctx, ids)
		if err != nil {
			return nil, err
		}
		byID = make(map[string]*store.Chunk, len(chunks))
		for _, c := range chunks {
			byID[c.ID] = c
		}
	}

	for i, c := range candidates {
		r := &Result{ChunkID: c.ChunkID, Score: c.Score, Rank: i + 1}
		if chunk, ok := byID[c.ChunkID]; ok {
			r.DocID = chunk.DocID
			r.Page = chunk.Page
			r.Text = chunk.Text
		} else if docID, page, _, err := store.ParseChunkID(c.ChunkID); err == nil {
			r.DocID = docID
			r.Page = page
		}
		results = append(results, r)
	}
	return results, nil
}

// TextLookupFromStore adapts a chunk store to the reranker's TextLookup.
func TextLookupFromStore(cs *store.ChunkStore) TextLookup {
	return cs.GetText
}
