package search

import (
	"context"
	"sort"

	"github.com/hayakawa-lab/jprag/internal/errors"
	"github.com/hayakawa-lab/jprag/internal/store"
)

// ScoreFunc rescores candidate texts against a query, one score per text.
// Higher is more relevant. Implementations may call external services and
// may fail; the reranker treats any failure as a degradation, never as a
// search failure.
type ScoreFunc func(ctx context.Context, query string, texts []string) ([]float64, error)

// TextLookup resolves a chunk ID to its text. A missing chunk returns an
// empty string and no error.
type TextLookup func(ctx context.Context, chunkID string) (string, error)

// Reranker rescores the head of a fused candidate list. The tail beyond
// depth keeps its fusion order below every rescored candidate.
type Reranker struct {
	score  ScoreFunc
	lookup TextLookup
}

// NewReranker creates a reranker from a scoring function and a chunk text
// lookup.
func NewReranker(score ScoreFunc, lookup TextLookup) *Reranker {
	return &Reranker{score: score, lookup: lookup}
}

// Rerank rescores the first depth candidates. Ties in the new scores keep
// the pre-rerank order. On any failure the input is returned unchanged
// together with a recoverable error, so the caller can log the degradation
// and still serve results.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate, depth int) ([]Candidate, error) {
	if len(candidates) == 0 || depth <= 0 {
		return candidates, nil
	}
	if depth > len(candidates) {
		depth = len(candidates)
	}

	head := make([]Candidate, depth)
	copy(head, candidates[:depth])

	texts := make([]string, depth)
	for i, c := range head {
		text, err := r.lookup(ctx, c.ChunkID)
		if err != nil {
			return candidates, errors.RerankUnavailable(err)
		}
		texts[i] = text
	}

	scores, err := r.score(ctx, query, texts)
	if err != nil {
		return candidates, errors.RerankUnavailable(err)
	}
	if len(scores) != depth {
		return candidates, errors.RerankUnavailable(
			errors.Newf(errors.ErrCodeInternal, "scorer returned %d scores for %d candidates", len(scores), depth))
	}

	// preRank remembers fusion order for stable tie-breaking.
	preRank := make(map[string]int, depth)
	for i, c := range head {
		preRank[c.ChunkID] = i
		head[i].Score = scores[i]
	}

	sort.SliceStable(head, func(i, j int) bool {
		if head[i].Score != head[j].Score {
			return head[i].Score > head[j].Score
		}
		return preRank[head[i].ChunkID] < preRank[head[j].ChunkID]
	})

	out := make([]Candidate, 0, len(candidates))
	out = append(out, head...)
	out = append(out, candidates[depth:]...)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// NgramOverlapScorer is an offline ScoreFunc: the fraction of the query's
// character trigrams found in each candidate text. A cheap stand-in for a
// cross-encoder when no scoring service is available.
func NgramOverlapScorer(ctx context.Context, query string, texts []string) ([]float64, error) {
	qgrams := store.TokenizeNgrams(query, store.DefaultNgramSize)
	qset := make(map[string]struct{}, len(qgrams))
	for _, g := range qgrams {
		qset[g] = struct{}{}
	}

	scores := make([]float64, len(texts))
	if len(qset) == 0 {
		return scores, nil
	}

	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tset := make(map[string]struct{})
		for _, g := range store.TokenizeNgrams(text, store.DefaultNgramSize) {
			tset[g] = struct{}{}
		}
		hits := 0
		for g := range qset {
			if _, ok := tset[g]; ok {
				hits++
			}
		}
		scores[i] = float64(hits) / float64(len(qset))
	}
	return scores, nil
}
