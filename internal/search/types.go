// Package search combines the sparse and dense indexes into a single query
// path: per-retriever candidate lists, weighted reciprocal rank fusion, and
// an optional rerank stage over the fused head.
package search

import (
	"github.com/hayakawa-lab/jprag/internal/errors"
)

// Mode selects which retrievers serve a query.
type Mode string

const (
	// ModeBM25 uses only the character n-gram inverted index.
	ModeBM25 Mode = "bm25"
	// ModeDense uses only the vector index.
	ModeDense Mode = "dense"
	// ModeHybrid runs both retrievers and fuses their rankings.
	ModeHybrid Mode = "hybrid"
)

// ParseMode validates a mode string from config or CLI flags.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBM25, ModeDense, ModeHybrid:
		return Mode(s), nil
	case "":
		return ModeHybrid, nil
	default:
		return "", errors.ConfigErrorf("unknown search mode %q (want bm25, dense, or hybrid)", s)
	}
}

// Retriever list names used as fusion weight keys.
const (
	ListBM25  = "bm25"
	ListDense = "dense"
)

// DefaultRRFK is the reciprocal rank fusion constant. 60 is the value from
// the original RRF paper and dampens the gap between adjacent top ranks.
const DefaultRRFK = 60

// Weights are the per-retriever fusion weights. The defaults deliberately
// favor BM25: on Japanese technical text, exact n-gram overlap on type
// designations and clause numbers is the stronger signal.
type Weights struct {
	BM25  float64 `yaml:"bm25"`
	Dense float64 `yaml:"dense"`
}

// DefaultWeights returns the calibrated hybrid weights.
func DefaultWeights() Weights {
	return Weights{BM25: 2.0, Dense: 1.0}
}

// Candidate is one entry of a ranked retrieval list. Rank is 1-based
// position within its list.
type Candidate struct {
	ChunkID string
	Score   float64
	Rank    int
}

// Options controls a single search call.
type Options struct {
	// Mode selects retrievers (default: hybrid).
	Mode Mode

	// TopK is the number of final results (default: 10).
	TopK int

	// FetchK is the per-retriever candidate depth before fusion
	// (default: max(50, TopK)). Deeper lists give fusion more overlap
	// evidence at the cost of retrieval time.
	FetchK int

	// Rerank enables the rescoring stage over the fused head.
	Rerank bool

	// RerankDepth is how many fused candidates to rescore (default: TopK).
	RerankDepth int
}

// DefaultTopK is the default result count.
const DefaultTopK = 10

// DefaultFetchK is the default per-retriever candidate depth.
const DefaultFetchK = 50

func (o *Options) withDefaults() Options {
	out := *o
	if out.Mode == "" {
		out.Mode = ModeHybrid
	}
	if out.TopK <= 0 {
		out.TopK = DefaultTopK
	}
	if out.FetchK <= 0 {
		out.FetchK = DefaultFetchK
	}
	if out.FetchK < out.TopK {
		out.FetchK = out.TopK
	}
	if out.RerankDepth <= 0 {
		out.RerankDepth = out.TopK
	}
	return out
}

// Result is a final search hit with chunk provenance attached.
type Result struct {
	ChunkID string  `json:"chunk_id"`
	DocID   string  `json:"doc_id"`
	Page    int     `json:"page"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
	Text    string  `json:"text,omitempty"`
}
