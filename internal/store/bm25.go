package store

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/hayakawa-lab/jprag/internal/errors"
)

// BM25Config configures the character n-gram BM25 index.
type BM25Config struct {
	// NgramSize is the character n-gram length (default: 3).
	NgramSize int

	// K1 is the term frequency saturation parameter (default: 1.5).
	K1 float64

	// B is the length normalization parameter (default: 0.75).
	B float64
}

// DefaultBM25Config returns the calibrated defaults for Japanese technical
// documents.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		NgramSize: DefaultNgramSize,
		K1:        1.5,
		B:         0.75,
	}
}

// validate checks the parameters. Invalid values are reported immediately,
// never silently defaulted.
func (c BM25Config) validate() error {
	if c.NgramSize < 1 {
		return errors.ConfigErrorf("ngram size must be >= 1, got %d", c.NgramSize)
	}
	if c.K1 <= 0 {
		return errors.ConfigErrorf("bm25 k1 must be positive, got %g", c.K1)
	}
	if c.B < 0 || c.B > 1 {
		return errors.ConfigErrorf("bm25 b must be in [0,1], got %g", c.B)
	}
	return nil
}

// posting records one chunk's term frequency for a token. Postings are
// ordered by chunk insertion order within each list.
type posting struct {
	Doc int32 // index into chunkIDs
	TF  int32
}

// BM25Index is an in-memory inverted index over character n-grams.
// It is immutable after build and safe for concurrent searches.
type BM25Index struct {
	cfg      BM25Config
	chunkIDs []string
	docLens  []int
	avgdl    float64
	postings map[string][]posting
}

// BuildBM25Index tokenizes every chunk and accumulates term frequencies,
// document frequencies, and chunk lengths. Building twice from the same
// corpus yields identical postings and identical scores for any query.
func BuildBM25Index(chunks []*Chunk, cfg BM25Config) (*BM25Index, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyCorpus, "cannot build BM25 index over empty corpus", nil)
	}

	idx := &BM25Index{
		cfg:      cfg,
		chunkIDs: make([]string, 0, len(chunks)),
		docLens:  make([]int, 0, len(chunks)),
		postings: make(map[string][]posting),
	}

	seen := make(map[string]struct{}, len(chunks))
	totalLen := 0
	for _, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			return nil, errors.ConfigErrorf("duplicate chunk id %q in corpus", c.ID)
		}
		seen[c.ID] = struct{}{}

		doc := int32(len(idx.chunkIDs))
		tokens := TokenizeNgrams(c.Text, cfg.NgramSize)

		tf := make(map[string]int32, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t, f := range tf {
			idx.postings[t] = append(idx.postings[t], posting{Doc: doc, TF: f})
		}

		idx.chunkIDs = append(idx.chunkIDs, c.ID)
		idx.docLens = append(idx.docLens, len(tokens))
		totalLen += len(tokens)
	}

	idx.avgdl = float64(totalLen) / float64(len(chunks))
	return idx, nil
}

// Search scores chunks sharing at least one n-gram with the query.
// Chunks with zero overlap are absent from the result, not scored as zero.
// Returns at most topK results sorted by descending score, ties broken by
// ascending chunk ID. An empty-token query returns an empty list.
func (idx *BM25Index) Search(query string, topK int) []*BM25Result {
	tokens := TokenizeNgrams(query, idx.cfg.NgramSize)
	if len(tokens) == 0 || topK <= 0 {
		return []*BM25Result{}
	}

	// Query-side term frequency: a repeated query n-gram contributes once
	// per occurrence, as in the classic formulation.
	qtf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		qtf[t]++
	}

	n := float64(len(idx.chunkIDs))
	scores := make(map[int32]float64)
	for term, count := range qtf {
		plist, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range plist {
			tf := float64(p.TF)
			dl := float64(idx.docLens[p.Doc])
			denom := tf + idx.cfg.K1*(1-idx.cfg.B+idx.cfg.B*dl/idx.avgdl)
			scores[p.Doc] += float64(count) * idf * (tf * (idx.cfg.K1 + 1)) / denom
		}
	}

	results := make([]*BM25Result, 0, len(scores))
	for doc, s := range scores {
		results = append(results, &BM25Result{ChunkID: idx.chunkIDs[doc], Score: s})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Params returns the build parameters recorded in the index.
func (idx *BM25Index) Params() BM25Config {
	return idx.cfg
}

// ChunkCount returns the number of indexed chunks.
func (idx *BM25Index) ChunkCount() int {
	return len(idx.chunkIDs)
}

// AvgDocLen returns the corpus average chunk length in tokens.
func (idx *BM25Index) AvgDocLen() float64 {
	return idx.avgdl
}

// TermCount returns the number of distinct n-gram tokens.
func (idx *BM25Index) TermCount() int {
	return len(idx.postings)
}

// CheckConsistency verifies that every indexed chunk ID exists in the
// given corpus snapshot. A persisted index referencing unknown chunk IDs
// fails fast so the caller rebuilds instead of returning dangling hits.
func (idx *BM25Index) CheckConsistency(corpusIDs map[string]struct{}) error {
	for _, id := range idx.chunkIDs {
		if _, ok := corpusIDs[id]; !ok {
			return errors.New(errors.ErrCodeCorruptIndex,
				fmt.Sprintf("BM25 index references chunk %q absent from corpus; rebuild required", id), nil)
		}
	}
	return nil
}

// bm25Artifact is the persisted form of the index, tagged with its build
// parameters so a loader can detect mismatched reuse.
type bm25Artifact struct {
	Config   BM25Config
	ChunkIDs []string
	DocLens  []int
	Avgdl    float64
	Postings map[string][]posting
}

// Save persists the index atomically (temp file + rename).
func (idx *BM25Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeArtifactWrite, err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(errors.ErrCodeArtifactWrite, err)
	}

	art := bm25Artifact{
		Config:   idx.cfg,
		ChunkIDs: idx.chunkIDs,
		DocLens:  idx.docLens,
		Avgdl:    idx.avgdl,
		Postings: idx.postings,
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

// LoadBM25Index loads a persisted index. Structural damage is reported as
// index corruption with an explicit diagnostic.
func LoadBM25Index(path string) (*BM25Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	defer f.Close()

	var art bm25Artifact
	if err := gob.NewDecoder(f).Decode(&art); err != nil {
		return nil, errors.CorruptIndex(fmt.Sprintf("decode BM25 artifact %s", path), err)
	}
	if len(art.ChunkIDs) != len(art.DocLens) {
		return nil, errors.CorruptIndex(
			fmt.Sprintf("BM25 artifact %s: %d chunk ids but %d doc lengths", path, len(art.ChunkIDs), len(art.DocLens)), nil)
	}
	if err := art.Config.validate(); err != nil {
		return nil, errors.CorruptIndex(fmt.Sprintf("BM25 artifact %s: bad parameters", path), err)
	}
	for _, plist := range art.Postings {
		for _, p := range plist {
			if int(p.Doc) >= len(art.ChunkIDs) {
				return nil, errors.CorruptIndex(
					fmt.Sprintf("BM25 artifact %s: posting references doc %d beyond corpus", path, p.Doc), nil)
			}
		}
	}

	return &BM25Index{
		cfg:      art.Config,
		chunkIDs: art.ChunkIDs,
		docLens:  art.DocLens,
		avgdl:    art.Avgdl,
		postings: art.Postings,
	}, nil
}
