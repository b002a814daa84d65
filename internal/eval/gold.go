// Package eval measures retrieval quality against a gold question set:
// Recall@k, HitRate@k, MRR, and binary nDCG@k, aggregated per corpus.
package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hayakawa-lab/jprag/internal/errors"
	"github.com/hayakawa-lab/jprag/internal/store"
)

// GoldTarget names one relevant location for a question. Hand-labeled sets
// stop at document and page; machine-derived sets carry the exact chunk ID
// as well.
type GoldTarget struct {
	DocID   string `json:"doc_id"`
	Page    int    `json:"page,omitempty"`
	ChunkID string `json:"chunk_id,omitempty"`
}

// docKey identifies the target at document granularity: the (doc, page)
// pair when a page is labeled, the document alone otherwise.
func (t GoldTarget) docKey() string {
	if t.Page > 0 {
		return fmt.Sprintf("%s:%d", t.DocID, t.Page)
	}
	return t.DocID
}

// GoldQuery is one evaluation question with its relevant targets.
type GoldQuery struct {
	ID       string       `json:"qid"`
	Question string       `json:"question"`
	Gold     []GoldTarget `json:"gold"`
}

// HasGold reports whether the query names at least one relevant target.
// Queries without gold cannot be scored and are excluded as malformed.
func (q *GoldQuery) HasGold() bool {
	return len(q.Gold) > 0
}

// LoadGoldJSONL reads a gold question file with one JSON query per line.
// Blank lines are skipped. A query without an ID or question text, or a
// gold entry naming neither a document nor a chunk, is a validation error;
// empty-gold queries load fine and are excluded later, with accounting, by
// the evaluator. Entries carrying only a chunk ID get their document and
// page filled in from the chunk ID convention.
func LoadGoldJSONL(path string) ([]*GoldQuery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	defer f.Close()

	var queries []*GoldQuery
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var q GoldQuery
		if err := json.Unmarshal([]byte(text), &q); err != nil {
			return nil, errors.Newf(errors.ErrCodeMalformedGold, "gold file %s line %d: %v", path, line, err)
		}
		if q.ID == "" {
			return nil, errors.Newf(errors.ErrCodeMalformedGold, "gold file %s line %d: empty qid", path, line)
		}
		if q.Question == "" {
			return nil, errors.Newf(errors.ErrCodeMalformedGold, "gold file %s line %d: empty question", path, line)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, errors.Newf(errors.ErrCodeMalformedGold, "gold file %s line %d: duplicate qid %q", path, line, q.ID)
		}
		seen[q.ID] = struct{}{}
		for i := range q.Gold {
			tgt := &q.Gold[i]
			if tgt.DocID == "" && tgt.ChunkID == "" {
				return nil, errors.Newf(errors.ErrCodeMalformedGold,
					"gold file %s line %d: gold entry %d names neither doc_id nor chunk_id", path, line, i)
			}
			if tgt.DocID == "" {
				docID, page, _, err := store.ParseChunkID(tgt.ChunkID)
				if err != nil {
					return nil, errors.Newf(errors.ErrCodeMalformedGold,
						"gold file %s line %d: gold entry %d: %v", path, line, i, err)
				}
				tgt.DocID = docID
				tgt.Page = page
			}
		}
		queries = append(queries, &q)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read gold file: %w", err)
	}
	return queries, nil
}

// Matcher decides whether a retrieved chunk satisfies a gold entry, and how
// many distinct gold targets a query has at the matcher's granularity.
type Matcher interface {
	// Match returns the gold key the chunk satisfies, and whether it does.
	Match(chunkID string, gold *GoldQuery) (string, bool)

	// GoldSize returns the number of distinct gold targets.
	GoldSize(gold *GoldQuery) int
}

// ChunkMatcher matches on exact chunk IDs.
type ChunkMatcher struct{}

func (ChunkMatcher) Match(chunkID string, gold *GoldQuery) (string, bool) {
	for _, t := range gold.Gold {
		if t.ChunkID != "" && t.ChunkID == chunkID {
			return t.ChunkID, true
		}
	}
	return "", false
}

func (ChunkMatcher) GoldSize(gold *GoldQuery) int {
	set := make(map[string]struct{}, len(gold.Gold))
	for _, t := range gold.Gold {
		if t.ChunkID != "" {
			set[t.ChunkID] = struct{}{}
		}
	}
	return len(set)
}

// DocMatcher matches on the (document, page) pair a chunk belongs to,
// parsed from the chunk ID convention. Used with hand-labeled gold sets
// where exact chunk boundaries are unknowable. A target without a labeled
// page matches any page of its document.
type DocMatcher struct{}

func (DocMatcher) Match(chunkID string, gold *GoldQuery) (string, bool) {
	docID, page, _, err := store.ParseChunkID(chunkID)
	if err != nil {
		return "", false
	}
	for _, t := range gold.Gold {
		if t.DocID == "" || t.DocID != docID {
			continue
		}
		if t.Page > 0 && t.Page != page {
			continue
		}
		return t.docKey(), true
	}
	return "", false
}

func (DocMatcher) GoldSize(gold *GoldQuery) int {
	set := make(map[string]struct{}, len(gold.Gold))
	for _, t := range gold.Gold {
		if t.DocID != "" {
			set[t.docKey()] = struct{}{}
		}
	}
	return len(set)
}

// MatcherFor picks chunk-level matching when every gold entry names a
// chunk, document-level otherwise.
func MatcherFor(gold *GoldQuery) Matcher {
	if len(gold.Gold) == 0 {
		return DocMatcher{}
	}
	for _, t := range gold.Gold {
		if t.ChunkID == "" {
			return DocMatcher{}
		}
	}
	return ChunkMatcher{}
}
