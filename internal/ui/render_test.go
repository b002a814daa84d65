package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hayakawa-lab/jprag/internal/eval"
	"github.com/hayakawa-lab/jprag/internal/search"
	"github.com/hayakawa-lab/jprag/internal/sweep"
)

func TestSearchResultsPlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	r.SearchResults("変圧器の損失", []*search.Result{
		{ChunkID: "jis:2:0", DocID: "jis", Page: 2, Score: 0.0421, Rank: 1, Text: "変圧器の損失計算方法を定義する"},
	})

	out := buf.String()
	assert.Contains(t, out, "変圧器の損失")
	assert.Contains(t, out, "jis p.2")
	assert.Contains(t, out, "0.0421")
	assert.Contains(t, out, "変圧器の損失計算方法")
}

func TestSearchResultsEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, true).SearchResults("q", nil)
	assert.Contains(t, buf.String(), "no results")
}

func TestEvalSummary(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, true).EvalSummary(eval.Summary{
		K: 5, Evaluated: 42, Malformed: 3, Recall: 0.85, HitRate: 0.9, MRR: 0.71, NDCG: 0.8,
	})

	out := buf.String()
	assert.Contains(t, out, "k=5")
	assert.Contains(t, out, "42 evaluated, 3 malformed excluded")
	assert.Contains(t, out, "0.8500")
	assert.Contains(t, out, "0.7100")
}

func TestSweepResults(t *testing.T) {
	var buf bytes.Buffer
	NewRenderer(&buf, true).SweepResults([]sweep.Result{
		{
			Config:  sweep.SweepConfig{ChunkChars: 500, OverlapChars: 100, Mode: search.ModeHybrid},
			State:   sweep.StateSucceeded,
			Summary: &eval.Summary{Recall: 0.9, MRR: 0.8, NDCG: 0.85},
		},
		{
			Config:  sweep.SweepConfig{ChunkChars: 300, Mode: search.ModeBM25},
			State:   sweep.StateFailed,
			Stage:   sweep.StageBuild,
			Message: "out of disk",
		},
		{
			Config:  sweep.SweepConfig{ChunkChars: 800, Mode: search.ModeDense},
			State:   sweep.StateSucceeded,
			Summary: &eval.Summary{Recall: 0.7},
			Skipped: true,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "recall=0.9000")
	assert.Contains(t, out, "build: out of disk")
	assert.Contains(t, out, "skip")
	assert.Contains(t, out, "2 succeeded, 1 failed")
}

func TestSnippetTruncation(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "あ"
	}
	got := snippet(long)
	assert.Contains(t, got, "…")
	assert.Less(t, len([]rune(got)), 100)
}
