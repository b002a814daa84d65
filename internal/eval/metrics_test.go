package eval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gold(id string, chunks ...string) *GoldQuery {
	q := &GoldQuery{ID: id, Question: "q"}
	for _, c := range chunks {
		q.Gold = append(q.Gold, GoldTarget{ChunkID: c})
	}
	return q
}

// Single gold chunk retrieved at rank 1: every metric is perfect at k=1.
func TestScoreQueryPerfectAtOne(t *testing.T) {
	g := gold("q1", "C3")
	retrieved := []string{"C3", "C1", "C5", "C2", "C4"}

	m := scoreQuery(retrieved, g, 1, ChunkMatcher{})
	assert.Equal(t, 1.0, m.Recall)
	assert.Equal(t, 1.0, m.HitRate)
	assert.Equal(t, 1.0, m.MRR)
	assert.Equal(t, 1.0, m.NDCG)
}

func TestScoreQueryFirstHitBelowCutoff(t *testing.T) {
	g := gold("q1", "C5")
	retrieved := []string{"C3", "C1", "C5", "C2", "C4"}

	m := scoreQuery(retrieved, g, 2, ChunkMatcher{})
	assert.Equal(t, 0.0, m.Recall, "gold at rank 3 is outside k=2")
	assert.Equal(t, 0.0, m.HitRate)
	assert.InDelta(t, 1.0/3, m.MRR, 1e-12, "MRR looks at the whole list")
	assert.Equal(t, 0.0, m.NDCG)
}

func TestScoreQueryPartialRecall(t *testing.T) {
	g := gold("q1", "C1", "C2", "C9")
	retrieved := []string{"C1", "C4", "C2", "C5"}

	m := scoreQuery(retrieved, g, 3, ChunkMatcher{})
	assert.InDelta(t, 2.0/3, m.Recall, 1e-12)
	assert.Equal(t, 1.0, m.HitRate)
	assert.Equal(t, 1.0, m.MRR)
}

// Recall@k never decreases as k grows over a fixed retrieved list.
func TestRecallMonotonicInK(t *testing.T) {
	g := gold("q1", "C2", "C5", "C8")
	retrieved := []string{"C1", "C2", "C3", "C5", "C6", "C7", "C8"}

	prev := 0.0
	for k := 1; k <= len(retrieved); k++ {
		m := scoreQuery(retrieved, g, k, ChunkMatcher{})
		assert.GreaterOrEqual(t, m.Recall, prev, "k=%d", k)
		prev = m.Recall
	}
	assert.Equal(t, 1.0, prev)
}

func TestNDCGBounds(t *testing.T) {
	cases := []struct {
		name      string
		gold      *GoldQuery
		retrieved []string
		k         int
	}{
		{"all relevant first", gold("a", "C1", "C2"), []string{"C1", "C2", "C3"}, 3},
		{"relevant last", gold("b", "C3"), []string{"C1", "C2", "C3"}, 3},
		{"none relevant", gold("c", "C9"), []string{"C1", "C2", "C3"}, 3},
		{"more gold than k", gold("d", "C1", "C2", "C3", "C4"), []string{"C1", "C9"}, 2},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			m := scoreQuery(tt.retrieved, tt.gold, tt.k, ChunkMatcher{})
			assert.GreaterOrEqual(t, m.NDCG, 0.0)
			assert.LessOrEqual(t, m.NDCG, 1.0)
		})
	}
}

func TestNDCGIdealOrderingIsOne(t *testing.T) {
	g := gold("q1", "C1", "C2")
	m := scoreQuery([]string{"C1", "C2", "C3"}, g, 3, ChunkMatcher{})
	assert.InDelta(t, 1.0, m.NDCG, 1e-12)
}

func TestNDCGDiscounting(t *testing.T) {
	g := gold("q1", "C1")

	// Relevant at rank 2 with one gold: DCG = 1/log2(3), IDCG = 1.
	m := scoreQuery([]string{"C9", "C1"}, g, 5, ChunkMatcher{})
	assert.InDelta(t, 1/math.Log2(3), m.NDCG, 1e-12)
}

func TestNDCGZeroWhenIdealZero(t *testing.T) {
	// No gold at the matcher's granularity: defined as 0, not NaN.
	g := &GoldQuery{ID: "q1", Question: "q"}
	m := scoreQuery([]string{"C1"}, g, 3, ChunkMatcher{})
	assert.Equal(t, 0.0, m.NDCG)
	assert.False(t, math.IsNaN(m.NDCG))
}

func TestScoreQueryEmptyRetrieved(t *testing.T) {
	m := scoreQuery(nil, gold("q1", "C1"), 5, ChunkMatcher{})
	assert.Zero(t, m.Recall)
	assert.Zero(t, m.MRR)
	assert.Zero(t, m.NDCG)
	assert.Zero(t, m.Retrieved)
}

func TestDocMatcher(t *testing.T) {
	g := &GoldQuery{ID: "q1", Question: "q", Gold: []GoldTarget{{DocID: "jis-c-4304", Page: 12}}}

	m := scoreQuery([]string{"jis-c-4304:12:0", "other-doc:1:0"}, g, 2, DocMatcher{})
	assert.Equal(t, 1.0, m.Recall)
	assert.Equal(t, 1.0, m.MRR)

	// Two chunks of the same gold page count the target once.
	g2 := &GoldQuery{ID: "q2", Question: "q", Gold: []GoldTarget{
		{DocID: "jis-c-4304", Page: 1},
		{DocID: "jec-2200", Page: 4},
	}}
	m2 := scoreQuery([]string{"jis-c-4304:1:0", "jis-c-4304:1:1"}, g2, 2, DocMatcher{})
	assert.InDelta(t, 0.5, m2.Recall, 1e-12)
}

// A chunk from the labeled document but a different page is not a hit.
func TestDocMatcherRequiresPage(t *testing.T) {
	g := &GoldQuery{ID: "q1", Question: "q", Gold: []GoldTarget{{DocID: "doc001", Page: 3}}}

	_, ok := DocMatcher{}.Match("doc001:99:0", g)
	assert.False(t, ok)

	key, ok := DocMatcher{}.Match("doc001:3:2", g)
	assert.True(t, ok)
	assert.Equal(t, "doc001:3", key)

	// Without a labeled page, any page of the document matches.
	anyPage := &GoldQuery{ID: "q2", Question: "q", Gold: []GoldTarget{{DocID: "doc001"}}}
	_, ok = DocMatcher{}.Match("doc001:99:0", anyPage)
	assert.True(t, ok)
}

func TestMatcherFor(t *testing.T) {
	assert.IsType(t, ChunkMatcher{}, MatcherFor(gold("a", "C1")))
	assert.IsType(t, DocMatcher{}, MatcherFor(&GoldQuery{ID: "b", Gold: []GoldTarget{{DocID: "d", Page: 1}}}))

	// A single entry without a chunk ID forces document granularity.
	mixed := &GoldQuery{ID: "c", Gold: []GoldTarget{
		{DocID: "d", Page: 1, ChunkID: "d:1:0"},
		{DocID: "e", Page: 2},
	}}
	assert.IsType(t, DocMatcher{}, MatcherFor(mixed))
}

func TestSummarize(t *testing.T) {
	per := []QueryMetrics{
		{Recall: 1.0, HitRate: 1, MRR: 1.0, NDCG: 1.0},
		{Recall: 0.5, HitRate: 1, MRR: 0.5, NDCG: 0.4},
		{Recall: 0.0, HitRate: 0, MRR: 0.0, NDCG: 0.0},
	}
	s := summarize(5, per, 2)

	assert.Equal(t, 5, s.K)
	assert.Equal(t, 3, s.Evaluated)
	assert.Equal(t, 2, s.Malformed)
	require.InDelta(t, 0.5, s.Recall, 1e-12)
	assert.InDelta(t, 2.0/3, s.HitRate, 1e-12)
	assert.InDelta(t, 0.5, s.MRR, 1e-12)
	assert.InDelta(t, 1.4/3, s.NDCG, 1e-12)
}

func TestSummarizeEmpty(t *testing.T) {
	s := summarize(5, nil, 3)
	assert.Zero(t, s.Recall)
	assert.Equal(t, 3, s.Malformed)
}
