package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuseArithmetic(t *testing.T) {
	// One document ranked 1st in one list and 3rd in another, unit weights:
	// fused = 1/(60+1) + 1/(60+3).
	lists := map[string][]Candidate{
		"a": {{ChunkID: "d:1:0"}},
		"b": {{ChunkID: "x:1:0"}, {ChunkID: "x:1:1"}, {ChunkID: "d:1:0"}},
	}
	weights := map[string]float64{"a": 1, "b": 1}

	fused := Fuse(lists, weights, 60)
	require.NotEmpty(t, fused)

	want := 1.0/61 + 1.0/63
	assert.Equal(t, "d:1:0", fused[0].ChunkID)
	assert.InDelta(t, want, fused[0].Score, 1e-12)
}

func TestFuseWeighted(t *testing.T) {
	lists := map[string][]Candidate{
		ListBM25:  {{ChunkID: "only-bm25"}},
		ListDense: {{ChunkID: "only-dense"}},
	}
	weights := map[string]float64{ListBM25: 2.0, ListDense: 1.0}

	fused := Fuse(lists, weights, 60)
	require.Len(t, fused, 2)

	// Same rank in both lists: the higher-weighted retriever wins.
	assert.Equal(t, "only-bm25", fused[0].ChunkID)
	assert.InDelta(t, 2.0/61, fused[0].Score, 1e-12)
	assert.Equal(t, "only-dense", fused[1].ChunkID)
	assert.InDelta(t, 1.0/61, fused[1].Score, 1e-12)
}

// Absence from a list contributes zero, never a penalty: a document missing
// from one list can still outrank one present in both.
func TestFuseAbsenceContributesZero(t *testing.T) {
	lists := map[string][]Candidate{
		"a": {{ChunkID: "top"}, {ChunkID: "both"}},
		"b": {{ChunkID: "filler-1"}, {ChunkID: "filler-2"}, {ChunkID: "filler-3"}, {ChunkID: "both"}},
	}
	weights := map[string]float64{"a": 1, "b": 1}

	fused := Fuse(lists, weights, 60)
	scores := make(map[string]float64, len(fused))
	for _, c := range fused {
		scores[c.ChunkID] = c.Score
	}

	assert.InDelta(t, 1.0/61, scores["top"], 1e-12)
	assert.InDelta(t, 1.0/62+1.0/64, scores["both"], 1e-12)
	assert.Greater(t, scores["both"], scores["top"])
}

func TestFuseCoversUnion(t *testing.T) {
	lists := map[string][]Candidate{
		"a": {{ChunkID: "c1"}, {ChunkID: "c2"}},
		"b": {{ChunkID: "c2"}, {ChunkID: "c3"}},
	}
	fused := Fuse(lists, map[string]float64{"a": 1, "b": 1}, 60)

	ids := make([]string, len(fused))
	for i, c := range fused {
		ids[i] = c.ChunkID
	}
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, ids)
}

func TestFuseTieBreaksByChunkID(t *testing.T) {
	// Both documents rank 1st in exactly one unit-weight list.
	lists := map[string][]Candidate{
		"a": {{ChunkID: "zzz"}},
		"b": {{ChunkID: "aaa"}},
	}
	fused := Fuse(lists, map[string]float64{"a": 1, "b": 1}, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "aaa", fused[0].ChunkID)
	assert.Equal(t, "zzz", fused[1].ChunkID)
}

func TestFuseRanksAreSequential(t *testing.T) {
	lists := map[string][]Candidate{
		"a": {{ChunkID: "c1"}, {ChunkID: "c2"}, {ChunkID: "c3"}},
	}
	fused := Fuse(lists, map[string]float64{"a": 1}, 60)
	for i, c := range fused {
		assert.Equal(t, i+1, c.Rank)
	}
}

func TestFuseEmptyInput(t *testing.T) {
	assert.Empty(t, Fuse(nil, nil, 60))
	assert.Empty(t, Fuse(map[string][]Candidate{"a": {}}, map[string]float64{"a": 1}, 60))
}

// A list with no weight entry scores at the default weight of 1; an
// explicit zero weight keeps the list's documents in the union at score 0.
func TestFuseDefaultWeight(t *testing.T) {
	lists := map[string][]Candidate{
		"unweighted": {{ChunkID: "c1"}},
		"zeroed":     {{ChunkID: "c2"}},
	}
	fused := Fuse(lists, map[string]float64{"zeroed": 0}, 60)
	require.Len(t, fused, 2)

	assert.Equal(t, "c1", fused[0].ChunkID)
	assert.InDelta(t, 1.0/61, fused[0].Score, 1e-12)
	assert.Equal(t, "c2", fused[1].ChunkID)
	assert.Zero(t, fused[1].Score)
}

func TestFuseDefaultRRFK(t *testing.T) {
	lists := map[string][]Candidate{"a": {{ChunkID: "c1"}}}
	fused := Fuse(lists, map[string]float64{"a": 1}, 0)
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0/61, fused[0].Score, 1e-12)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"bm25", ModeBM25, false},
		{"dense", ModeDense, false},
		{"hybrid", ModeHybrid, false},
		{"", ModeHybrid, false},
		{"fulltext", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "mode %q", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights()
	assert.Equal(t, 2.0, w.BM25)
	assert.Equal(t, 1.0, w.Dense)
}
