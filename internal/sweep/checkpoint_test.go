package sweep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hayakawa-lab/jprag/internal/eval"
	"github.com/hayakawa-lab/jprag/internal/search"
	"github.com/hayakawa-lab/jprag/internal/store"
)

func newTestCheckpoint(t *testing.T) *Checkpoint {
	t.Helper()
	cs, err := store.NewChunkStore("")
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	cp, err := NewCheckpoint(cs.DB())
	require.NoError(t, err)
	return cp
}

func TestCheckpointLifecycle(t *testing.T) {
	ctx := t.Context()
	cp := newTestCheckpoint(t)
	cfg := SweepConfig{ChunkChars: 500, OverlapChars: 100, Mode: search.ModeHybrid}

	e, err := cp.Get(ctx, cfg.Key())
	require.NoError(t, err)
	assert.Nil(t, e, "unknown config has no entry")

	require.NoError(t, cp.SetState(ctx, cfg, StateBuilding, ""))
	e, err = cp.Get(ctx, cfg.Key())
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, StateBuilding, e.State)

	require.NoError(t, cp.SetState(ctx, cfg, StateFailed, "embed server down"))
	e, err = cp.Get(ctx, cfg.Key())
	require.NoError(t, err)
	assert.Equal(t, StateFailed, e.State)
	assert.Equal(t, "embed server down", e.Message)

	done, _, err := cp.Succeeded(ctx, cfg.Key())
	require.NoError(t, err)
	assert.False(t, done, "failed runs must rerun")
}

func TestCheckpointSucceededRoundTrip(t *testing.T) {
	ctx := t.Context()
	cp := newTestCheckpoint(t)
	cfg := SweepConfig{ChunkChars: 300, OverlapChars: 0, Mode: search.ModeBM25}

	summary := &eval.Summary{K: 5, Evaluated: 20, Recall: 0.85, HitRate: 0.9, MRR: 0.7, NDCG: 0.8}
	require.NoError(t, cp.SetSucceeded(ctx, cfg, summary))

	done, got, err := cp.Succeeded(ctx, cfg.Key())
	require.NoError(t, err)
	assert.True(t, done)
	require.NotNil(t, got)
	assert.Equal(t, summary.Recall, got.Recall)
	assert.Equal(t, summary.Evaluated, got.Evaluated)
}

func TestCheckpointIsolatesKeys(t *testing.T) {
	ctx := t.Context()
	cp := newTestCheckpoint(t)

	a := SweepConfig{ChunkChars: 300, Mode: search.ModeBM25}
	b := SweepConfig{ChunkChars: 500, Mode: search.ModeBM25}
	require.NoError(t, cp.SetSucceeded(ctx, a, &eval.Summary{K: 5}))

	done, _, err := cp.Succeeded(ctx, b.Key())
	require.NoError(t, err)
	assert.False(t, done)
}
