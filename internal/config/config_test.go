package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hayakawa-lab/jprag/internal/errors"
	"github.com/hayakawa-lab/jprag/internal/search"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Index.NgramSize)
	assert.Equal(t, 1.5, cfg.Index.K1)
	assert.Equal(t, 0.75, cfg.Index.B)
	assert.Equal(t, 2.0, cfg.Search.BM25Weight)
	assert.Equal(t, 1.0, cfg.Search.DenseWeight)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, "hybrid", cfg.Search.Mode)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestLoadMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
search:
  mode: bm25
  bm25_weight: 3.0
  dense_weight: 1.0
  rrf_constant: 60
  top_k: 20
  fetch_k: 50
index:
  ngram_size: 2
  k1: 1.2
  b: 0.5
  vector_backend: hnsw
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bm25", cfg.Search.Mode)
	assert.Equal(t, 3.0, cfg.Search.BM25Weight)
	assert.Equal(t, 20, cfg.Search.TopK)
	assert.Equal(t, 2, cfg.Index.NgramSize)
	assert.Equal(t, "hnsw", cfg.Index.VectorBackend)

	// Untouched sections keep defaults.
	assert.Equal(t, 5, cfg.Eval.K)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Search.BM25Weight, cfg.Search.BM25Weight)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: [not: a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JPRAG_BM25_WEIGHT", "5.5")
	t.Setenv("JPRAG_DENSE_WEIGHT", "0.5")
	t.Setenv("JPRAG_RRF_CONSTANT", "30")
	t.Setenv("JPRAG_MODE", "dense")
	t.Setenv("JPRAG_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5.5, cfg.Search.BM25Weight)
	assert.Equal(t, 0.5, cfg.Search.DenseWeight)
	assert.Equal(t, 30, cfg.Search.RRFConstant)
	assert.Equal(t, "dense", cfg.Search.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestEnvOverridesIgnoreGarbage(t *testing.T) {
	t.Setenv("JPRAG_BM25_WEIGHT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2.0, cfg.Search.BM25Weight)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ngram below one", func(c *Config) { c.Index.NgramSize = 0 }},
		{"non-positive k1", func(c *Config) { c.Index.K1 = 0 }},
		{"b out of range", func(c *Config) { c.Index.B = 1.5 }},
		{"unknown backend", func(c *Config) { c.Index.VectorBackend = "faiss" }},
		{"unknown mode", func(c *Config) { c.Search.Mode = "fulltext" }},
		{"negative weight", func(c *Config) { c.Search.BM25Weight = -1 }},
		{"all-zero weights", func(c *Config) { c.Search.BM25Weight = 0; c.Search.DenseWeight = 0 }},
		{"rrf below one", func(c *Config) { c.Search.RRFConstant = 0 }},
		{"top_k below one", func(c *Config) { c.Search.TopK = 0 }},
		{"eval k below one", func(c *Config) { c.Eval.K = 0 }},
		{"zero workers", func(c *Config) { c.Sweep.Workers = 0 }},
		{"bad sweep mode", func(c *Config) { c.Sweep.Modes = []string{"fulltext"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsConfigError(err))
		})
	}
}

func TestWeights(t *testing.T) {
	cfg := Default()
	assert.Equal(t, search.Weights{BM25: 2.0, Dense: 1.0}, cfg.Weights())
}

func TestPathHelpers(t *testing.T) {
	cfg := Default()
	cfg.Paths.DataDir = "/tmp/jprag"

	assert.Equal(t, "/tmp/jprag/bm25.idx", cfg.BM25IndexPath())
	assert.Equal(t, "/tmp/jprag/dense.idx", cfg.VectorIndexPath())
	assert.Equal(t, "/tmp/jprag/chunks.db", cfg.ChunkDBPath())
	assert.Equal(t, "/tmp/jprag/reports", cfg.ReportsDir())

	cfg.Paths.Reports = "/var/reports"
	assert.Equal(t, "/var/reports", cfg.ReportsDir())
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Search.TopK = 25
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, loaded.Search.TopK)
}
