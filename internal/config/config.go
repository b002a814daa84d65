// Package config loads and validates the engine configuration from YAML
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hayakawa-lab/jprag/internal/errors"
	"github.com/hayakawa-lab/jprag/internal/search"
	"github.com/hayakawa-lab/jprag/internal/store"
)

// Config is the complete engine configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Eval       EvalConfig       `yaml:"eval" json:"eval"`
	Sweep      SweepConfig      `yaml:"sweep" json:"sweep"`
	LogLevel   string           `yaml:"log_level" json:"log_level"`
}

// PathsConfig locates the data directory and input files.
type PathsConfig struct {
	// DataDir holds index artifacts and the chunk database
	// (default: ./.jprag).
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Chunks is the chunk feed JSONL file.
	Chunks string `yaml:"chunks" json:"chunks"`

	// Gold is the gold question JSONL file.
	Gold string `yaml:"gold" json:"gold"`

	// Reports is where sweep CSV reports and failure logs land
	// (default: <data_dir>/reports).
	Reports string `yaml:"reports" json:"reports"`
}

// IndexConfig configures index construction.
type IndexConfig struct {
	// NgramSize is the BM25 character n-gram length (default: 3).
	NgramSize int `yaml:"ngram_size" json:"ngram_size"`

	// K1 and B are the BM25 parameters (defaults: 1.5, 0.75).
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`

	// VectorBackend selects the dense index structure: "flat" (exact,
	// default) or "hnsw" (approximate).
	VectorBackend string `yaml:"vector_backend" json:"vector_backend"`

	// HNSW parameters, ignored by the flat backend.
	HNSWM        int `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch int `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
}

// SearchConfig configures the query path. The fusion weights are named
// configuration, overridable per environment:
//
//	JPRAG_BM25_WEIGHT, JPRAG_DENSE_WEIGHT, JPRAG_RRF_CONSTANT
type SearchConfig struct {
	// Mode is the default retrieval mode (default: hybrid).
	Mode string `yaml:"mode" json:"mode"`

	// BM25Weight is the sparse list's fusion weight (default: 2.0).
	BM25Weight float64 `yaml:"bm25_weight" json:"bm25_weight"`

	// DenseWeight is the dense list's fusion weight (default: 1.0).
	DenseWeight float64 `yaml:"dense_weight" json:"dense_weight"`

	// RRFConstant is the reciprocal rank fusion constant (default: 60).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// TopK is the default result count (default: 10).
	TopK int `yaml:"top_k" json:"top_k"`

	// FetchK is the per-retriever candidate depth (default: 50).
	FetchK int `yaml:"fetch_k" json:"fetch_k"`

	// Rerank enables the rescoring stage.
	Rerank bool `yaml:"rerank" json:"rerank"`

	// RerankDepth is how many fused candidates to rescore (default: TopK).
	RerankDepth int `yaml:"rerank_depth" json:"rerank_depth"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static" (offline, default) or "http".
	Provider string `yaml:"provider" json:"provider"`

	// Endpoint is the embedding server URL for the http provider.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Model is the model to request from the http provider.
	Model string `yaml:"model" json:"model"`

	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
}

// EvalConfig configures evaluation.
type EvalConfig struct {
	// K is the metric cutoff (default: 5).
	K int `yaml:"k" json:"k"`
}

// SweepConfig configures the sweep orchestrator.
type SweepConfig struct {
	// Workers bounds concurrent configurations (default: 2).
	Workers int `yaml:"workers" json:"workers"`

	// Grid axes.
	ChunkSizes []int    `yaml:"chunk_sizes" json:"chunk_sizes"`
	Overlaps   []int    `yaml:"overlaps" json:"overlaps"`
	Cleaning   []bool   `yaml:"cleaning" json:"cleaning"`
	Modes      []string `yaml:"modes" json:"modes"`
}

// Default returns the configuration with calibrated defaults.
func Default() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: ".jprag",
		},
		Index: IndexConfig{
			NgramSize:     store.DefaultNgramSize,
			K1:            1.5,
			B:             0.75,
			VectorBackend: store.VectorBackendFlat,
			HNSWM:         16,
			HNSWEfSearch:  64,
		},
		Search: SearchConfig{
			Mode:        string(search.ModeHybrid),
			BM25Weight:  2.0,
			DenseWeight: 1.0,
			RRFConstant: search.DefaultRRFK,
			TopK:        search.DefaultTopK,
			FetchK:      search.DefaultFetchK,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "static",
			BatchSize: 32,
			Timeout:   60 * time.Second,
			CacheSize: 1000,
		},
		Eval: EvalConfig{K: 5},
		Sweep: SweepConfig{
			Workers:    2,
			ChunkSizes: []int{300, 500, 800},
			Overlaps:   []int{0, 100},
			Cleaning:   []bool{true},
			Modes:      []string{string(search.ModeHybrid)},
		},
		LogLevel: "info",
	}
}

// Load reads the config file at path if it exists, merges it over the
// defaults, applies environment overrides, and validates. An empty path
// loads defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.ConfigErrorf("parse config %s: %v", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies JPRAG_* environment variables, the highest
// precedence layer. Unparseable values are ignored rather than fatal, so a
// stray export never bricks the CLI.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("JPRAG_BM25_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.BM25Weight = f
		}
	}
	if v := os.Getenv("JPRAG_DENSE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.DenseWeight = f
		}
	}
	if v := os.Getenv("JPRAG_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.RRFConstant = n
		}
	}
	if v := os.Getenv("JPRAG_MODE"); v != "" {
		c.Search.Mode = v
	}
	if v := os.Getenv("JPRAG_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("JPRAG_EMBEDDINGS_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("JPRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("JPRAG_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("JPRAG_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Index.NgramSize < 1 {
		return errors.ConfigErrorf("index.ngram_size must be >= 1, got %d", c.Index.NgramSize)
	}
	if c.Index.K1 <= 0 {
		return errors.ConfigErrorf("index.k1 must be positive, got %g", c.Index.K1)
	}
	if c.Index.B < 0 || c.Index.B > 1 {
		return errors.ConfigErrorf("index.b must be in [0,1], got %g", c.Index.B)
	}
	switch c.Index.VectorBackend {
	case store.VectorBackendFlat, store.VectorBackendHNSW:
	default:
		return errors.ConfigErrorf("index.vector_backend must be flat or hnsw, got %q", c.Index.VectorBackend)
	}
	if _, err := search.ParseMode(c.Search.Mode); err != nil {
		return err
	}
	if c.Search.BM25Weight < 0 || c.Search.DenseWeight < 0 {
		return errors.ConfigErrorf("search weights must be non-negative, got bm25=%g dense=%g",
			c.Search.BM25Weight, c.Search.DenseWeight)
	}
	if c.Search.BM25Weight == 0 && c.Search.DenseWeight == 0 {
		return errors.ConfigErrorf("at least one search weight must be positive")
	}
	if c.Search.RRFConstant < 1 {
		return errors.ConfigErrorf("search.rrf_constant must be >= 1, got %d", c.Search.RRFConstant)
	}
	if c.Search.TopK < 1 {
		return errors.ConfigErrorf("search.top_k must be >= 1, got %d", c.Search.TopK)
	}
	if c.Eval.K < 1 {
		return errors.ConfigErrorf("eval.k must be >= 1, got %d", c.Eval.K)
	}
	if c.Sweep.Workers < 1 {
		return errors.ConfigErrorf("sweep.workers must be >= 1, got %d", c.Sweep.Workers)
	}
	for _, m := range c.Sweep.Modes {
		if _, err := search.ParseMode(m); err != nil {
			return err
		}
	}
	return nil
}

// Weights returns the fusion weights as the search layer's named config.
func (c *Config) Weights() search.Weights {
	return search.Weights{BM25: c.Search.BM25Weight, Dense: c.Search.DenseWeight}
}

// BM25Config returns the store layer's BM25 parameters.
func (c *Config) BM25Config() store.BM25Config {
	return store.BM25Config{NgramSize: c.Index.NgramSize, K1: c.Index.K1, B: c.Index.B}
}

// ReportsDir resolves the sweep report directory.
func (c *Config) ReportsDir() string {
	if c.Paths.Reports != "" {
		return c.Paths.Reports
	}
	return filepath.Join(c.Paths.DataDir, "reports")
}

// BM25IndexPath is the BM25 artifact location inside the data directory.
func (c *Config) BM25IndexPath() string {
	return filepath.Join(c.Paths.DataDir, "bm25.idx")
}

// VectorIndexPath is the dense artifact location.
func (c *Config) VectorIndexPath() string {
	return filepath.Join(c.Paths.DataDir, "dense.idx")
}

// ChunkDBPath is the chunk database location.
func (c *Config) ChunkDBPath() string {
	return filepath.Join(c.Paths.DataDir, "chunks.db")
}

// WriteYAML writes the configuration to path, creating directories as
// needed.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
