package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hayakawa-lab/jprag/internal/errors"
)

// HTTPConfig configures the HTTP embedder.
type HTTPConfig struct {
	// Endpoint is the embedding server URL (e.g. http://localhost:11434/api/embed).
	Endpoint string

	// Model is the embedding model to request.
	Model string

	// Dimensions is the expected embedding dimensionality.
	Dimensions int

	// BatchSize groups texts per request (default: 32, max: 256).
	BatchSize int

	// Timeout bounds a single request (default: 60s). The caller may impose
	// a tighter deadline through the context.
	Timeout time.Duration
}

// HTTPEmbedder calls an external embedding server speaking the Ollama-style
// embed API: POST {model, input: [...]} -> {embeddings: [[...], ...]}.
type HTTPEmbedder struct {
	client *http.Client
	cfg    HTTPConfig

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time.
var _ Embedder = (*HTTPEmbedder)(nil)

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewHTTPEmbedder creates an embedder backed by an external HTTP endpoint.
func NewHTTPEmbedder(cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, errors.ConfigErrorf("embedding endpoint is required")
	}
	if cfg.Model == "" {
		return nil, errors.ConfigErrorf("embedding model is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &HTTPEmbedder{
		// No client-level timeout: per-request contexts carry the deadline
		// so callers can impose their own.
		client: &http.Client{},
		cfg:    cfg,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting into
// configured batch sizes.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, vecs...)
	}
	return results, nil
}

// embedOnce performs a single batched request.
func (e *HTTPEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbedFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Newf(errors.ErrCodeEmbedFailed,
			"embedding server returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbedFailed, err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, errors.Newf(errors.ErrCodeEmbedFailed,
			"embedding server returned %d vectors for %d texts", len(parsed.Embeddings), len(texts))
	}
	for _, v := range parsed.Embeddings {
		if e.cfg.Dimensions > 0 && len(v) != e.cfg.Dimensions {
			return nil, errors.Newf(errors.ErrCodeDimensionMismatch,
				"expected %d dimensions, got %d", e.cfg.Dimensions, len(v))
		}
	}

	return parsed.Embeddings, nil
}

// ModelName returns the configured model identity.
func (e *HTTPEmbedder) ModelName() string {
	return e.cfg.Model
}

// Dimensions returns the configured dimensionality.
func (e *HTTPEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}
