// Package embed defines the embedding function boundary. The engine treats
// embedding models as external black boxes: an Embedder turns text into a
// fixed-dimension vector, and everything else (model serving, batching
// internals, GPU management) lives behind the interface.
package embed

import (
	"context"
	"time"
)

// Common embedding constants.
const (
	// DefaultBatchSize is the default batch size for embedding requests.
	// Batching amortizes fixed per-call overhead of the external model.
	DefaultBatchSize = 32

	// MaxBatchSize caps batch size to prevent memory exhaustion.
	MaxBatchSize = 256

	// DefaultTimeout is the default timeout for one embedding call.
	DefaultTimeout = 60 * time.Second
)

// Embedder generates dense vector embeddings for text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	// The result has one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the model identity, recorded in index metadata so
	// mismatched index reuse can be rejected.
	ModelName() string

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// Close releases resources.
	Close() error
}
