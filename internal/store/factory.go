package store

import (
	"context"

	"github.com/hayakawa-lab/jprag/internal/errors"
)

// BuildVectorIndex builds a dense index with the configured backend.
// Unknown backends are a configuration error.
func BuildVectorIndex(ctx context.Context, chunks []*Chunk, embedFn EmbedFunc, cfg VectorIndexConfig) (VectorIndex, error) {
	switch cfg.Backend {
	case VectorBackendFlat, "":
		return BuildFlatVectorIndex(ctx, chunks, embedFn, cfg)
	case VectorBackendHNSW:
		return BuildHNSWVectorIndex(ctx, chunks, embedFn, cfg)
	default:
		return nil, errors.ConfigErrorf("unknown vector backend %q", cfg.Backend)
	}
}

// LoadVectorIndex loads a persisted dense index, reconstructing the backend
// recorded in the artifact metadata. Searching a loaded index with an
// embedder whose model differs from the recorded one must be rejected by
// the caller; VerifyModel does that check.
func LoadVectorIndex(path string) (VectorIndex, error) {
	art, err := loadVectorArtifact(path)
	if err != nil {
		return nil, err
	}

	switch art.Config.Backend {
	case VectorBackendFlat, "":
		return &FlatVectorIndex{cfg: art.Config, ids: art.IDs, vectors: art.Vectors}, nil
	case VectorBackendHNSW:
		return newHNSWFromVectors(art.Config, art.IDs, art.Vectors), nil
	default:
		return nil, errors.CorruptIndex("vector artifact records unknown backend "+art.Config.Backend, nil)
	}
}

// VerifyModel rejects reuse of a dense index with a different embedding
// model or dimensionality than it was built with.
func VerifyModel(idx VectorIndex, model string, dims int) error {
	if idx.Model() != model {
		return errors.New(errors.ErrCodeModelMismatch,
			"dense index was built with a different embedding model", nil).
			WithDetail("index_model", idx.Model()).
			WithDetail("query_model", model)
	}
	if dims != 0 && idx.Dimensions() != dims {
		return errors.Newf(errors.ErrCodeModelMismatch,
			"dense index has %d dimensions, embedder produces %d", idx.Dimensions(), dims)
	}
	return nil
}
