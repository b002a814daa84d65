package embed

import (
	"time"

	"github.com/hayakawa-lab/jprag/internal/errors"
)

// Provider names.
const (
	ProviderStatic = "static"
	ProviderHTTP   = "http"
)

// FactoryConfig selects and configures an embedding provider.
type FactoryConfig struct {
	Provider   string
	Endpoint   string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	CacheSize  int
}

// New creates an embedder for the given provider, wrapped with an LRU cache.
// Unknown providers are a configuration error, never silently defaulted.
func New(cfg FactoryConfig) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case ProviderStatic, "":
		inner = NewStaticEmbedder()
	case ProviderHTTP:
		e, err := NewHTTPEmbedder(HTTPConfig{
			Endpoint:   cfg.Endpoint,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, errors.ConfigErrorf("unknown embedding provider %q", cfg.Provider)
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
