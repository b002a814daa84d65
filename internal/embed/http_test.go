package embed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hayakawa-lab/jprag/internal/errors"
)

func embedTestServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vecs := make([][]float32, len(req.Input))
		for i := range req.Input {
			v := make([]float32, dims)
			v[i%dims] = 1
			vecs[i] = v
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: vecs})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPEmbedder(t *testing.T) {
	srv := embedTestServer(t, 4)

	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: srv.URL, Model: "test-model", Dimensions: 4})
	require.NoError(t, err)
	defer e.Close()

	vecs, err := e.EmbedBatch(t.Context(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 4)
	assert.Equal(t, "test-model", e.ModelName())
}

func TestHTTPEmbedderBatchSplitting(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len(req.Input), 2)

		vecs := make([][]float32, len(req.Input))
		for i := range vecs {
			vecs[i] = []float32{1, 0}
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: vecs})
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: srv.URL, Model: "m", BatchSize: 2})
	require.NoError(t, err)
	defer e.Close()

	vecs, err := e.EmbedBatch(t.Context(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Len(t, vecs, 5)
	assert.Equal(t, 3, requests)
}

func TestHTTPEmbedderServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: srv.URL, Model: "m"})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Embed(t.Context(), "text")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeEmbedFailed, errors.GetCode(err))
}

func TestHTTPEmbedderDimensionMismatch(t *testing.T) {
	srv := embedTestServer(t, 4)

	e, err := NewHTTPEmbedder(HTTPConfig{Endpoint: srv.URL, Model: "m", Dimensions: 8})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Embed(t.Context(), "text")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(err))
}

func TestNewHTTPEmbedderValidation(t *testing.T) {
	_, err := NewHTTPEmbedder(HTTPConfig{Model: "m"})
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))

	_, err = NewHTTPEmbedder(HTTPConfig{Endpoint: "http://localhost:1"})
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestFactory(t *testing.T) {
	t.Run("static default", func(t *testing.T) {
		e, err := New(FactoryConfig{})
		require.NoError(t, err)
		defer e.Close()
		assert.Equal(t, StaticModelName, e.ModelName())
	})

	t.Run("http", func(t *testing.T) {
		srv := embedTestServer(t, 4)
		e, err := New(FactoryConfig{Provider: ProviderHTTP, Endpoint: srv.URL, Model: "m", Dimensions: 4})
		require.NoError(t, err)
		defer e.Close()
		assert.Equal(t, "m", e.ModelName())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(FactoryConfig{Provider: "sentencepiece"})
		require.Error(t, err)
		assert.True(t, errors.IsConfigError(err))
	})
}
