package embed

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/askfolder/askfolder/internal/errors"
)

func ollamaTestServer(t *testing.T, dims int, fail *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models":[{"name":"nomic-embed-text"}]}`))
			return
		}
		require.Equal(t, "/api/embed", r.URL.Path)

		if fail != nil && atomic.LoadInt32(fail) != 0 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		inputs := req.Input.([]any)

		resp := ollamaEmbedResponse{Embeddings: make([][]float32, len(inputs))}
		for i := range inputs {
			v := make([]float32, dims)
			v[i%dims] = 1
			resp.Embeddings[i] = v
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOllamaEmbedBatch(t *testing.T) {
	srv := ollamaTestServer(t, 4, nil)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 4)

	// Dimensions were detected from the probe
	assert.Equal(t, 4, e.Identity().Dimensions)
	assert.Equal(t, "ollama/nomic-embed-text", e.Identity().Namespace())
}

func TestOllamaRateLimitSurfacesAsRetryable(t *testing.T) {
	var fail int32 = 1
	srv := ollamaTestServer(t, 4, &fail)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Model:           "nomic-embed-text",
		Dimensions:      4,
		MaxRetries:      1,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.EmbedBatch(context.Background(), []string{"alpha"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.New(apperrors.ErrCodeRateLimited, "", nil)))
}

func TestOllamaRetriesThenSucceeds(t *testing.T) {
	var fail int32 = 1
	srv := ollamaTestServer(t, 4, &fail)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Model:           "nomic-embed-text",
		Dimensions:      4,
		MaxRetries:      3,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Recover the upstream after a short outage
	go func() {
		time.Sleep(150 * time.Millisecond)
		atomic.StoreInt32(&fail, 0)
	}()

	vecs, err := e.EmbedBatch(context.Background(), []string{"alpha"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
}

func TestOllamaUnreachableHost(t *testing.T) {
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            "http://127.0.0.1:1", // nothing listens here
		Model:           "nomic-embed-text",
		Dimensions:      4,
		MaxRetries:      1,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.Embed(context.Background(), "alpha")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, apperrors.New(apperrors.ErrCodeProviderUnavailable, "", nil)))

	assert.False(t, e.Available(context.Background()))
}

func TestOllamaEmptyTextsGetZeroVectors(t *testing.T) {
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            "http://127.0.0.1:1",
		Model:           "nomic-embed-text",
		Dimensions:      4,
		SkipHealthCheck: true,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// All-empty batch short-circuits without touching the network
	vecs, err := e.EmbedBatch(context.Background(), []string{"", "  "})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, make([]float32, 4), vecs[0])
}
