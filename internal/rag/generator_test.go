package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/askfolder/askfolder/internal/errors"
)

func generateTestServer(t *testing.T, status int, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: response, Done: true})
	}))
}

func TestOllamaGenerator_ReturnsCompletion(t *testing.T) {
	srv := generateTestServer(t, http.StatusOK, "  Exports run nightly [1]. \n")
	defer srv.Close()

	g := NewOllamaGenerator(OllamaGeneratorConfig{Host: srv.URL, Model: "llama3.2"})
	defer func() { _ = g.Close() }()

	answer, err := g.Generate(context.Background(), "prompt")

	require.NoError(t, err)
	assert.Equal(t, "Exports run nightly [1].", answer)
	assert.Equal(t, "llama3.2", g.Model())
}

func TestOllamaGenerator_EmptyAnswerFails(t *testing.T) {
	srv := generateTestServer(t, http.StatusOK, "   ")
	defer srv.Close()

	g := NewOllamaGenerator(OllamaGeneratorConfig{Host: srv.URL})
	defer func() { _ = g.Close() }()

	_, err := g.Generate(context.Background(), "prompt")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeGenerateFailed, apperrors.GetCode(err))
}

func TestOllamaGenerator_RateLimited(t *testing.T) {
	srv := generateTestServer(t, http.StatusTooManyRequests, "")
	defer srv.Close()

	g := NewOllamaGenerator(OllamaGeneratorConfig{Host: srv.URL})
	defer func() { _ = g.Close() }()

	_, err := g.Generate(context.Background(), "prompt")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRateLimited, apperrors.GetCode(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestOllamaGenerator_UnreachableHost(t *testing.T) {
	g := NewOllamaGenerator(OllamaGeneratorConfig{
		Host:    "http://127.0.0.1:1",
		Timeout: time.Second,
	})
	defer func() { _ = g.Close() }()

	_, err := g.Generate(context.Background(), "prompt")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProviderUnavailable, apperrors.GetCode(err))
}
