package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/askfolder/askfolder/internal/errors"
)

// Ollama defaults.
const (
	DefaultOllamaHost = "http://localhost:11434"
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host       string
	Model      string
	Dimensions int // 0 = detect from the first embedding
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
	// RequestsPerSecond rate-limits API calls. 0 disables limiting.
	RequestsPerSecond float64
	// SkipHealthCheck skips the connect/dimension probe (tests).
	SkipHealthCheck bool
}

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	limiter   *rate.Limiter
	dims      int

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Embedder = (*OllamaEmbedder)(nil)

// ollamaEmbedRequest is the /api/embed request body. Input may be a string
// or a list of strings.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// ollamaEmbedResponse is the /api/embed response body.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates a new Ollama embedder.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		return nil, apperrors.ConfigError("ollama embedder needs a model", nil)
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
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     10 * time.Second,
	}

	// No http.Client.Timeout: per-request context timeouts control the
	// deadline so cancellation from the indexing cycle propagates.
	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}
	if cfg.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	if !cfg.SkipHealthCheck && e.dims == 0 {
		dims, err := e.detectDimensions(ctx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
		e.dims = dims
	}

	return e, nil
}

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, preserving order.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.embedBatchOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// embedBatchOnce sends one /api/embed request with retries. Empty texts get
// zero vectors without a round trip.
func (e *OllamaEmbedder) embedBatchOnce(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	nonEmpty := 0
	for i, t := range texts {
		input[i] = strings.TrimSpace(t)
		if input[i] != "" {
			nonEmpty++
		}
	}

	if nonEmpty == 0 {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = make([]float32, e.dims)
		}
		return out, nil
	}

	cfg := apperrors.RetryConfig{
		MaxRetries:   e.config.MaxRetries,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}

	return apperrors.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		return e.doEmbed(ctx, input)
	})
}

// doEmbed performs a single /api/embed call.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, input []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, apperrors.New(apperrors.ErrCodeProviderTimeout,
				fmt.Sprintf("ollama embed timed out after %s", e.config.Timeout), err)
		}
		return nil, apperrors.ProviderUnavailable(
			fmt.Sprintf("ollama at %s unreachable", e.config.Host), err).
			WithSuggestion("is `ollama serve` running?")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, apperrors.RateLimited("ollama returned 429", nil)
		case resp.StatusCode >= 500:
			return nil, apperrors.ProviderUnavailable(
				fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, raw), nil)
		default:
			return nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, raw), nil)
		}
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) != len(input) {
		return nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("ollama returned %d embeddings for %d inputs",
				len(result.Embeddings), len(input)), nil)
	}

	out := make([][]float32, len(result.Embeddings))
	for i, v := range result.Embeddings {
		if e.dims > 0 && len(v) != e.dims {
			return nil, apperrors.New(apperrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("ollama returned %d dims, expected %d", len(v), e.dims), nil)
		}
		out[i] = normalizeVector(v)
	}
	return out, nil
}

// detectDimensions probes the model with a short text.
func (e *OllamaEmbedder) detectDimensions(ctx context.Context) (int, error) {
	vecs, err := e.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, fmt.Errorf("detect dimensions for %s: %w", e.config.Model, err)
	}
	return len(vecs[0]), nil
}

// Identity returns the provider/model/dimensions triple.
func (e *OllamaEmbedder) Identity() Identity {
	return Identity{Provider: "ollama", Model: e.config.Model, Dimensions: e.dims}
}

// Available checks connectivity to the Ollama host.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases HTTP resources.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
