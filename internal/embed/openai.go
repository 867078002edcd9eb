package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/askfolder/askfolder/internal/errors"
)

// OpenAI-compatible defaults.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
// Anything speaking the /v1/embeddings protocol works (OpenAI, vLLM,
// LM Studio, text-embeddings-inference).
type OpenAIConfig struct {
	BaseURL    string
	Model      string
	APIKeyEnv  string // environment variable holding the key
	Dimensions int    // 0 = detect from the first embedding
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
	// RequestsPerSecond rate-limits API calls. 0 disables limiting.
	RequestsPerSecond float64
}

// OpenAIEmbedder generates embeddings via the /v1/embeddings API.
type OpenAIEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OpenAIConfig
	apiKey    string
	limiter   *rate.Limiter

	mu     sync.RWMutex
	closed bool
	dims   int
}

// Verify interface implementation at compile time
var _ Embedder = (*OpenAIEmbedder)(nil)

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIEmbedder creates a new OpenAI-compatible embedder. The API key
// is resolved from cfg.APIKeyEnv at construction; a missing key fails fast
// so the provider is skipped rather than failing every cycle.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		return nil, apperrors.ConfigError("openai embedder needs a model", nil)
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
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

	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, apperrors.New(apperrors.ErrCodeProviderCredentials,
			fmt.Sprintf("environment variable %s is not set", cfg.APIKeyEnv), nil).
			WithSuggestion("export the key or put it in .env next to .askfolder.yaml")
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}

	e := &OpenAIEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		apiKey:    apiKey,
		dims:      cfg.Dimensions,
	}
	if cfg.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return e, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, preserving order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return nil, nil
	}

	cfg := apperrors.RetryConfig{
		MaxRetries:   e.config.MaxRetries,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vecs, err := apperrors.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
			return e.doEmbed(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// doEmbed performs a single /v1/embeddings call.
func (e *OpenAIEmbedder) doEmbed(ctx context.Context, input []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(openAIEmbedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		e.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, apperrors.New(apperrors.ErrCodeProviderTimeout,
				fmt.Sprintf("embeddings request timed out after %s", e.config.Timeout), err)
		}
		return nil, apperrors.ProviderUnavailable(
			fmt.Sprintf("embeddings endpoint %s unreachable", e.config.BaseURL), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			ae := apperrors.RateLimited(
				fmt.Sprintf("embeddings endpoint returned 429: %s", raw), nil)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				ae = ae.WithDetail("retry_after", ra)
			}
			return nil, ae
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, apperrors.New(apperrors.ErrCodeProviderCredentials,
				"embeddings endpoint rejected the API key", nil)
		case resp.StatusCode >= 500:
			return nil, apperrors.ProviderUnavailable(
				fmt.Sprintf("embeddings endpoint returned %d: %s", resp.StatusCode, raw), nil)
		default:
			return nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("embeddings endpoint returned %d: %s", resp.StatusCode, raw), nil)
		}
	}

	var result openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(result.Data) != len(input) {
		return nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("endpoint returned %d embeddings for %d inputs",
				len(result.Data), len(input)), nil)
	}

	out := make([][]float32, len(input))
	for _, item := range result.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, apperrors.New(apperrors.ErrCodeEmbeddingFailed,
				"endpoint returned out-of-range index "+strconv.Itoa(item.Index), nil)
		}
		out[item.Index] = normalizeVector(item.Embedding)
	}

	e.mu.Lock()
	if e.dims == 0 && len(out) > 0 && len(out[0]) > 0 {
		e.dims = len(out[0])
	}
	dims := e.dims
	e.mu.Unlock()

	for _, v := range out {
		if len(v) != dims {
			return nil, apperrors.New(apperrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("endpoint returned %d dims, expected %d", len(v), dims), nil)
		}
	}
	return out, nil
}

// Identity returns the provider/model/dimensions triple.
func (e *OpenAIEmbedder) Identity() Identity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Identity{Provider: "openai", Model: e.config.Model, Dimensions: e.dims}
}

// Available reports readiness. Credentials were checked at construction;
// connectivity failures surface per call, so this only reflects Close.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases HTTP resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
