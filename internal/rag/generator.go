package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/askfolder/askfolder/internal/errors"
)

// Generation defaults.
const (
	DefaultGenerateModel   = "llama3.2"
	DefaultGenerateTimeout = 120 * time.Second
)

// Generator produces an answer from a fully assembled prompt.
type Generator interface {
	// Generate returns the model's completion for the prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Model identifies the generation model for display.
	Model() string
}

// OllamaGeneratorConfig configures the Ollama generator.
type OllamaGeneratorConfig struct {
	Host    string
	Model   string
	Timeout time.Duration
}

// OllamaGenerator answers prompts through Ollama's /api/generate endpoint.
type OllamaGenerator struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaGeneratorConfig
}

var _ Generator = (*OllamaGenerator)(nil)

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaGenerator creates a generator over the configured Ollama host.
func NewOllamaGenerator(cfg OllamaGeneratorConfig) *OllamaGenerator {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGenerateModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGenerateTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        2,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     10 * time.Second,
	}
	return &OllamaGenerator{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}
}

// Generate performs one non-streaming /api/generate call.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  g.config.Model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		g.config.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", apperrors.New(apperrors.ErrCodeProviderTimeout,
				fmt.Sprintf("generation timed out after %s", g.config.Timeout), err)
		}
		return "", apperrors.ProviderUnavailable(
			fmt.Sprintf("ollama at %s unreachable", g.config.Host), err).
			WithSuggestion("is `ollama serve` running?")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", apperrors.RateLimited("ollama returned 429", nil)
		}
		return "", apperrors.New(apperrors.ErrCodeGenerateFailed,
			fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, raw), nil)
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}

	answer := strings.TrimSpace(result.Response)
	if answer == "" {
		return "", apperrors.New(apperrors.ErrCodeGenerateFailed,
			"model returned an empty answer", nil)
	}
	return answer, nil
}

// Model identifies the generation model for display.
func (g *OllamaGenerator) Model() string { return g.config.Model }

// Close releases HTTP resources.
func (g *OllamaGenerator) Close() error {
	g.transport.CloseIdleConnections()
	return nil
}
