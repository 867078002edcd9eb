package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/askfolder/askfolder/internal/config"
	apperrors "github.com/askfolder/askfolder/internal/errors"
)

// New constructs the embedder described by a provider config entry,
// wrapped in an LRU cache.
func New(ctx context.Context, cfg config.ProviderConfig) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch cfg.Type {
	case config.ProviderTypeOllama:
		inner, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:              cfg.BaseURL,
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			BatchSize:         cfg.BatchSize,
			Timeout:           cfg.TimeoutDuration(),
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	case config.ProviderTypeOpenAI:
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			APIKeyEnv:         cfg.APIKeyEnv,
			Dimensions:        cfg.Dimensions,
			BatchSize:         cfg.BatchSize,
			Timeout:           cfg.TimeoutDuration(),
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
	case config.ProviderTypeHash:
		inner = NewHashEmbedder()
	default:
		return nil, apperrors.New(apperrors.ErrCodeProviderUnknown,
			fmt.Sprintf("unknown provider type %q", cfg.Type), nil)
	}
	if err != nil {
		return nil, err
	}

	return NewCachedEmbedder(inner, DefaultCacheSize)
}

// BuildAll constructs embedders for every configured provider, keyed by
// provider name. A provider that fails to construct (endpoint down, missing
// credentials) is logged and skipped; the rest of the pipeline keeps
// working with the providers that did come up. At least one must succeed.
func BuildAll(ctx context.Context, providers []config.ProviderConfig, logger *slog.Logger) (map[string]Embedder, error) {
	out := make(map[string]Embedder, len(providers))

	for _, p := range providers {
		e, err := New(ctx, p)
		if err != nil {
			logger.Warn("skipping embedding provider",
				slog.String("provider", p.Name),
				slog.String("namespace", p.Namespace()),
				slog.String("error", err.Error()))
			continue
		}
		out[p.Name] = e
		logger.Info("embedding provider ready",
			slog.String("provider", p.Name),
			slog.String("namespace", e.Identity().Namespace()),
			slog.Int("dimensions", e.Identity().Dimensions))
	}

	if len(out) == 0 {
		return nil, apperrors.ConfigError("no embedding provider could be initialized", nil).
			WithSuggestion("check provider endpoints and credentials in .askfolder.yaml")
	}
	return out, nil
}
