package embed

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askfolder/askfolder/internal/config"
	apperrors "github.com/askfolder/askfolder/internal/errors"
)

func TestNewHashProvider(t *testing.T) {
	e, err := New(context.Background(), config.ProviderConfig{
		Name: "local",
		Type: config.ProviderTypeHash,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "hash/hash-256", e.Identity().Namespace())
	// Factory output is always cache-wrapped
	_, ok := e.(*CachedEmbedder)
	assert.True(t, ok)
}

func TestNewUnknownProviderType(t *testing.T) {
	_, err := New(context.Background(), config.ProviderConfig{Name: "x", Type: "chroma"})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProviderUnknown, apperrors.GetCode(err))
}

func TestNewOpenAIWithoutKeyFailsFast(t *testing.T) {
	t.Setenv("ASKFOLDER_TEST_MISSING_KEY", "")

	_, err := New(context.Background(), config.ProviderConfig{
		Name:      "remote",
		Type:      config.ProviderTypeOpenAI,
		Model:     "text-embedding-3-small",
		APIKeyEnv: "ASKFOLDER_TEST_MISSING_KEY",
	})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProviderCredentials, apperrors.GetCode(err))
}

func TestBuildAllSkipsBrokenProviders(t *testing.T) {
	logger := slog.Default()

	embedders, err := BuildAll(context.Background(), []config.ProviderConfig{
		{Name: "local", Type: config.ProviderTypeHash},
		{Name: "remote", Type: config.ProviderTypeOpenAI, Model: "m", APIKeyEnv: "ASKFOLDER_NO_SUCH_KEY"},
	}, logger)
	require.NoError(t, err)

	// The broken provider is skipped, the working one survives
	assert.Len(t, embedders, 1)
	assert.Contains(t, embedders, "local")
}

func TestBuildAllFailsWhenNothingComesUp(t *testing.T) {
	_, err := BuildAll(context.Background(), []config.ProviderConfig{
		{Name: "remote", Type: config.ProviderTypeOpenAI, Model: "m", APIKeyEnv: "ASKFOLDER_NO_SUCH_KEY"},
	}, slog.Default())

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConfigInvalid, apperrors.GetCode(err))
}
