package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	// Given no config file in an empty directory
	dir := t.TempDir()

	cfg, err := Load(filepath.Join(dir, ConfigFileName))
	require.NoError(t, err)

	// Then defaults apply
	assert.Equal(t, 1000, cfg.Chunking.TargetSize)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, []string{".txt", ".md", ".pdf"}, cfg.Watch.Extensions)

	interval, err := cfg.IntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, interval)

	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "ollama/nomic-embed-text", cfg.Providers[0].Namespace())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	yaml := `
watch:
  root: ` + dir + `
  interval: 30s
chunking:
  target_size: 500
providers:
  - name: local
    type: hash
    default: true
  - name: remote
    type: openai
    model: text-embedding-3-small
retrieval:
  top_k: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Chunking.TargetSize)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "local", cfg.DefaultProvider().Name)

	// Unspecified provider fields get per-type defaults
	remote, ok := cfg.ProviderByName("remote")
	require.True(t, ok)
	assert.Equal(t, "https://api.openai.com/v1", remote.BaseURL)
	assert.Equal(t, "OPENAI_API_KEY", remote.APIKeyEnv)
	assert.Equal(t, 32, remote.BatchSize)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("watch:\n  interval: 30s\n"), 0o644))

	t.Setenv("ASKFOLDER_INTERVAL", "2s")
	t.Setenv("ASKFOLDER_WORKERS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	interval, err := cfg.IntervalDuration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, interval)
	assert.Equal(t, 8, cfg.Watch.Workers)
}

func TestValidateRejectsOverlapAtOrAboveTargetSize(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunking.TargetSize = 100
	cfg.Chunking.Overlap = 100

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")
}

func TestValidateRejectsUnknownProviderType(t *testing.T) {
	cfg := NewConfig()
	cfg.Providers = append(cfg.Providers, ProviderConfig{Name: "x", Type: "chroma", Model: "m"})

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider type")
}

func TestValidateRejectsDuplicateProviderNames(t *testing.T) {
	cfg := NewConfig()
	cfg.Providers = []ProviderConfig{
		{Name: "a", Type: ProviderTypeHash},
		{Name: "a", Type: ProviderTypeOllama, Model: "nomic-embed-text"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate provider name")
}

func TestDataDirDefaultsUnderRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("watch:\n  root: "+dir+"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, ".askfolder"), cfg.Storage.DataDir)
	assert.Equal(t, filepath.Join(dir, ".askfolder", "askfolder.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(dir, ".askfolder", "vectors"), cfg.VectorsDir())
}
