// Package config loads and validates askfolder configuration.
//
// Configuration is resolved in priority order:
//  1. Built-in defaults
//  2. Config file (.askfolder.yaml in the watched folder, or --config)
//  3. Environment variables (ASKFOLDER_*), highest priority
//
// A .env file next to the config file is loaded first so that API keys can
// live outside the YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/askfolder/askfolder/internal/errors"
)

// ConfigFileName is the per-folder config file name.
const ConfigFileName = ".askfolder.yaml"

// Provider types understood by the embedder factory.
const (
	ProviderTypeOllama = "ollama"
	ProviderTypeOpenAI = "openai"
	ProviderTypeHash   = "hash"
)

// Config represents the complete askfolder configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Providers  []ProviderConfig `yaml:"providers" json:"providers"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Generation GenerationConfig `yaml:"generation" json:"generation"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// WatchConfig configures the watched folder and scan behavior.
type WatchConfig struct {
	// Root is the folder to index. Relative paths are resolved against
	// the working directory at load time.
	Root string `yaml:"root" json:"root"`

	// Extensions is the allow-list of file extensions to index.
	Extensions []string `yaml:"extensions" json:"extensions"`

	// Interval is the poll interval between indexing cycles (e.g. "5s").
	Interval string `yaml:"interval" json:"interval"`

	// Workers is the number of files indexed concurrently per cycle.
	Workers int `yaml:"workers" json:"workers"`
}

// ChunkingConfig configures the deterministic text splitter.
type ChunkingConfig struct {
	// TargetSize is the maximum chunk length in bytes.
	TargetSize int `yaml:"target_size" json:"target_size"`
	// Overlap is the number of trailing bytes shared with the next chunk.
	Overlap int `yaml:"overlap" json:"overlap"`
	// MinLength drops chunks shorter than this after trimming.
	MinLength int `yaml:"min_length" json:"min_length"`
}

// ProviderConfig configures one embedding provider. Each enabled provider
// gets its own vector namespace named "<type>/<model>".
type ProviderConfig struct {
	// Name is the label used with --provider on the CLI. Defaults to Type.
	Name string `yaml:"name" json:"name"`
	// Type selects the adapter: ollama, openai, or hash.
	Type string `yaml:"type" json:"type"`
	// Model is the embedding model identifier.
	Model string `yaml:"model" json:"model"`
	// BaseURL is the API endpoint. Defaults per type.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`
	// Dimensions is the vector width. 0 means detect from the first call.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is texts per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Timeout is the per-request timeout (e.g. "60s").
	Timeout string `yaml:"timeout" json:"timeout"`
	// RequestsPerSecond rate-limits outgoing calls. 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	// Default marks the provider used when --provider is not given.
	Default bool `yaml:"default" json:"default"`
}

// Namespace returns the vector namespace key for this provider.
func (p ProviderConfig) Namespace() string {
	return p.Type + "/" + p.Model
}

// TimeoutDuration parses Timeout, falling back to 60s.
func (p ProviderConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(p.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// RetrievalConfig configures answer-time retrieval.
type RetrievalConfig struct {
	// TopK is the number of chunks returned per query.
	TopK int `yaml:"top_k" json:"top_k"`
}

// GenerationConfig configures the answer generator.
type GenerationConfig struct {
	// Model is the Ollama generation model (e.g. "llama3.2").
	Model string `yaml:"model" json:"model"`
	// BaseURL is the Ollama endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Timeout is the per-request timeout (e.g. "120s").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// TimeoutDuration parses Timeout, falling back to 120s.
func (g GenerationConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(g.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// StorageConfig configures on-disk state.
type StorageConfig struct {
	// DataDir holds the SQLite database, vector graphs, and lock file.
	// Defaults to <root>/.askfolder.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	// File overrides the default log path (~/.askfolder/logs/askfolder.log).
	File string `yaml:"file" json:"file"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Watch: WatchConfig{
			Root:       ".",
			Extensions: []string{".txt", ".md", ".pdf"},
			Interval:   "5s",
			Workers:    4,
		},
		Chunking: ChunkingConfig{
			TargetSize: 1000,
			Overlap:    100,
			MinLength:  20,
		},
		Providers: []ProviderConfig{
			{
				Name:      "ollama",
				Type:      ProviderTypeOllama,
				Model:     "nomic-embed-text",
				BaseURL:   "http://localhost:11434",
				BatchSize: 32,
				Timeout:   "60s",
				Default:   true,
			},
		},
		Retrieval: RetrievalConfig{
			TopK: 3,
		},
		Generation: GenerationConfig{
			Model:   "llama3.2",
			BaseURL: "http://localhost:11434",
			Timeout: "120s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load resolves configuration from defaults, an optional YAML file, and
// environment overrides. path may be empty, in which case .askfolder.yaml
// is looked up in the current directory.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = ConfigFileName
	}

	// .env beside the config file, if present. Missing files are fine.
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.New(apperrors.ErrCodeConfigInvalid,
				fmt.Sprintf("parse %s: %v", path, err), err)
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, apperrors.New(apperrors.ErrCodeConfigNotFound,
			fmt.Sprintf("read %s: %v", path, err), err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies ASKFOLDER_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ASKFOLDER_ROOT"); v != "" {
		c.Watch.Root = v
	}
	if v := os.Getenv("ASKFOLDER_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("ASKFOLDER_INTERVAL"); v != "" {
		c.Watch.Interval = v
	}
	if v := os.Getenv("ASKFOLDER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ASKFOLDER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Watch.Workers = n
		}
	}
	if v := os.Getenv("ASKFOLDER_OLLAMA_HOST"); v != "" {
		for i := range c.Providers {
			if c.Providers[i].Type == ProviderTypeOllama {
				c.Providers[i].BaseURL = v
			}
		}
		if c.Generation.BaseURL == "" || strings.Contains(c.Generation.BaseURL, "localhost:11434") {
			c.Generation.BaseURL = v
		}
	}
}

// applyDefaults fills zero-valued fields after file and env merging.
func (c *Config) applyDefaults() {
	defaults := NewConfig()

	if c.Watch.Root == "" {
		c.Watch.Root = defaults.Watch.Root
	}
	if len(c.Watch.Extensions) == 0 {
		c.Watch.Extensions = defaults.Watch.Extensions
	}
	if c.Watch.Interval == "" {
		c.Watch.Interval = defaults.Watch.Interval
	}
	if c.Watch.Workers <= 0 {
		c.Watch.Workers = defaults.Watch.Workers
	}
	if c.Chunking.TargetSize <= 0 {
		c.Chunking.TargetSize = defaults.Chunking.TargetSize
	}
	if c.Chunking.Overlap < 0 {
		c.Chunking.Overlap = defaults.Chunking.Overlap
	}
	if c.Chunking.MinLength <= 0 {
		c.Chunking.MinLength = defaults.Chunking.MinLength
	}
	if len(c.Providers) == 0 {
		c.Providers = defaults.Providers
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Name == "" {
			p.Name = p.Type
		}
		if p.BatchSize <= 0 {
			p.BatchSize = 32
		}
		if p.Timeout == "" {
			p.Timeout = "60s"
		}
		if p.BaseURL == "" {
			switch p.Type {
			case ProviderTypeOllama:
				p.BaseURL = "http://localhost:11434"
			case ProviderTypeOpenAI:
				p.BaseURL = "https://api.openai.com/v1"
			}
		}
		if p.APIKeyEnv == "" && p.Type == ProviderTypeOpenAI {
			p.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = defaults.Retrieval.TopK
	}
	if c.Generation.Model == "" {
		c.Generation.Model = defaults.Generation.Model
	}
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = defaults.Generation.BaseURL
	}
	if c.Generation.Timeout == "" {
		c.Generation.Timeout = defaults.Generation.Timeout
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = filepath.Join(c.Watch.Root, ".askfolder")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
}

// Validate checks the merged configuration for contradictions.
func (c *Config) Validate() error {
	if c.Chunking.Overlap >= c.Chunking.TargetSize {
		return apperrors.ConfigError(fmt.Sprintf(
			"chunking overlap (%d) must be smaller than target size (%d)",
			c.Chunking.Overlap, c.Chunking.TargetSize), nil)
	}

	if _, err := c.IntervalDuration(); err != nil {
		return apperrors.ConfigError(
			fmt.Sprintf("invalid watch interval %q", c.Watch.Interval), err)
	}

	for _, ext := range c.Watch.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return apperrors.ConfigError(
				fmt.Sprintf("extension %q must start with a dot", ext), nil)
		}
	}

	seen := make(map[string]bool)
	defaults := 0
	for _, p := range c.Providers {
		switch p.Type {
		case ProviderTypeOllama, ProviderTypeOpenAI, ProviderTypeHash:
		default:
			return apperrors.New(apperrors.ErrCodeProviderUnknown,
				fmt.Sprintf("unknown provider type %q", p.Type), nil).
				WithSuggestion("supported types: ollama, openai, hash")
		}
		if p.Type != ProviderTypeHash && p.Model == "" {
			return apperrors.ConfigError(
				fmt.Sprintf("provider %q has no model", p.Name), nil)
		}
		if seen[p.Name] {
			return apperrors.ConfigError(
				fmt.Sprintf("duplicate provider name %q", p.Name), nil)
		}
		seen[p.Name] = true
		if p.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return apperrors.ConfigError("more than one provider marked default", nil)
	}

	return nil
}

// IntervalDuration parses the watch interval.
func (c *Config) IntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Watch.Interval)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", d)
	}
	return d, nil
}

// DefaultProvider returns the provider marked default, or the first one.
func (c *Config) DefaultProvider() ProviderConfig {
	for _, p := range c.Providers {
		if p.Default {
			return p
		}
	}
	return c.Providers[0]
}

// ProviderByName looks up a provider by its CLI name.
func (c *Config) ProviderByName(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.DataDir, "askfolder.db")
}

// VectorsDir returns the directory holding per-namespace HNSW graphs.
func (c *Config) VectorsDir() string {
	return filepath.Join(c.Storage.DataDir, "vectors")
}

// LockPath returns the cross-process lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Storage.DataDir, "index.lock")
}
