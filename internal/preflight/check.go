// Package preflight validates the environment before indexing: the watched
// folder, the data directory, disk space, and provider reachability.
package preflight

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/askfolder/askfolder/internal/config"
	"github.com/askfolder/askfolder/internal/embed"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker performs environment checks for a configuration.
type Checker struct {
	output io.Writer
	client *http.Client
}

// Option configures a Checker.
type Option func(*Checker)

// WithOutput sets the output writer for PrintResults.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output: os.Stdout,
		client: &http.Client{Timeout: 3 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against the loaded configuration and the
// embedders that came up. Unreachable providers are warnings, not
// failures, because the indexer retries them each cycle.
func (c *Checker) RunAll(ctx context.Context, cfg *config.Config, embedders map[string]embed.Embedder) []CheckResult {
	results := []CheckResult{
		c.CheckWatchedRoot(cfg.Watch.Root, cfg.Watch.Extensions),
		c.CheckDataDir(cfg.Storage.DataDir),
		c.CheckDiskSpace(cfg.Storage.DataDir),
	}

	names := make([]string, 0, len(embedders))
	for name := range embedders {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		results = append(results, c.CheckProvider(ctx, name, embedders[name]))
	}

	results = append(results, c.CheckGeneration(ctx, cfg.Generation.BaseURL, cfg.Generation.Model))
	return results
}

// CheckWatchedRoot verifies the watched folder exists and contains at
// least one supported file.
func (c *Checker) CheckWatchedRoot(root string, extensions []string) CheckResult {
	result := CheckResult{Name: "watched_folder", Required: true}

	info, err := os.Stat(root)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot access %s: %v", root, err)
		return result
	}
	if !info.IsDir() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not a directory", root)
		return result
	}

	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = true
	}
	found := 0
	entries, _ := os.ReadDir(root)
	for _, e := range entries {
		if !e.IsDir() && allowed[strings.ToLower(filepath.Ext(e.Name()))] {
			found++
		}
	}

	if found == 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("no %s files at the top of %s (subfolders are still scanned)",
			strings.Join(extensions, "/"), root)
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d supported files at top level)", root, found)
	return result
}

// CheckDataDir verifies the data directory can be created and written.
func (c *Checker) CheckDataDir(dataDir string) CheckResult {
	result := CheckResult{Name: "data_directory", Required: true}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dataDir, err)
		return result
	}
	testFile := filepath.Join(dataDir, ".preflight-test")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot write to %s: %v", dataDir, err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = dataDir
	return result
}

// CheckProvider reports whether an embedder answers its health probe.
func (c *Checker) CheckProvider(ctx context.Context, name string, e embed.Embedder) CheckResult {
	result := CheckResult{Name: "provider_" + name}

	identity := e.Identity()
	if !e.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not reachable, files will be retried each cycle",
			identity.Namespace())
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dimensions)", identity.Namespace(), identity.Dimensions)
	return result
}

// CheckGeneration probes the answer-generation endpoint.
func (c *Checker) CheckGeneration(ctx context.Context, baseURL, model string) CheckResult {
	result := CheckResult{Name: "generation"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("invalid generation endpoint %s", baseURL)
		return result
	}
	resp, err := c.client.Do(req)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not reachable, `ask` will fail until it is", baseURL)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s returned %d", baseURL, resp.StatusCode)
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (model %s)", baseURL, model)
	return result
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
	}

	var failures int
	for _, r := range results {
		if r.IsCritical() {
			failures++
		}
	}
	if failures > 0 {
		_, _ = fmt.Fprintf(c.output, "\n%d critical failure(s), fix these before indexing\n", failures)
		return
	}
	_, _ = fmt.Fprintln(c.output, "\nReady.")
}
