// Package store persists indexing state: source-file fingerprints and chunk
// rows in SQLite (the source of truth), and one HNSW graph per vector
// namespace for approximate nearest neighbor search. The graphs are always
// rebuildable from the chunk rows, so losing a graph never costs an
// embedding call.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// SourceFile is the per-file index record.
type SourceFile struct {
	// Path is relative to the watched folder root.
	Path string
	// Fingerprint is hex(sha256(content || mtime)).
	Fingerprint string
	// Size is the file size in bytes at index time.
	Size int64
	// ModTime is the file modification time at index time.
	ModTime time.Time
	// IndexedAt is when the file was last (re)indexed.
	IndexedAt time.Time
}

// Chunk is one embedded slice of a source file in one namespace.
type Chunk struct {
	ID          string
	Path        string
	Namespace   string
	Seq         int
	Page        int
	StartOffset int
	EndOffset   int
	Text        string
	// Vector is the persisted embedding. Kept alongside the text so HNSW
	// graphs can be rebuilt without re-embedding.
	Vector []float32
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string
	Score    float32 // similarity in [0,1], higher is better
	Distance float32 // raw metric distance
}

// VectorStoreConfig configures one HNSW graph.
type VectorStoreConfig struct {
	// Dimensions is the vector width. All vectors in a graph share it.
	Dimensions int
	// Metric is "cos" or "l2".
	Metric string
	// M is the HNSW connectivity parameter.
	M int
	// EfSearch is the HNSW search expansion factor.
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   20,
	}
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// FingerprintStore is the persistent record of what has been indexed.
type FingerprintStore interface {
	// GetFile returns the record for path, or nil if never indexed.
	GetFile(ctx context.Context, path string) (*SourceFile, error)

	// ListFiles returns all indexed file records.
	ListFiles(ctx context.Context) ([]*SourceFile, error)

	// ChunkIDsByFile returns the chunk IDs for a path grouped by namespace.
	ChunkIDsByFile(ctx context.Context, path string) (map[string][]string, error)

	// ReplaceFileChunks atomically upserts the file record and swaps all of
	// its chunk rows (across every namespace) for the given set.
	ReplaceFileChunks(ctx context.Context, file *SourceFile, chunks []*Chunk) error

	// RemoveFile deletes the file record and its chunks, returning the
	// removed chunk IDs grouped by namespace.
	RemoveFile(ctx context.Context, path string) (map[string][]string, error)

	// InvalidateFile clears a file's stored fingerprint so the next cycle
	// re-indexes it. Chunk rows are left in place. Unknown paths are a
	// no-op.
	InvalidateFile(ctx context.Context, path string) error

	// GetChunks fetches chunk rows by ID. Missing IDs are silently absent.
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)

	// Namespaces returns all registered namespaces with their dimensions.
	Namespaces(ctx context.Context) (map[string]int, error)

	// EnsureNamespace registers a namespace's dimensions, failing if it is
	// already registered with different dimensions.
	EnsureNamespace(ctx context.Context, namespace string, dimensions int) error

	// EmbeddingsByNamespace streams all (id, vector) pairs of a namespace,
	// used to rebuild a lost HNSW graph.
	EmbeddingsByNamespace(ctx context.Context, namespace string) (map[string][]float32, error)

	// CountChunks returns per-namespace chunk counts.
	CountChunks(ctx context.Context) (map[string]int, error)

	// Close releases the underlying database.
	Close() error
}

// Fingerprint derives the change-detection fingerprint for file content and
// its modification time. Touch without edit changes mtime and therefore the
// fingerprint; the embedding cache keeps the cost of that re-index low.
func Fingerprint(content []byte, modTime time.Time) string {
	h := sha256.New()
	h.Write(content)
	h.Write([]byte(strconv.FormatInt(modTime.UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}
