// Package embed provides vector embedding adapters. Every adapter carries
// an Identity; identical Identity means identical vector space, and the
// Identity's namespace keys the vector index a chunk lands in.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	MinBatchSize = 1
	// MaxBatchSize bounds request size so one oversized batch cannot
	// exhaust memory.
	MaxBatchSize     = 256
	DefaultBatchSize = 32

	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 3

	// HashDimensions is the vector width of the offline hash embedder.
	HashDimensions = 256

	// DefaultCacheSize is the LRU entry count for CachedEmbedder.
	DefaultCacheSize = 10000
)

// Identity pins an embedder to its vector space.
type Identity struct {
	// Provider is the adapter type ("ollama", "openai", "hash").
	Provider string
	// Model is the embedding model identifier.
	Model string
	// Dimensions is the vector width this identity produces.
	Dimensions int
}

// Namespace returns the vector namespace key, "<provider>/<model>".
// Vectors from different namespaces are never comparable.
func (id Identity) Namespace() string {
	return id.Provider + "/" + id.Model
}

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Identity returns the provider/model/dimensions triple.
	Identity() Identity

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector returns v scaled to unit length. Zero vectors come back
// unchanged.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	mag := math.Sqrt(sum)
	if mag == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out
}
