package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// NamespacedIndex manages one HNSW graph per vector namespace. Namespaces
// are fully isolated: a query runs against exactly one graph, and deleting
// a chunk in one namespace never touches another.
type NamespacedIndex struct {
	mu     sync.RWMutex
	dir    string
	graphs map[string]*HNSWStore
	logger *slog.Logger
}

// NewNamespacedIndex creates an index persisting graphs under dir.
func NewNamespacedIndex(dir string, logger *slog.Logger) *NamespacedIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &NamespacedIndex{
		dir:    dir,
		graphs: make(map[string]*HNSWStore),
		logger: logger,
	}
}

// graphPath maps a namespace to its on-disk file. The "/" in
// "provider/model" becomes "__" so the whole namespace stays one filename.
func (n *NamespacedIndex) graphPath(namespace string) string {
	sanitized := strings.NewReplacer("/", "__", string(os.PathSeparator), "__").Replace(namespace)
	return filepath.Join(n.dir, sanitized+".hnsw")
}

// Ensure returns the graph for a namespace, creating it with the given
// dimensions when it does not exist yet.
func (n *NamespacedIndex) Ensure(namespace string, dimensions int) (*HNSWStore, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ensureLocked(namespace, dimensions)
}

func (n *NamespacedIndex) ensureLocked(namespace string, dimensions int) (*HNSWStore, error) {
	if g, ok := n.graphs[namespace]; ok {
		if g.Dimensions() != dimensions {
			return nil, ErrDimensionMismatch{Expected: g.Dimensions(), Got: dimensions}
		}
		return g, nil
	}

	g, err := NewHNSWStore(DefaultVectorStoreConfig(dimensions))
	if err != nil {
		return nil, fmt.Errorf("create graph for %s: %w", namespace, err)
	}
	n.graphs[namespace] = g
	return g, nil
}

// Upsert adds or replaces vectors in a namespace, creating the graph on
// first use.
func (n *NamespacedIndex) Upsert(ctx context.Context, namespace string, dimensions int, ids []string, vectors [][]float32) error {
	g, err := n.Ensure(namespace, dimensions)
	if err != nil {
		return err
	}
	return g.Add(ctx, ids, vectors)
}

// Delete removes vectors from a namespace. Unknown namespaces are a no-op,
// matching the removal path where a provider was deconfigured after chunks
// were written.
func (n *NamespacedIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	n.mu.RLock()
	g, ok := n.graphs[namespace]
	n.mu.RUnlock()
	if !ok {
		return nil
	}
	return g.Delete(ctx, ids)
}

// Query searches one namespace. An unknown namespace yields no results.
func (n *NamespacedIndex) Query(ctx context.Context, namespace string, query []float32, k int) ([]*VectorResult, error) {
	n.mu.RLock()
	g, ok := n.graphs[namespace]
	n.mu.RUnlock()
	if !ok {
		return []*VectorResult{}, nil
	}
	return g.Search(ctx, query, k)
}

// AllIDs returns the live IDs of a namespace.
func (n *NamespacedIndex) AllIDs(namespace string) []string {
	n.mu.RLock()
	g, ok := n.graphs[namespace]
	n.mu.RUnlock()
	if !ok {
		return nil
	}
	return g.AllIDs()
}

// Contains reports whether a namespace currently holds the given ID.
func (n *NamespacedIndex) Contains(namespace, id string) bool {
	n.mu.RLock()
	g, ok := n.graphs[namespace]
	n.mu.RUnlock()
	if !ok {
		return false
	}
	return g.Contains(id)
}

// Count returns live vector counts per namespace.
func (n *NamespacedIndex) Count() map[string]int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make(map[string]int, len(n.graphs))
	for ns, g := range n.graphs {
		out[ns] = g.Count()
	}
	return out
}

// SaveAll persists every loaded graph.
func (n *NamespacedIndex) SaveAll() error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ns, g := range n.graphs {
		if err := g.Save(n.graphPath(ns)); err != nil {
			return fmt.Errorf("save namespace %s: %w", ns, err)
		}
	}
	return nil
}

// LoadOrRebuild brings every namespace registered in the fingerprint store
// into memory. A graph is loaded from disk when its file is intact and its
// live count matches SQLite; otherwise it is rebuilt from the persisted
// embeddings, which costs no provider calls.
func (n *NamespacedIndex) LoadOrRebuild(ctx context.Context, fs FingerprintStore) error {
	namespaces, err := fs.Namespaces(ctx)
	if err != nil {
		return fmt.Errorf("list namespaces: %w", err)
	}
	counts, err := fs.CountChunks(ctx)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for ns, dims := range namespaces {
		g, err := NewHNSWStore(DefaultVectorStoreConfig(dims))
		if err != nil {
			return err
		}

		path := n.graphPath(ns)
		if err := g.Load(path); err == nil && g.Count() == counts[ns] {
			n.graphs[ns] = g
			n.logger.Debug("loaded vector graph",
				slog.String("namespace", ns), slog.Int("vectors", g.Count()))
			continue
		}

		rebuilt, err := n.rebuildLocked(ctx, fs, ns, dims)
		if err != nil {
			return err
		}
		n.graphs[ns] = rebuilt
		n.logger.Info("rebuilt vector graph from database",
			slog.String("namespace", ns), slog.Int("vectors", rebuilt.Count()))
	}

	return nil
}

// Rebuild discards a namespace's graph and reconstructs it from SQLite.
func (n *NamespacedIndex) Rebuild(ctx context.Context, fs FingerprintStore, namespace string, dimensions int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	g, err := n.rebuildLocked(ctx, fs, namespace, dimensions)
	if err != nil {
		return err
	}
	n.graphs[namespace] = g
	return nil
}

func (n *NamespacedIndex) rebuildLocked(ctx context.Context, fs FingerprintStore, namespace string, dimensions int) (*HNSWStore, error) {
	embeddings, err := fs.EmbeddingsByNamespace(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("read embeddings for %s: %w", namespace, err)
	}

	g, err := NewHNSWStore(DefaultVectorStoreConfig(dimensions))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(embeddings))
	vectors := make([][]float32, 0, len(embeddings))
	for id, v := range embeddings {
		ids = append(ids, id)
		vectors = append(vectors, v)
	}
	if err := g.Add(ctx, ids, vectors); err != nil {
		return nil, fmt.Errorf("rebuild %s: %w", namespace, err)
	}
	return g, nil
}

// Close closes all graphs.
func (n *NamespacedIndex) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, g := range n.graphs {
		_ = g.Close()
	}
	n.graphs = make(map[string]*HNSWStore)
	return nil
}
