package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWStore wraps one coder/hnsw graph with string chunk IDs and atomic
// disk persistence. One HNSWStore serves exactly one namespace.
//
// Deletion is lazy: coder/hnsw misbehaves when the last node of a graph is
// removed, so nodes are never taken out of the graph. Instead the ID
// mapping is dropped, the node becomes an orphan, and orphans are reclaimed
// whenever the graph is rebuilt from SQLite.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig
	closed bool

	ids  map[string]uint64 // chunk ID -> graph key
	back map[uint64]string // graph key -> chunk ID, orphans absent
	next uint64
}

// hnswMeta is the gob sidecar persisted next to the graph file.
type hnswMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

// NewHNSWStore builds an empty graph for the given configuration.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	if cfg.Metric == "l2" {
		g.Distance = hnsw.EuclideanDistance
	}
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25

	return &HNSWStore{
		graph:  g,
		config: cfg,
		ids:    make(map[string]uint64),
		back:   make(map[uint64]string),
	}, nil
}

// Add inserts vectors under their IDs. Re-adding an ID orphans its previous
// node and inserts a fresh one.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if old, ok := s.ids[id]; ok {
			delete(s.back, old)
		}

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		key := s.next
		s.next++
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.ids[id] = key
		s.back[key] = id
	}
	return nil
}

// Delete unmaps IDs so they stop appearing in results. Unknown IDs are
// ignored.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, id := range ids {
		if key, ok := s.ids[id]; ok {
			delete(s.back, key)
			delete(s.ids, id)
		}
	}
	return nil
}

// Search returns up to k live nearest neighbors of query. Orphaned nodes
// coming back from the graph are filtered out here, so callers wanting
// exactly k results should over-fetch.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(q)
	}

	var out []*VectorResult
	for _, node := range s.graph.Search(q, k) {
		id, live := s.back[node.Key]
		if !live {
			continue
		}
		d := s.graph.Distance(q, node.Value)
		out = append(out, &VectorResult{
			ID:       id,
			Distance: d,
			Score:    distanceToScore(d, s.config.Metric),
		})
	}
	return out, nil
}

// AllIDs returns every live vector ID, used for consistency checking.
func (s *HNSWStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}

	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

// Contains reports whether an ID is live.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.ids)
}

// Dimensions returns the configured vector width.
func (s *HNSWStore) Dimensions() int {
	return s.config.Dimensions
}

// HNSWStats describes graph occupancy.
type HNSWStats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

// Stats reports live IDs versus graph nodes. The difference is the orphan
// count accumulated through lazy deletion.
func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return HNSWStats{}
	}
	return HNSWStats{
		ValidIDs:   len(s.ids),
		GraphNodes: s.graph.Len(),
		Orphans:    s.graph.Len() - len(s.ids),
	}
}

// Save persists the graph to path and the ID mapping to path+".meta", each
// written to a temp file and renamed into place.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vectors directory: %w", err)
	}

	err := writeAtomic(path, func(f *os.File) error {
		return s.graph.Export(f)
	})
	if err != nil {
		return fmt.Errorf("export graph: %w", err)
	}

	err = writeAtomic(path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(hnswMeta{
			IDMap:   s.ids,
			NextKey: s.next,
			Config:  s.config,
		})
	})
	if err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

// writeAtomic writes via fill into path+".tmp" and renames it over path.
func writeAtomic(path string, fill func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load restores the graph and ID mapping saved by Save.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	mf, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	var meta hnswMeta
	err = gob.NewDecoder(mf).Decode(&meta)
	_ = mf.Close()
	if err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	gf, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open graph file: %w", err)
	}
	defer func() { _ = gf.Close() }()

	// coder/hnsw Import requires an io.ByteReader
	if err := s.graph.Import(bufio.NewReader(gf)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.ids = meta.IDMap
	s.back = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		s.back[key] = id
	}
	s.next = meta.NextKey
	s.config = meta.Config
	return nil
}

// Close marks the store closed. The graph stays in memory until GC.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// normalizeVectorInPlace scales v to unit length.
func normalizeVectorInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	mag := math.Sqrt(sum)
	if mag == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / mag)
	}
}

// distanceToScore maps a metric distance to a similarity in [0,1].
func distanceToScore(distance float32, metric string) float32 {
	if metric == "cos" {
		// Cosine distance over normalized vectors lies in [0,2]
		score := 1 - distance/2
		if score < 0 {
			return 0
		}
		if score > 1 {
			return 1
		}
		return score
	}
	return 1 / (1 + distance)
}
