package store

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConsistencyCleanState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.EnsureNamespace(ctx, "hash/hash-256", 4))
	require.NoError(t, s.ReplaceFileChunks(ctx, testFile("a.txt"), []*Chunk{
		testChunk("c1", "a.txt", "hash/hash-256", 0),
	}))

	idx := NewNamespacedIndex(t.TempDir(), slog.Default())
	require.NoError(t, idx.Upsert(ctx, "hash/hash-256", 4,
		[]string{"c1"}, [][]float32{{0, 1, 0, 0}}))

	reports, err := CheckConsistency(ctx, s, idx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Consistent())
}

func TestCheckConsistencyFindsDivergence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.EnsureNamespace(ctx, "hash/hash-256", 4))
	require.NoError(t, s.ReplaceFileChunks(ctx, testFile("a.txt"), []*Chunk{
		testChunk("in-db-only", "a.txt", "hash/hash-256", 0),
	}))

	idx := NewNamespacedIndex(t.TempDir(), slog.Default())
	require.NoError(t, idx.Upsert(ctx, "hash/hash-256", 4,
		[]string{"in-graph-only"}, [][]float32{{0, 1, 0, 0}}))

	reports, err := CheckConsistency(ctx, s, idx)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	assert.Equal(t, []string{"in-db-only"}, reports[0].MissingFromGraph)
	assert.Equal(t, []string{"in-graph-only"}, reports[0].OrphanedInGraph)
}

func TestRepairConsistencyRebuildsFromDatabase(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.EnsureNamespace(ctx, "hash/hash-256", 4))
	require.NoError(t, s.ReplaceFileChunks(ctx, testFile("a.txt"), []*Chunk{
		testChunk("c1", "a.txt", "hash/hash-256", 0),
		testChunk("c2", "a.txt", "hash/hash-256", 1),
	}))

	// Given a graph holding stale state
	idx := NewNamespacedIndex(t.TempDir(), slog.Default())
	require.NoError(t, idx.Upsert(ctx, "hash/hash-256", 4,
		[]string{"stale"}, [][]float32{{1, 0, 0, 0}}))

	// When repaired
	require.NoError(t, RepairConsistency(ctx, s, idx, slog.Default()))

	// Then the graph matches SQLite exactly
	assert.ElementsMatch(t, []string{"c1", "c2"}, idx.AllIDs("hash/hash-256"))

	reports, err := CheckConsistency(ctx, s, idx)
	require.NoError(t, err)
	for _, r := range reports {
		assert.True(t, r.Consistent())
	}
}
