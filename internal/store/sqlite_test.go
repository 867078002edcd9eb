package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/askfolder/askfolder/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "askfolder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testFile(path string) *SourceFile {
	now := time.Now()
	return &SourceFile{
		Path:        path,
		Fingerprint: Fingerprint([]byte("content of "+path), now),
		Size:        42,
		ModTime:     now,
		IndexedAt:   now,
	}
}

func testChunk(id, path, ns string, seq int) *Chunk {
	return &Chunk{
		ID:          id,
		Path:        path,
		Namespace:   ns,
		Seq:         seq,
		Page:        1,
		StartOffset: seq * 10,
		EndOffset:   seq*10 + 9,
		Text:        "chunk " + id,
		Vector:      []float32{float32(seq), 1, 0, 0},
	}
}

func TestGetFileAbsent(t *testing.T) {
	s := newTestStore(t)

	f, err := s.GetFile(context.Background(), "never/indexed.txt")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestReplaceFileChunksRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNamespace(ctx, "hash/hash-256", 4))

	// Given a file with two chunks
	file := testFile("docs/a.txt")
	chunks := []*Chunk{
		testChunk("c1", "docs/a.txt", "hash/hash-256", 0),
		testChunk("c2", "docs/a.txt", "hash/hash-256", 1),
	}
	require.NoError(t, s.ReplaceFileChunks(ctx, file, chunks))

	// Then the file record round-trips
	got, err := s.GetFile(ctx, "docs/a.txt")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, file.Fingerprint, got.Fingerprint)
	assert.Equal(t, file.ModTime.UnixNano(), got.ModTime.UnixNano())

	// And the chunks round-trip with vectors intact
	byNS, err := s.ChunkIDsByFile(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, byNS["hash/hash-256"])

	rows, err := s.GetChunks(ctx, []string{"c2"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, chunks[1].Text, rows[0].Text)
	assert.Equal(t, chunks[1].Vector, rows[0].Vector)
	assert.Equal(t, 1, rows[0].Page)
}

func TestReplaceFileChunksSwapsOldRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNamespace(ctx, "hash/hash-256", 4))

	file := testFile("docs/a.txt")
	require.NoError(t, s.ReplaceFileChunks(ctx, file, []*Chunk{
		testChunk("old1", "docs/a.txt", "hash/hash-256", 0),
		testChunk("old2", "docs/a.txt", "hash/hash-256", 1),
	}))

	// When the file is re-indexed with a different chunk set
	require.NoError(t, s.ReplaceFileChunks(ctx, file, []*Chunk{
		testChunk("new1", "docs/a.txt", "hash/hash-256", 0),
	}))

	// Then old rows are gone across the board
	byNS, err := s.ChunkIDsByFile(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"new1"}, byNS["hash/hash-256"])

	rows, err := s.GetChunks(ctx, []string{"old1", "old2"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRemoveFileReturnsRemovedIDsPerNamespace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNamespace(ctx, "hash/hash-256", 4))
	require.NoError(t, s.EnsureNamespace(ctx, "ollama/nomic-embed-text", 4))

	file := testFile("docs/a.txt")
	require.NoError(t, s.ReplaceFileChunks(ctx, file, []*Chunk{
		testChunk("h1", "docs/a.txt", "hash/hash-256", 0),
		testChunk("o1", "docs/a.txt", "ollama/nomic-embed-text", 0),
	}))

	removed, err := s.RemoveFile(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"h1"}, removed["hash/hash-256"])
	assert.Equal(t, []string{"o1"}, removed["ollama/nomic-embed-text"])

	f, err := s.GetFile(ctx, "docs/a.txt")
	require.NoError(t, err)
	assert.Nil(t, f)

	counts, err := s.CountChunks(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestEnsureNamespaceDimensionConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureNamespace(ctx, "ollama/nomic-embed-text", 768))
	// Same dimensions is idempotent
	require.NoError(t, s.EnsureNamespace(ctx, "ollama/nomic-embed-text", 768))

	// Different dimensions is a hard error
	err := s.EnsureNamespace(ctx, "ollama/nomic-embed-text", 1024)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDimensionMismatch, apperrors.GetCode(err))
}

func TestEmbeddingsByNamespace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureNamespace(ctx, "hash/hash-256", 4))
	require.NoError(t, s.EnsureNamespace(ctx, "ollama/nomic-embed-text", 4))

	require.NoError(t, s.ReplaceFileChunks(ctx, testFile("a.txt"), []*Chunk{
		testChunk("h1", "a.txt", "hash/hash-256", 0),
		testChunk("h2", "a.txt", "hash/hash-256", 1),
		testChunk("o1", "a.txt", "ollama/nomic-embed-text", 0),
	}))

	vecs, err := s.EmbeddingsByNamespace(ctx, "hash/hash-256")
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 1, 0, 0}, vecs["h2"])
}

func TestListFilesOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceFileChunks(ctx, testFile("b.txt"), nil))
	require.NoError(t, s.ReplaceFileChunks(ctx, testFile("a.txt"), nil))

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.txt", files[0].Path)
	assert.Equal(t, "b.txt", files[1].Path)
}

func TestFingerprintChangesWithContentAndMtime(t *testing.T) {
	now := time.Now()

	same := Fingerprint([]byte("hello"), now)
	assert.Equal(t, same, Fingerprint([]byte("hello"), now))
	assert.NotEqual(t, same, Fingerprint([]byte("hello!"), now))
	assert.NotEqual(t, same, Fingerprint([]byte("hello"), now.Add(time.Second)))
}

func TestVectorCodecRoundTrip(t *testing.T) {
	v := []float32{0.1, -2.5, 0, 1e-8, 42}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
}
