package retrieval

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askfolder/askfolder/internal/config"
	"github.com/askfolder/askfolder/internal/embed"
	apperrors "github.com/askfolder/askfolder/internal/errors"
	"github.com/askfolder/askfolder/internal/store"
)

// stubEmbedder returns canned vectors keyed by exact text.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = s.Embed(ctx, t)
	}
	return out, nil
}

func (s *stubEmbedder) Identity() embed.Identity {
	return embed.Identity{Provider: "stub", Model: "stub-3", Dimensions: 3}
}

func (s *stubEmbedder) Available(context.Context) bool { return true }
func (s *stubEmbedder) Close() error                   { return nil }

var _ embed.Embedder = (*stubEmbedder)(nil)

const testNamespace = "stub/stub-3"

type assemblerEnv struct {
	root      string
	cfg       *config.Config
	store     *store.SQLiteStore
	index     *store.NamespacedIndex
	assembler *Assembler
	stub      *stubEmbedder
}

func newAssemblerEnv(t *testing.T) *assemblerEnv {
	t.Helper()

	root := t.TempDir()
	cfg := &config.Config{}
	cfg.Watch.Root = root
	cfg.Retrieval.TopK = 3
	cfg.Providers = []config.ProviderConfig{
		{Name: "stub", Type: "hash", Model: "stub-3", Default: true},
	}

	fs, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "askfolder.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })

	idx := store.NewNamespacedIndex(t.TempDir(), slog.Default())
	t.Cleanup(func() { _ = idx.Close() })

	stub := &stubEmbedder{vectors: map[string][]float32{}}
	embedders := map[string]embed.Embedder{"stub": stub}

	return &assemblerEnv{
		root:      root,
		cfg:       cfg,
		store:     fs,
		index:     idx,
		assembler: NewAssembler(cfg, fs, idx, embedders, slog.Default()),
		stub:      stub,
	}
}

// seed persists chunks for one file in SQLite and the vector index, and
// creates the file on disk so the freshness filter keeps its citations.
func (e *assemblerEnv) seed(t *testing.T, path string, chunks []*store.Chunk) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(e.root, path), []byte("present"), 0o644))
	require.NoError(t, e.store.EnsureNamespace(ctx, testNamespace, 3))

	file := &store.SourceFile{
		Path:        path,
		Fingerprint: "fp-" + path,
		Size:        7,
		ModTime:     time.Now(),
		IndexedAt:   time.Now(),
	}
	require.NoError(t, e.store.ReplaceFileChunks(ctx, file, chunks))

	ids := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		vectors[i] = c.Vector
	}
	require.NoError(t, e.index.Upsert(ctx, testNamespace, 3, ids, vectors))
}

func seedChunk(id, path string, seq, page, start int, text string, vector []float32) *store.Chunk {
	return &store.Chunk{
		ID:          id,
		Path:        path,
		Namespace:   testNamespace,
		Seq:         seq,
		Page:        page,
		StartOffset: start,
		EndOffset:   start + len(text),
		Text:        text,
		Vector:      vector,
	}
}

func TestAnswerContext_EmptyQueryFailsFast(t *testing.T) {
	env := newAssemblerEnv(t)

	_, err := env.assembler.AnswerContext(context.Background(), "   ", 3, "")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeQueryEmpty, apperrors.GetCode(err))
}

func TestAnswerContext_UnknownProviderIsMismatch(t *testing.T) {
	env := newAssemblerEnv(t)

	_, err := env.assembler.AnswerContext(context.Background(), "anything", 3, "nope")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNamespaceMismatch, apperrors.GetCode(err))
}

func TestAnswerContext_EmptyNamespaceReturnsNoCitations(t *testing.T) {
	env := newAssemblerEnv(t)

	citations, err := env.assembler.AnswerContext(context.Background(), "anything", 3, "")

	require.NoError(t, err)
	assert.Empty(t, citations)
}

func TestAnswerContext_CitesThePageTheAnswerCameFrom(t *testing.T) {
	// Given a two-page document where only page 2 matches the query
	env := newAssemblerEnv(t)
	pageOne := "Chapter one talks about setup and installation."
	pageTwo := "Chapter two explains the billing export format."
	env.seed(t, "manual.txt", []*store.Chunk{
		seedChunk("c1", "manual.txt", 0, 1, 0, pageOne, []float32{0, 1, 0}),
		seedChunk("c2", "manual.txt", 1, 2, len(pageOne)+1, pageTwo, []float32{1, 0, 0}),
	})
	env.stub.vectors["billing export"] = []float32{1, 0, 0}

	// When the query is asked
	citations, err := env.assembler.AnswerContext(context.Background(), "billing export", 1, "stub")
	require.NoError(t, err)

	// Then the single citation points at page 2 with its exact offsets
	require.Len(t, citations, 1)
	c := citations[0]
	assert.Equal(t, "manual.txt", c.Path)
	assert.Equal(t, 2, c.Page)
	assert.Equal(t, 1, c.Seq)
	assert.Equal(t, len(pageOne)+1, c.StartOffset)
	assert.Equal(t, c.StartOffset+len(pageTwo), c.EndOffset)
	assert.Equal(t, pageTwo, c.Text)
	assert.True(t, strings.HasPrefix(c.Snippet, "Chapter two"))
}

func TestAnswerContext_BreaksScoreTiesBySeq(t *testing.T) {
	// Given two chunks with identical vectors
	env := newAssemblerEnv(t)
	v := []float32{1, 0, 0}
	env.seed(t, "notes.txt", []*store.Chunk{
		seedChunk("late", "notes.txt", 5, 1, 500, "later duplicate", v),
		seedChunk("early", "notes.txt", 2, 1, 200, "earlier duplicate", v),
	})
	env.stub.vectors["duplicate"] = v

	// When both tie on score
	citations, err := env.assembler.AnswerContext(context.Background(), "duplicate", 2, "")
	require.NoError(t, err)

	// Then the lower seq wins the earlier slot
	require.Len(t, citations, 2)
	assert.Equal(t, 2, citations[0].Seq)
	assert.Equal(t, 5, citations[1].Seq)
}

func TestAnswerContext_DropsVanishedFiles(t *testing.T) {
	// Given an indexed file that has since been deleted from disk
	env := newAssemblerEnv(t)
	v := []float32{1, 0, 0}
	env.seed(t, "gone.txt", []*store.Chunk{
		seedChunk("g1", "gone.txt", 0, 1, 0, "content of the deleted file", v),
	})
	require.NoError(t, os.Remove(filepath.Join(env.root, "gone.txt")))
	env.stub.vectors["deleted"] = v

	// When a matching query runs before the next cycle
	citations, err := env.assembler.AnswerContext(context.Background(), "deleted", 3, "")
	require.NoError(t, err)

	// Then the stale hit is filtered out
	assert.Empty(t, citations)
}

func TestResolve_AcceptsNameNamespaceAndDefault(t *testing.T) {
	env := newAssemblerEnv(t)

	byDefault, err := env.assembler.Resolve("")
	require.NoError(t, err)
	byName, err := env.assembler.Resolve("stub")
	require.NoError(t, err)
	byNamespace, err := env.assembler.Resolve("stub/stub-3")
	require.NoError(t, err)

	assert.Equal(t, testNamespace, byDefault.Identity().Namespace())
	assert.Equal(t, testNamespace, byName.Identity().Namespace())
	assert.Equal(t, testNamespace, byNamespace.Identity().Namespace())
}

func TestSnippet_TruncatesAndCollapsesWhitespace(t *testing.T) {
	short := Snippet("a  short\ntext")
	long := Snippet(strings.Repeat("word ", 40))

	assert.Equal(t, "a short text", short)
	assert.True(t, strings.HasSuffix(long, "…"))
	assert.Equal(t, SnippetLength+1, len([]rune(long)))
}
