package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askfolder/askfolder/internal/extract"
)

func doc(pages ...string) *extract.Document {
	d := &extract.Document{Path: "test.txt"}
	for i, p := range pages {
		d.Pages = append(d.Pages, extract.Page{Number: i + 1, Text: p})
	}
	return d
}

func TestSplitIsDeterministic(t *testing.T) {
	// Given a multi-paragraph document
	s := NewSplitter(Options{TargetSize: 80, Overlap: 10})
	d := doc("First paragraph with some words.\n\nSecond paragraph, also with words.\n\nThird one ends the page here.")

	// When split twice
	a := s.Split(d)
	b := s.Split(d)

	// Then outputs are byte-identical
	require.Equal(t, a, b)
	require.NotEmpty(t, a)
}

func TestSplitSeqIsContiguousAcrossPages(t *testing.T) {
	s := NewSplitter(Options{TargetSize: 40, Overlap: 5})
	d := doc(
		"Page one sentence alpha. Page one sentence beta.",
		"Page two sentence gamma. Page two sentence delta.",
	)

	drafts := s.Split(d)
	require.NotEmpty(t, drafts)

	for i, c := range drafts {
		assert.Equal(t, i, c.Seq)
	}
	// Chunks never span pages
	assert.Equal(t, 1, drafts[0].Page)
	assert.Equal(t, 2, drafts[len(drafts)-1].Page)
}

func TestSplitRespectsTargetSize(t *testing.T) {
	s := NewSplitter(Options{TargetSize: 100, Overlap: 20})
	d := doc(strings.Repeat("Sentence number one here. ", 40))

	for _, c := range s.Split(d) {
		assert.LessOrEqual(t, len(c.Text), 100, "chunk %d too long", c.Seq)
	}
}

func TestSplitOffsetsMatchDocumentText(t *testing.T) {
	// Given two pages so offsets must account for the page separator
	s := NewSplitter(Options{TargetSize: 60, Overlap: 10})
	d := doc(
		"Alpha paragraph on the first page of all.",
		"Beta paragraph that lives on the second page.",
	)
	full := d.Text()

	for _, c := range s.Split(d) {
		assert.Equal(t, c.Text, full[c.StartOffset:c.EndOffset],
			"chunk %d offsets disagree with text", c.Seq)
	}
}

func TestSplitOverlapSharesSuffix(t *testing.T) {
	s := NewSplitter(Options{TargetSize: 50, Overlap: 15})
	d := doc("One two three four five. Six seven eight nine ten. Eleven twelve thirteen fourteen.")

	drafts := s.Split(d)
	require.GreaterOrEqual(t, len(drafts), 2)

	// Consecutive chunks on the same page overlap
	assert.Less(t, drafts[1].StartOffset, drafts[0].EndOffset)
}

func TestSplitHardCutsOversizedSentence(t *testing.T) {
	// Given a single sentence far past the target with no break points
	s := NewSplitter(Options{TargetSize: 64, Overlap: 8, MinLength: 1})
	d := doc(strings.Repeat("x", 300))

	drafts := s.Split(d)
	require.GreaterOrEqual(t, len(drafts), 4)
	for _, c := range drafts {
		assert.LessOrEqual(t, len(c.Text), 64)
	}
}

func TestSplitDropsTinyChunks(t *testing.T) {
	s := NewSplitter(Options{TargetSize: 100, Overlap: 10, MinLength: 20})
	d := doc("ok\n\nA real paragraph that is long enough to keep around.")

	drafts := s.Split(d)
	require.Len(t, drafts, 1)
	assert.Contains(t, drafts[0].Text, "real paragraph")
}

func TestSplitEmptyDocument(t *testing.T) {
	s := NewSplitter(Options{})
	assert.Empty(t, s.Split(doc("")))
	assert.Empty(t, s.Split(doc("   \n\n  ")))
}

func TestIDStableAndNamespaceScoped(t *testing.T) {
	a := ID("docs/a.txt", "ollama/nomic-embed-text", 0, "hello")
	b := ID("docs/a.txt", "ollama/nomic-embed-text", 0, "hello")
	c := ID("docs/a.txt", "hash/hash-256", 0, "hello")
	d := ID("docs/a.txt", "ollama/nomic-embed-text", 1, "hello")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 16)
}
