package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/askfolder/askfolder/internal/errors"
	"github.com/askfolder/askfolder/internal/indexer"
	"github.com/askfolder/askfolder/internal/rag"
	"github.com/askfolder/askfolder/internal/retrieval"
)

func TestPrintAnswer_AppendsSourcesLegend(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.PrintAnswer(&rag.Answer{
		Text: "Exports run nightly [1].",
		Citations: []retrieval.Citation{
			{Path: "manual.txt", Page: 2},
			{Path: "faq.md", Page: 1},
		},
		Model: "llama3.2",
	})

	out := buf.String()
	assert.Contains(t, out, "Exports run nightly [1].")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "[1] manual.txt, page 2")
	assert.Contains(t, out, "[2] faq.md, page 1")
	assert.Contains(t, out, "answered by llama3.2")
}

func TestPrintAnswer_NoCitationsNoLegend(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.PrintAnswer(&rag.Answer{Text: rag.NoDocumentsAnswer})

	assert.NotContains(t, buf.String(), "Sources:")
}

func TestPrintCitations_RendersScoresAndSnippets(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.PrintCitations([]retrieval.Citation{
		{Path: "manual.txt", Page: 2, Score: 0.912, Snippet: "Chapter two explains exports"},
	})

	out := buf.String()
	assert.Contains(t, out, "manual.txt, page 2")
	assert.Contains(t, out, "(score 0.912)")
	assert.Contains(t, out, "Chapter two explains exports")
}

func TestPrintReport_ListsFailedFilesWithHints(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	report := &indexer.CycleReport{Started: time.Now(), Finished: time.Now()}
	report.Errors = []indexer.FileError{{
		Path: "broken.pdf",
		Err: apperrors.ProviderUnavailable("ollama unreachable", nil).
			WithSuggestion("is `ollama serve` running?"),
	}}

	p.PrintReport(report)

	out := buf.String()
	assert.Contains(t, out, "errors 1")
	assert.Contains(t, out, "broken.pdf")
	assert.Contains(t, out, "is `ollama serve` running?")
}

func TestPrintFiles_ShowsStates(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.PrintFiles([]indexer.FileStatus{
		{Path: "a.txt", State: indexer.StateIngested},
		{Path: "b.txt", State: indexer.StateNew},
		{Path: "c.txt", State: indexer.StateStale},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "INGESTED")
	assert.Contains(t, lines[1], "NEW")
	assert.Contains(t, lines[2], "STALE")
}

func TestIsTTY_FalseForBuffers(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}
