// Package ui renders answers, citations, and cycle reports for the CLI.
// Styled output is used on terminals, plain text on pipes and under
// NO_COLOR.
package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/mattn/go-isatty"

	apperrors "github.com/askfolder/askfolder/internal/errors"
	"github.com/askfolder/askfolder/internal/indexer"
	"github.com/askfolder/askfolder/internal/rag"
	"github.com/askfolder/askfolder/internal/retrieval"
)

// Printer writes formatted command output.
type Printer struct {
	out    io.Writer
	styles Styles
}

// NewPrinter picks styles based on whether out is a terminal.
func NewPrinter(out io.Writer) *Printer {
	styles := NoColorStyles()
	if IsTTY(out) && !noColorRequested() {
		styles = DefaultStyles()
	}
	return &Printer{out: out, styles: styles}
}

// NewPlainPrinter always renders without styling, for tests and pipes.
func NewPlainPrinter(out io.Writer) *Printer {
	return &Printer{out: out, styles: NoColorStyles()}
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func noColorRequested() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// PrintAnswer renders the answer text followed by a Sources legend mapping
// the bracketed markers back to files and pages.
func (p *Printer) PrintAnswer(answer *rag.Answer) {
	fmt.Fprintln(p.out, p.styles.Answer.Render(answer.Text))

	if len(answer.Citations) == 0 {
		return
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, p.styles.Header.Render("Sources:"))
	for i, c := range answer.Citations {
		fmt.Fprintf(p.out, "  %s %s\n",
			p.styles.Dim.Render(fmt.Sprintf("[%d]", i+1)),
			p.styles.Source.Render(fmt.Sprintf("%s, page %d", c.Path, c.Page)))
	}
	if answer.Model != "" {
		fmt.Fprintln(p.out, p.styles.Dim.Render(fmt.Sprintf("(answered by %s)", answer.Model)))
	}
}

// PrintCitations renders retrieval results with scores and snippets.
func (p *Printer) PrintCitations(citations []retrieval.Citation) {
	if len(citations) == 0 {
		fmt.Fprintln(p.out, "No matching chunks found.")
		return
	}
	for i, c := range citations {
		fmt.Fprintf(p.out, "%s %s %s\n",
			p.styles.Dim.Render(fmt.Sprintf("%d.", i+1)),
			p.styles.Source.Render(fmt.Sprintf("%s, page %d", c.Path, c.Page)),
			p.styles.Score.Render(fmt.Sprintf("(score %.3f)", c.Score)))
		fmt.Fprintf(p.out, "   %s\n", p.styles.Snippet.Render(c.Snippet))
	}
}

// PrintReport renders a cycle report summary, listing failed files.
func (p *Printer) PrintReport(report *indexer.CycleReport) {
	line := report.Summary()
	if len(report.Errors) > 0 {
		fmt.Fprintln(p.out, p.styles.Warning.Render(line))
	} else {
		fmt.Fprintln(p.out, p.styles.Success.Render(line))
	}

	for _, fe := range report.Errors {
		msg := fe.Err.Error()
		if suggestion := suggestionOf(fe.Err); suggestion != "" {
			msg += " (" + suggestion + ")"
		}
		fmt.Fprintf(p.out, "  %s %s: %s\n",
			p.styles.Error.Render("error"), fe.Path, msg)
	}
}

// PrintFiles renders the files listing with per-file state.
func (p *Printer) PrintFiles(statuses []indexer.FileStatus) {
	if len(statuses) == 0 {
		fmt.Fprintln(p.out, "No watched files found.")
		return
	}
	for _, s := range statuses {
		fmt.Fprintf(p.out, "%s  %s\n", p.renderState(s.State), s.Path)
	}
}

func (p *Printer) renderState(state indexer.FileState) string {
	// Pad to the widest state name so paths line up.
	label := fmt.Sprintf("%-8s", state)
	switch state {
	case indexer.StateIngested:
		return p.styles.Success.Render(label)
	case indexer.StateStale, indexer.StateMissing:
		return p.styles.Warning.Render(label)
	default:
		return p.styles.Source.Render(label)
	}
}

// PrintError renders an error with its suggestion when present.
func (p *Printer) PrintError(err error) {
	fmt.Fprintf(p.out, "%s %s\n", p.styles.Error.Render("Error:"), err.Error())
	if suggestion := suggestionOf(err); suggestion != "" {
		fmt.Fprintf(p.out, "%s\n", p.styles.Dim.Render("Hint: "+suggestion))
	}
}

// PrintStatus renders index totals for the status command.
func (p *Printer) PrintStatus(files int, chunksPerNS map[string]int, lastIndexed time.Time) {
	fmt.Fprintf(p.out, "%s %d\n", p.styles.Header.Render("Indexed files:"), files)
	namespaces := make([]string, 0, len(chunksPerNS))
	for ns := range chunksPerNS {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		fmt.Fprintf(p.out, "  %s %d chunks\n", p.styles.Source.Render(ns+":"), chunksPerNS[ns])
	}
	if !lastIndexed.IsZero() {
		fmt.Fprintf(p.out, "%s %s\n", p.styles.Dim.Render("Last indexed:"),
			lastIndexed.Format(time.RFC3339))
	}
}

func suggestionOf(err error) string {
	var ae *apperrors.AskError
	if errors.As(err, &ae) {
		return ae.Suggestion
	}
	return ""
}
