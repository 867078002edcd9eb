// Package chunk splits extracted documents into deterministic, overlapping
// text chunks. Identical input always yields identical chunks, offsets, and
// IDs, which is what makes incremental re-indexing idempotent.
package chunk

import (
	"strings"
	"unicode/utf8"

	"github.com/askfolder/askfolder/internal/extract"
)

// Default splitter parameters.
const (
	DefaultTargetSize = 1000
	DefaultOverlap    = 100
	DefaultMinLength  = 20
)

// Draft is a chunk before embedding: position plus text, no vector yet.
type Draft struct {
	// Seq is the 0-based position of the chunk within its document.
	Seq int
	// Page is the 1-based page the chunk was cut from. Chunks never span
	// pages so every chunk has exactly one page for citations.
	Page int
	// StartOffset and EndOffset locate the chunk text within the
	// document's canonical form (pages joined by form feeds).
	StartOffset int
	EndOffset   int
	// Text is the chunk content.
	Text string
}

// Options configures the splitter.
type Options struct {
	// TargetSize is the maximum chunk length in bytes.
	TargetSize int
	// Overlap is how many trailing bytes of a chunk reappear at the start
	// of the next chunk on the same page.
	Overlap int
	// MinLength drops chunks whose trimmed text is shorter than this.
	MinLength int
}

// Splitter cuts documents along paragraph boundaries first, sentence
// boundaries second, and hard byte boundaries as a last resort.
type Splitter struct {
	opts Options
}

// NewSplitter validates and applies defaults to opts.
func NewSplitter(opts Options) *Splitter {
	if opts.TargetSize <= 0 {
		opts.TargetSize = DefaultTargetSize
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.TargetSize {
		opts.Overlap = DefaultOverlap
		if opts.Overlap >= opts.TargetSize {
			opts.Overlap = opts.TargetSize / 10
		}
	}
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultMinLength
	}
	return &Splitter{opts: opts}
}

// Split cuts a document into drafts. Seq is contiguous from 0 across the
// whole document in page order.
func (s *Splitter) Split(doc *extract.Document) []Draft {
	var drafts []Draft
	base := 0 // offset of the current page within the canonical document text
	seq := 0

	for _, page := range doc.Pages {
		for _, span := range s.packPage(page.Text) {
			text := page.Text[span.start:span.end]
			if len(strings.TrimSpace(text)) < s.opts.MinLength {
				continue
			}
			drafts = append(drafts, Draft{
				Seq:         seq,
				Page:        page.Number,
				StartOffset: base + span.start,
				EndOffset:   base + span.end,
				Text:        text,
			})
			seq++
		}
		base += len(page.Text) + 1 // +1 for the form feed separator
	}

	return drafts
}

type span struct {
	start, end int
}

// packPage greedily packs split units into chunks of at most TargetSize
// bytes, carrying Overlap bytes of the previous chunk into the next one.
func (s *Splitter) packPage(text string) []span {
	units := s.splitUnits(text)
	if len(units) == 0 {
		return nil
	}

	var out []span
	i := 0
	start := units[0].start

	for i < len(units) {
		// A carried overlap must still leave room for the next unit.
		if units[i].end-start > s.opts.TargetSize {
			start = alignRuneStart(text, units[i].end-s.opts.TargetSize)
		}

		end := units[i].end
		i++
		for i < len(units) && units[i].end-start <= s.opts.TargetSize {
			end = units[i].end
			i++
		}

		out = append(out, span{start: start, end: end})

		if i >= len(units) {
			break
		}

		next := alignRuneStart(text, end-s.opts.Overlap)
		// Never move backwards past the previous chunk start.
		if next <= start || next > units[i].start {
			next = units[i].start
		}
		start = next
	}

	return out
}

// splitUnits produces spans no longer than TargetSize: paragraphs where they
// fit, sentences where paragraphs are too long, hard cuts where even a
// sentence overflows.
func (s *Splitter) splitUnits(text string) []span {
	var units []span

	for _, p := range paragraphSpans(text) {
		if p.end-p.start <= s.opts.TargetSize {
			units = append(units, p)
			continue
		}
		for _, sent := range sentenceSpans(text, p) {
			if sent.end-sent.start <= s.opts.TargetSize {
				units = append(units, sent)
				continue
			}
			units = append(units, hardCut(text, sent, s.opts.TargetSize)...)
		}
	}

	return units
}

// paragraphSpans splits on blank lines, keeping exact positions.
func paragraphSpans(text string) []span {
	var out []span
	start := 0
	for {
		idx := strings.Index(text[start:], "\n\n")
		if idx < 0 {
			break
		}
		end := start + idx
		if end > start {
			out = append(out, span{start: start, end: end})
		}
		start = end
		for start < len(text) && text[start] == '\n' {
			start++
		}
	}
	if start < len(text) {
		out = append(out, span{start: start, end: len(text)})
	}
	return out
}

// sentenceSpans splits a paragraph after '.', '!' or '?' followed by
// whitespace.
func sentenceSpans(text string, p span) []span {
	var out []span
	start := p.start
	for i := p.start; i < p.end-1; i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && isSpace(text[i+1]) {
			end := i + 1
			out = append(out, span{start: start, end: end})
			start = end
			for start < p.end && isSpace(text[start]) {
				start++
			}
			i = start - 1
		}
	}
	if start < p.end {
		out = append(out, span{start: start, end: p.end})
	}
	return out
}

// hardCut slices an oversized sentence into target-size windows on rune
// boundaries.
func hardCut(text string, s span, target int) []span {
	var out []span
	start := s.start
	for start < s.end {
		end := start + target
		if end >= s.end {
			end = s.end
		} else {
			end = alignRuneStart(text, end)
		}
		out = append(out, span{start: start, end: end})
		start = end
	}
	return out
}

// alignRuneStart moves pos forward to the nearest rune start boundary.
func alignRuneStart(text string, pos int) int {
	if pos < 0 {
		return 0
	}
	for pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos++
	}
	return pos
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
