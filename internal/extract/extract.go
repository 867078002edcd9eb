// Package extract turns source files into page-structured plain text.
//
// Extraction is the boundary between raw folder content and the indexing
// pipeline: everything downstream (chunking, embedding, retrieval) only
// sees Documents.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/askfolder/askfolder/internal/errors"
)

// Page is one page of extracted text. Page numbers are 1-based so that
// citations read naturally.
type Page struct {
	Number int
	Text   string
}

// Document is the extraction result for a single source file.
type Document struct {
	Path  string
	Pages []Page
}

// Extractor converts raw file bytes into a Document.
type Extractor interface {
	// Extract parses data read from path. Implementations must not touch
	// the filesystem; the caller owns I/O so content is read exactly once
	// per indexing unit.
	Extract(path string, data []byte) (*Document, error)
}

// Registry dispatches extraction by file extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry returns a registry with the built-in extractors registered:
// plain text for .txt and .md, PDF text extraction for .pdf.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	text := &TextExtractor{}
	r.Register(".txt", text)
	r.Register(".md", text)
	r.Register(".text", text)
	r.Register(".pdf", &PDFExtractor{})
	return r
}

// Register binds an extension (with leading dot, case-insensitive) to an
// extractor. Later registrations win.
func (r *Registry) Register(ext string, e Extractor) {
	r.byExt[strings.ToLower(ext)] = e
}

// Supports reports whether an extractor is registered for the path's
// extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions returns the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract dispatches to the extractor registered for the path's extension.
func (r *Registry) Extract(path string, data []byte) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeUnsupportedType,
			fmt.Sprintf("no extractor for %q", ext), nil)
	}

	doc, err := e.Extract(path, data)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// TextExtractor handles plain-text formats. Form feed (\f) separates pages;
// files without form feeds are a single page.
type TextExtractor struct{}

var _ Extractor = (*TextExtractor)(nil)

// Extract implements Extractor.
func (e *TextExtractor) Extract(path string, data []byte) (*Document, error) {
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, apperrors.ExtractionError(
			fmt.Sprintf("%s: binary content", path), nil)
	}

	doc := &Document{Path: path}
	for i, raw := range strings.Split(string(data), "\f") {
		doc.Pages = append(doc.Pages, Page{Number: i + 1, Text: raw})
	}
	return doc, nil
}

// Text returns the document's full text with pages joined by form feeds.
// Fingerprinting and chunk offsets both work against this canonical form.
func (d *Document) Text() string {
	parts := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\f")
}
