package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	apperrors "github.com/askfolder/askfolder/internal/errors"
)

// PDFExtractor extracts plain text from PDF files, one Page per PDF page.
type PDFExtractor struct{}

var _ Extractor = (*PDFExtractor)(nil)

// Extract implements Extractor.
func (e *PDFExtractor) Extract(path string, data []byte) (*Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, apperrors.ExtractionError(
			fmt.Sprintf("%s: parse pdf: %v", path, err), err)
	}

	doc := &Document{Path: path}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			doc.Pages = append(doc.Pages, Page{Number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, apperrors.ExtractionError(
				fmt.Sprintf("%s: page %d: %v", path, i, err), err)
		}
		doc.Pages = append(doc.Pages, Page{Number: i, Text: text})
	}

	if len(doc.Pages) == 0 {
		return nil, apperrors.ExtractionError(
			fmt.Sprintf("%s: pdf has no pages", path), nil)
	}
	return doc, nil
}
