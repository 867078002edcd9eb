package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/askfolder/askfolder/internal/errors"
)

func TestTextExtractorSinglePage(t *testing.T) {
	// Given a plain file with no form feeds
	doc, err := (&TextExtractor{}).Extract("notes.txt", []byte("hello world"))
	require.NoError(t, err)

	require.Len(t, doc.Pages, 1)
	assert.Equal(t, 1, doc.Pages[0].Number)
	assert.Equal(t, "hello world", doc.Pages[0].Text)
}

func TestTextExtractorSplitsOnFormFeed(t *testing.T) {
	// Given content with two page breaks
	doc, err := (&TextExtractor{}).Extract("report.txt", []byte("one\ftwo\fthree"))
	require.NoError(t, err)

	require.Len(t, doc.Pages, 3)
	assert.Equal(t, 2, doc.Pages[1].Number)
	assert.Equal(t, "two", doc.Pages[1].Text)
	assert.Equal(t, "one\ftwo\fthree", doc.Text())
}

func TestTextExtractorRejectsBinary(t *testing.T) {
	_, err := (&TextExtractor{}).Extract("blob.txt", []byte{0x00, 0x01, 0x02})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeExtractionFailed, apperrors.GetCode(err))
}

func TestRegistryDispatchesByExtension(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Supports("a.TXT"))
	assert.True(t, r.Supports("b.md"))
	assert.False(t, r.Supports("c.docx"))

	doc, err := r.Extract("a.md", []byte("# title"))
	require.NoError(t, err)
	assert.Equal(t, "a.md", doc.Path)
}

func TestRegistryUnsupportedExtension(t *testing.T) {
	r := NewRegistry()

	_, err := r.Extract("slides.pptx", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnsupportedType, apperrors.GetCode(err))
}

func TestRegistryRegisterOverrides(t *testing.T) {
	// Given a registry where .pdf gets the page-aware text extractor
	r := NewRegistry()
	r.Register(".pdf", &TextExtractor{})

	doc, err := r.Extract("manual.pdf", []byte("cover\fbody"))
	require.NoError(t, err)
	assert.Len(t, doc.Pages, 2)
}
