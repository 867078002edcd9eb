// Package retrieval turns a question into ranked, cited context chunks. It
// owns provider resolution, query embedding, the vector search, and the
// SQLite reverse lookup that hydrates search hits into citations.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/askfolder/askfolder/internal/config"
	"github.com/askfolder/askfolder/internal/embed"
	apperrors "github.com/askfolder/askfolder/internal/errors"
	"github.com/askfolder/askfolder/internal/store"
)

// SnippetLength caps the human-readable excerpt on a citation.
const SnippetLength = 80

// overfetchFactor retrieves extra hits so freshness filtering and the
// top-k cut still leave k results.
const overfetchFactor = 3

// Citation points a retrieved chunk back to its place in a source file.
type Citation struct {
	// Path is relative to the watched folder root.
	Path string
	// Page is the 1-based page the chunk came from.
	Page int
	// Seq is the chunk's position within its document.
	Seq int
	// StartOffset and EndOffset locate the chunk in the document text.
	StartOffset int
	EndOffset   int
	// Snippet is a short excerpt for display.
	Snippet string
	// Text is the full chunk content, used to build generation context.
	Text string
	// Score is cosine similarity in [0,1], higher is better.
	Score float32
}

// Assembler resolves a provider, embeds the query, and assembles citations.
type Assembler struct {
	cfg       *config.Config
	store     store.FingerprintStore
	index     *store.NamespacedIndex
	embedders map[string]embed.Embedder
	logger    *slog.Logger
}

// NewAssembler builds an assembler over the shared store, index, and
// embedder set.
func NewAssembler(cfg *config.Config, fs store.FingerprintStore, idx *store.NamespacedIndex, embedders map[string]embed.Embedder, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		cfg:       cfg,
		store:     fs,
		index:     idx,
		embedders: embedders,
		logger:    logger,
	}
}

// Resolve maps a provider argument to a configured embedder. Empty selects
// the default provider. The name may be a configured provider name or a
// "provider/model" namespace. An unknown name fails fast rather than
// falling back to another vector space.
func (a *Assembler) Resolve(provider string) (embed.Embedder, error) {
	if provider == "" {
		def := a.cfg.DefaultProvider()
		if e, ok := a.embedders[def.Name]; ok {
			return e, nil
		}
		// Default provider failed at startup; fall through to any survivor
		// only if exactly one exists, otherwise the choice is ambiguous.
		if len(a.embedders) == 1 {
			for _, e := range a.embedders {
				return e, nil
			}
		}
		return nil, apperrors.NamespaceMismatch(
			fmt.Sprintf("default provider %q is not available", def.Name)).
			WithSuggestion("pass --provider to pick one explicitly")
	}
	if e, ok := a.embedders[provider]; ok {
		return e, nil
	}
	if strings.Contains(provider, "/") {
		for _, e := range a.embedders {
			if e.Identity().Namespace() == provider {
				return e, nil
			}
		}
	}
	return nil, apperrors.NamespaceMismatch(
		fmt.Sprintf("no configured provider matches %q", provider)).
		WithDetail("known", strings.Join(sortedNames(a.embedders), ", "))
}

// AnswerContext retrieves the top k chunks for the query from the given
// provider's namespace, hydrated into citations. Results are ordered by
// descending score with ties broken by ascending seq.
func (a *Assembler) AnswerContext(ctx context.Context, query string, k int, provider string) ([]Citation, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.New(apperrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if k <= 0 {
		k = a.cfg.Retrieval.TopK
	}

	embedder, err := a.Resolve(provider)
	if err != nil {
		return nil, err
	}
	namespace := embedder.Identity().Namespace()

	vector, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := a.index.Query(ctx, namespace, vector, k*overfetchFactor)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	scores := make(map[string]float32, len(results))
	for i, r := range results {
		ids[i] = r.ID
		scores[r.ID] = r.Score
	}

	chunks, err := a.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	citations := make([]Citation, 0, len(chunks))
	for _, c := range chunks {
		if !a.fileStillPresent(c.Path) {
			a.logger.Debug("dropping citation for vanished file", slog.String("path", c.Path))
			continue
		}
		citations = append(citations, Citation{
			Path:        c.Path,
			Page:        c.Page,
			Seq:         c.Seq,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			Snippet:     Snippet(c.Text),
			Text:        c.Text,
			Score:       scores[c.ID],
		})
	}

	sort.Slice(citations, func(i, j int) bool {
		if citations[i].Score != citations[j].Score {
			return citations[i].Score > citations[j].Score
		}
		return citations[i].Seq < citations[j].Seq
	})
	if len(citations) > k {
		citations = citations[:k]
	}
	return citations, nil
}

// fileStillPresent is a best-effort freshness check between cycles.
func (a *Assembler) fileStillPresent(rel string) bool {
	_, err := os.Stat(filepath.Join(a.cfg.Watch.Root, filepath.FromSlash(rel)))
	return err == nil
}

// Snippet shortens text to SnippetLength runes for display.
func Snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= SnippetLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:SnippetLength]) + "…"
}

func sortedNames(m map[string]embed.Embedder) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
