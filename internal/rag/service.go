// Package rag answers questions over the indexed folder: retrieve cited
// context, build a grounded prompt, and run the generator.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askfolder/askfolder/internal/retrieval"
)

// NoDocumentsAnswer is returned without a generator call when retrieval
// finds nothing to ground an answer on.
const NoDocumentsAnswer = "I could not find anything relevant in the indexed documents."

// Answer is a generated response plus the citations that grounded it.
type Answer struct {
	Text      string
	Citations []retrieval.Citation
	Model     string
}

// ContextRetriever supplies cited context for a question. Satisfied by
// retrieval.Assembler.
type ContextRetriever interface {
	AnswerContext(ctx context.Context, query string, k int, provider string) ([]retrieval.Citation, error)
}

// Service wires retrieval and generation into Ask.
type Service struct {
	assembler ContextRetriever
	generator Generator
	logger    *slog.Logger
}

// NewService builds the ask service.
func NewService(assembler ContextRetriever, generator Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		assembler: assembler,
		generator: generator,
		logger:    logger,
	}
}

// Ask retrieves the top k chunks for the question from the given provider's
// namespace and generates a cited answer. With no matching context the
// canned no-documents answer is returned and the generator is never called.
func (s *Service) Ask(ctx context.Context, question string, k int, provider string) (*Answer, error) {
	citations, err := s.assembler.AnswerContext(ctx, question, k, provider)
	if err != nil {
		return nil, err
	}
	if len(citations) == 0 {
		s.logger.Debug("no context retrieved", slog.String("question", question))
		return &Answer{Text: NoDocumentsAnswer}, nil
	}

	prompt := BuildPrompt(question, citations)
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &Answer{
		Text:      text,
		Citations: citations,
		Model:     s.generator.Model(),
	}, nil
}

// BuildPrompt renders the grounded QA prompt. Each context block carries a
// bracketed marker the model is instructed to cite, so answers map back to
// files and pages.
func BuildPrompt(question string, citations []retrieval.Citation) string {
	var b strings.Builder

	b.WriteString("Answer the question using only the context below.\n")
	b.WriteString("Cite the sources you use with their bracketed numbers, like [1] or [2].\n")
	b.WriteString("If the context does not contain the answer, say so.\n\n")

	b.WriteString("Context:\n")
	for i, c := range citations {
		fmt.Fprintf(&b, "[%d] Source: %s, Page %d\n%s\n\n", i+1, c.Path, c.Page, c.Text)
	}

	fmt.Fprintf(&b, "Question: %s\nAnswer:", question)
	return b.String()
}
