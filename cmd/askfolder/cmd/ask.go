package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/askfolder/askfolder/internal/ui"
)

// askOptions holds CLI flags for ask.
type askOptions struct {
	topK        int
	provider    string
	showContext bool
}

func newAskCmd() *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the indexed documents",
		Long: `Retrieve the most relevant chunks for the question and generate an
answer with page-level citations.

Examples:
  askfolder ask "when do billing exports run?"
  askfolder ask "what is the refund policy" -k 5
  askfolder ask "setup steps" --provider ollama
  askfolder ask "setup steps" --show-context`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			printer := ui.NewPrinter(cmd.OutOrStdout())

			a, err := openApp(cmd.Context())
			if err != nil {
				printer.PrintError(err)
				return err
			}
			defer a.Close()

			if opts.showContext {
				citations, err := a.Assembler.AnswerContext(cmd.Context(), question, opts.topK, opts.provider)
				if err != nil {
					printer.PrintError(err)
					return err
				}
				printer.PrintCitations(citations)
				return nil
			}

			answer, err := a.Service.Ask(cmd.Context(), question, opts.topK, opts.provider)
			if err != nil {
				printer.PrintError(err)
				return err
			}
			printer.PrintAnswer(answer)
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of chunks to retrieve (default from config)")
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "Provider name or provider/model namespace")
	cmd.Flags().BoolVar(&opts.showContext, "show-context", false, "Print retrieved chunks instead of generating an answer")

	return cmd
}
