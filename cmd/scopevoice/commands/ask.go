package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scopevoice/internal/bootstrap"
	"scopevoice/internal/config"
	"scopevoice/internal/domain"
	"scopevoice/internal/usecase"
)

func newAskCmd(opts *globalOptions) *cobra.Command {
	var (
		scope      string
		documentID string
		speak      bool
	)

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer one typed query from your documents",
		Long: `Runs a typed query through the same classification, scope resolution,
retrieval and answer generation as a spoken one.

Examples:
  scopevoice ask "who owns the budget"
  scopevoice ask --scope document --document doc-42 "deadline"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("scope") {
				scope = cfg.Retrieval.Scope
			}
			if !cmd.Flags().Changed("document") {
				documentID = cfg.Retrieval.DocumentID
			}

			ctx := cmd.Context()
			dispatcher, err := bootstrap.NewDispatcher(ctx, cfg, opts.logger)
			if err != nil {
				return err
			}

			answer, err := answerQuery(ctx, cmd.OutOrStdout(), dispatcher, usecase.DispatchRequest{
				Text:       strings.Join(args, " "),
				Scope:      domain.Scope(scope),
				DocumentID: documentID,
			}, cfg.Timing.DispatchTimeout)
			if err != nil || !speak {
				return err
			}

			speaker, err := bootstrap.NewSpeaker(cfg, opts.logger)
			if err != nil {
				return err
			}
			return speakText(ctx, speaker, answer.Text)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", string(domain.ScopeProject), "retrieval scope: project or document")
	cmd.Flags().StringVar(&documentID, "document", "", "document id for document scope")
	cmd.Flags().BoolVar(&speak, "speak", false, "read the answer aloud")
	return cmd
}

func answerQuery(ctx context.Context, out io.Writer, dispatcher usecase.Dispatcher, req usecase.DispatchRequest, timeout time.Duration) (domain.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	answer, err := dispatcher.Dispatch(ctx, req)
	if err != nil {
		return domain.Answer{}, err
	}
	if answer.Scope.FellBack() {
		printScopeNotice(out, answer.Scope)
	}
	printAnswer(out, answer)
	return answer, nil
}

func printAnswer(w io.Writer, answer domain.Answer) {
	fmt.Fprintln(w, answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Fprintf(w, "sources: %s\n", strings.Join(answer.Sources, ", "))
	}
}

func printScopeNotice(w io.Writer, selection domain.ScopeSelection) {
	fmt.Fprintf(w, "note: %s\n", selection.Reason)
}
