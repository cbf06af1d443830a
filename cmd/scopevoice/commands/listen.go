package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"scopevoice/internal/bootstrap"
	"scopevoice/internal/config"
	"scopevoice/internal/domain"
)

func newListenCmd(opts *globalOptions) *cobra.Command {
	var (
		autoResume bool
		scope      string
		documentID string
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Run the voice loop in the terminal",
		Long: `Runs the full listen, answer and speak loop. Press Enter to start or
stop listening and Ctrl-C to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("auto-resume") {
				cfg.Loop.AutoResume = autoResume
			}
			if cmd.Flags().Changed("scope") {
				cfg.Retrieval.Scope = scope
			}
			if cmd.Flags().Changed("document") {
				cfg.Retrieval.DocumentID = documentID
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runListen(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout(), opts.logger)
		},
	}

	cmd.Flags().BoolVar(&autoResume, "auto-resume", false, "listen again after each answer")
	cmd.Flags().StringVar(&scope, "scope", string(domain.ScopeProject), "retrieval scope: project or document")
	cmd.Flags().StringVar(&documentID, "document", "", "document id for document scope")
	return cmd
}

func runListen(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer, logger *slog.Logger) error {
	sink := newConsoleSink(out)
	services, err := bootstrap.BuildWithConfig(ctx, cfg, sink, logger)
	if err != nil {
		return err
	}
	gate := services.Gate
	defer gate.Stop()

	fmt.Fprintln(out, "Press Enter to start or stop listening, Ctrl-C to quit.")
	services.Speaker.Unlock(ctx)

	if err := toggleOnInput(ctx, in, gate.Toggle, logger); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// toggleOnInput calls toggle once per input line until ctx is done or the
// input ends.
func toggleOnInput(ctx context.Context, in io.Reader, toggle func(context.Context) error, logger *slog.Logger) error {
	lines := make(chan struct{})
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case <-lines:
			if err := toggle(ctx); err != nil {
				// Session failures already reach the sink.
				logger.Debug("toggle ignored", "reason", err)
			}
		}
	}
}
