// Package commands implements the scopevoice CLI.
package commands

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	verbose bool
	logger  *slog.Logger
}

// NewRootCmd builds the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	opts := &globalOptions{logger: slog.Default()}

	root := &cobra.Command{
		Use:   "scopevoice",
		Short: "Ask your documents questions by voice",
		Long: `scopevoice listens for a spoken question, searches your documents and
reads the answer back.

Examples:
  scopevoice ask "when is the report due"
  scopevoice ask --speak "summarize chapter two"
  scopevoice speak "testing one two three"
  scopevoice listen --auto-resume`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.logger = newLogger(cmd.ErrOrStderr(), os.Getenv("SCOPEVOICE_LOG_FORMAT"), os.Getenv("SCOPEVOICE_LOG_LEVEL"), opts.verbose)
			slog.SetDefault(opts.logger)
		},
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logs")
	root.AddCommand(
		newAskCmd(opts),
		newSpeakCmd(opts),
		newListenCmd(opts),
	)
	return root
}

// newLogger picks a text or JSON handler; verbose forces debug level.
func newLogger(w io.Writer, format, level string, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	if verbose {
		logLevel = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
