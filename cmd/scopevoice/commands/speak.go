package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"scopevoice/internal/bootstrap"
	"scopevoice/internal/config"
	"scopevoice/internal/usecase"
)

func newSpeakCmd(opts *globalOptions) *cobra.Command {
	var voice string

	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Synthesize text and play it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if voice != "" {
				cfg.Speech.Voice = voice
			}

			speaker, err := bootstrap.NewSpeaker(cfg, opts.logger)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return speakText(ctx, speaker, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&voice, "voice", "", "voice id (defaults to the configured voice)")
	return cmd
}

func speakText(ctx context.Context, speaker usecase.Speaker, text string) error {
	speaker.Unlock(ctx)
	if outcome := speaker.Speak(ctx, text, nil); outcome != usecase.PlaybackCompleted {
		return fmt.Errorf("playback %s", outcome)
	}
	return nil
}
