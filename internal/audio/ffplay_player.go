package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// FFPlayPlayer plays synthesized speech by piping it into ffplay.
type FFPlayPlayer struct {
	command string

	mu       sync.Mutex
	unlocked bool
}

func NewFFPlayPlayer(command string) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlayPlayer{command: command}
}

// Unlock verifies the player binary is available. The first successful call
// is remembered.
func (p *FFPlayPlayer) Unlock(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unlocked {
		return nil
	}
	if _, err := exec.LookPath(p.command); err != nil {
		return fmt.Errorf("audio player unavailable: %w", err)
	}
	p.unlocked = true
	return nil
}

// Play blocks until the audio finished playing or ctx is cancelled.
func (p *FFPlayPlayer) Play(ctx context.Context, audio io.Reader) error {
	if audio == nil {
		return errors.New("no audio to play")
	}

	cmd := exec.CommandContext(ctx, p.command, "-nodisp", "-autoexit", "-loglevel", "error", "-")
	cmd.Stdin = audio
	stderr := &stderrTail{}
	cmd.Stderr = stderr
	cmd.WaitDelay = 500 * time.Millisecond

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if detail := stderr.String(); detail != "" {
			return fmt.Errorf("playback failed: %w: %s", err, detail)
		}
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}
