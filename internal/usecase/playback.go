package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"scopevoice/internal/ports"
)

var ErrPlaybackTimeout = errors.New("playback exceeded failsafe timeout")

// PlaybackOutcome reports how a Speak call ended.
type PlaybackOutcome string

const (
	PlaybackCompleted PlaybackOutcome = "completed"
	PlaybackFailed    PlaybackOutcome = "failed"
	PlaybackCancelled PlaybackOutcome = "cancelled"
)

// PlaybackListener observes playback lifecycle.
type PlaybackListener interface {
	PlaybackStarted()
	PlaybackCompleted()
	PlaybackFailed(err error)
}

// SpeechPlaybackCoordinator synthesizes and plays answers. Failures never
// propagate as errors so the loop cannot stall on audio problems.
type SpeechPlaybackCoordinator struct {
	synth    ports.Synthesizer
	player   ports.AudioPlayer
	voiceID  string
	failsafe time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	playSeq  uint64
	unlocked bool
}

func NewSpeechPlaybackCoordinator(
	synth ports.Synthesizer,
	player ports.AudioPlayer,
	voiceID string,
	failsafe time.Duration,
	logger *slog.Logger,
) *SpeechPlaybackCoordinator {
	if failsafe <= 0 {
		failsafe = DefaultTimingPolicy().PlaybackFailsafe
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpeechPlaybackCoordinator{
		synth:    synth,
		player:   player,
		voiceID:  voiceID,
		failsafe: failsafe,
		log:      logger.With("component", "SpeechPlaybackCoordinator"),
	}
}

// Unlock primes players that need a user gesture. It is safe to call on
// every gesture; only the first successful call reaches the player.
func (c *SpeechPlaybackCoordinator) Unlock(ctx context.Context) {
	c.mu.Lock()
	if c.unlocked {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	unlocker, ok := c.player.(ports.Unlocker)
	if ok {
		if err := unlocker.Unlock(ctx); err != nil {
			c.log.Warn("audio unlock failed", "error", err)
			return
		}
	}

	c.mu.Lock()
	c.unlocked = true
	c.mu.Unlock()
}

// Speak plays text and blocks until playback completes, fails, times out or
// is cancelled. Exactly one of PlaybackCompleted or PlaybackFailed is sent to
// listener, after PlaybackStarted when audio began.
func (c *SpeechPlaybackCoordinator) Speak(ctx context.Context, text string, listener PlaybackListener) PlaybackOutcome {
	if listener == nil {
		listener = noopPlaybackListener{}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		listener.PlaybackCompleted()
		return PlaybackCompleted
	}

	playCtx, cancel := context.WithTimeout(ctx, c.failsafe)
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.playSeq++
	seq := c.playSeq
	c.mu.Unlock()
	defer c.release(seq, cancel)

	outcome, err := c.play(playCtx, text, listener)
	switch outcome {
	case PlaybackCompleted:
		listener.PlaybackCompleted()
	default:
		if err != nil {
			c.log.Warn("speech playback degraded", "outcome", outcome, "error", err)
		}
		listener.PlaybackFailed(err)
	}
	return outcome
}

func (c *SpeechPlaybackCoordinator) play(ctx context.Context, text string, listener PlaybackListener) (PlaybackOutcome, error) {
	audio, err := c.synth.Synthesize(ctx, text, c.voiceID)
	if err != nil {
		return c.outcomeFor(ctx, fmt.Errorf("synthesize: %w", err))
	}
	defer audio.Close()

	listener.PlaybackStarted()
	if err := c.player.Play(ctx, audio); err != nil {
		return c.outcomeFor(ctx, fmt.Errorf("play: %w", err))
	}
	if ctx.Err() != nil {
		return c.outcomeFor(ctx, ctx.Err())
	}
	return PlaybackCompleted, nil
}

func (c *SpeechPlaybackCoordinator) outcomeFor(ctx context.Context, err error) (PlaybackOutcome, error) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return PlaybackFailed, fmt.Errorf("%w: %w", ErrPlaybackTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return PlaybackCancelled, err
	default:
		return PlaybackFailed, err
	}
}

// Cancel stops any playback in progress.
func (c *SpeechPlaybackCoordinator) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *SpeechPlaybackCoordinator) release(seq uint64, cancel context.CancelFunc) {
	cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playSeq == seq {
		c.cancel = nil
	}
}

type noopPlaybackListener struct{}

func (noopPlaybackListener) PlaybackStarted()       {}
func (noopPlaybackListener) PlaybackCompleted()     {}
func (noopPlaybackListener) PlaybackFailed(_ error) {}
