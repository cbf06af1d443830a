package usecase

import (
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// restartGuard paces recognizer restarts and trips after too many rapid ends
// in a row. A run is rapid when it ended within the window of its start.
type restartGuard struct {
	mu sync.Mutex

	base   time.Duration
	cap    time.Duration
	window time.Duration
	limit  int

	backoff retry.Backoff
	rapid   int
}

func newRestartGuard(timing TimingPolicy) *restartGuard {
	timing = timing.withDefaults()
	g := &restartGuard{
		base:   timing.RestartBase,
		cap:    timing.RestartCap,
		window: timing.RestartWindow,
		limit:  timing.MaxRapidRestarts,
	}
	g.backoff = g.newBackoff()
	return g
}

func (g *restartGuard) newBackoff() retry.Backoff {
	return retry.WithCappedDuration(g.cap, retry.NewExponential(g.base))
}

// Record registers an unexpected end of a run that started at started. It
// returns the delay before the next restart, or ok=false once more than limit
// consecutive rapid ends were seen. A run that lasted the full window clears
// the count; time spent in backoff is not part of any run.
func (g *restartGuard) Record(started, ended time.Time) (delay time.Duration, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if ended.Sub(started) < g.window {
		g.rapid++
	} else {
		g.rapid = 0
		g.backoff = g.newBackoff()
	}
	if g.rapid > g.limit {
		return 0, false
	}

	next, stop := g.backoff.Next()
	if stop {
		return 0, false
	}
	return next, true
}

// Reset clears the attempt counter after a capture produced speech.
func (g *restartGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rapid = 0
	g.backoff = g.newBackoff()
}

// Attempts returns the number of consecutive rapid ends.
func (g *restartGuard) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rapid
}
