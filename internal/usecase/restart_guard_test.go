package usecase

import (
	"testing"
	"time"
)

func TestRestartGuardBacksOffExponentially(t *testing.T) {
	t.Parallel()

	guard := newRestartGuard(TimingPolicy{
		RestartBase:      100 * time.Millisecond,
		RestartCap:       300 * time.Millisecond,
		RestartWindow:    time.Second,
		MaxRapidRestarts: 10,
	})

	now := time.Now()
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, expected := range want {
		delay, ok := guard.Record(now, now.Add(time.Millisecond))
		if !ok {
			t.Fatalf("attempt %d unexpectedly tripped the guard", i)
		}
		if delay != expected {
			t.Fatalf("attempt %d: expected %v, got %v", i, expected, delay)
		}
	}
}

func TestRestartGuardTripsAfterLimitRapidEnds(t *testing.T) {
	t.Parallel()

	guard := newRestartGuard(TimingPolicy{RestartWindow: time.Second, MaxRapidRestarts: 3})
	now := time.Now()
	for i := 0; i < 3; i++ {
		if _, ok := guard.Record(now, now.Add(10*time.Millisecond)); !ok {
			t.Fatalf("attempt %d tripped early", i)
		}
	}
	if _, ok := guard.Record(now, now.Add(10*time.Millisecond)); ok {
		t.Fatalf("expected guard to trip on the fourth rapid end")
	}
}

// Ends are replayed on the real backoff schedule: each run starts after the
// returned delay and dies right away.
func TestRestartGuardTripsOnDefaultBackoffSchedule(t *testing.T) {
	t.Parallel()

	timing := DefaultTimingPolicy()
	guard := newRestartGuard(timing)

	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	ends := 0
	for ; ends < 20; ends++ {
		started := clock
		ended := started.Add(20 * time.Millisecond)
		delay, ok := guard.Record(started, ended)
		if !ok {
			break
		}
		clock = ended.Add(delay)
	}

	if want := timing.MaxRapidRestarts + 1; ends+1 != want {
		t.Fatalf("expected trip on end %d, tripped on end %d", want, ends+1)
	}
	if elapsed := clock.Sub(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)); elapsed > 10*time.Second {
		t.Fatalf("restart storm ran for %v before tripping", elapsed)
	}
}

func TestRestartGuardScaledRatiosStillTrip(t *testing.T) {
	t.Parallel()

	// Base at a fifth of the window, as in the shipped policy.
	guard := newRestartGuard(TimingPolicy{
		RestartBase:      20 * time.Millisecond,
		RestartCap:       300 * time.Millisecond,
		RestartWindow:    100 * time.Millisecond,
		MaxRapidRestarts: 3,
	})

	clock := time.Now()
	for i := 0; i < 3; i++ {
		delay, ok := guard.Record(clock, clock.Add(time.Millisecond))
		if !ok {
			t.Fatalf("attempt %d tripped early", i)
		}
		clock = clock.Add(time.Millisecond + delay)
	}
	if _, ok := guard.Record(clock, clock.Add(time.Millisecond)); ok {
		t.Fatalf("expected trip once backoff spread ends beyond the window")
	}
}

func TestRestartGuardLongQuietRunClearsCount(t *testing.T) {
	t.Parallel()

	guard := newRestartGuard(TimingPolicy{RestartBase: 50 * time.Millisecond, RestartCap: time.Second, RestartWindow: time.Second, MaxRapidRestarts: 2})
	now := time.Now()
	guard.Record(now, now.Add(10*time.Millisecond))
	guard.Record(now, now.Add(10*time.Millisecond))

	delay, ok := guard.Record(now, now.Add(3*time.Second))
	if !ok || delay != 50*time.Millisecond {
		t.Fatalf("expected a long run to reset pacing, got %v ok=%v", delay, ok)
	}
	if got := guard.Attempts(); got != 0 {
		t.Fatalf("expected no rapid attempts after a long run, got %d", got)
	}
}

func TestRestartGuardResetRestoresBaseDelay(t *testing.T) {
	t.Parallel()

	guard := newRestartGuard(TimingPolicy{RestartBase: 50 * time.Millisecond, RestartCap: time.Second, MaxRapidRestarts: 5})
	now := time.Now()
	guard.Record(now, now.Add(time.Millisecond))
	guard.Record(now, now.Add(time.Millisecond))
	guard.Reset()

	if guard.Attempts() != 0 {
		t.Fatalf("expected no attempts after reset")
	}
	delay, ok := guard.Record(now, now.Add(time.Millisecond))
	if !ok || delay != 50*time.Millisecond {
		t.Fatalf("expected base delay after reset, got %v ok=%v", delay, ok)
	}
}
