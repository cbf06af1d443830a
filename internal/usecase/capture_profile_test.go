package usecase

import (
	"testing"
	"time"

	"scopevoice/internal/ports"
)

func TestSelectCaptureProfile(t *testing.T) {
	t.Parallel()

	timing := DefaultTimingPolicy()
	cases := []struct {
		name     string
		caps     ports.RecognizerCapabilities
		want     string
		silence  time.Duration
		final    time.Duration
		fallback time.Duration
	}{
		{
			name:     "continuous with reliable interim",
			caps:     ports.RecognizerCapabilities{Continuous: true, ReliableInterim: true},
			want:     ProfileContinuousInterim,
			silence:  timing.Silence,
			final:    timing.Silence,
			fallback: timing.Fallback,
		},
		{
			name:     "continuous with native final segments",
			caps:     ports.RecognizerCapabilities{Continuous: true, ReliableInterim: true, NativeFinal: true},
			want:     ProfileContinuousSegmented,
			silence:  timing.Silence,
			final:    timing.FinalSilence,
			fallback: timing.Fallback,
		},
		{
			name:     "continuous with unreliable interim",
			caps:     ports.RecognizerCapabilities{Continuous: true},
			want:     ProfileUnreliableInterim,
			silence:  timing.UnreliableSilence,
			final:    timing.UnreliableSilence,
			fallback: timing.Fallback,
		},
		{
			name:     "single shot",
			caps:     ports.RecognizerCapabilities{NativeFinal: true},
			want:     ProfileSingleShot,
			silence:  timing.Silence,
			final:    timing.Silence,
			fallback: timing.Fallback,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := SelectCaptureProfile(tc.caps, timing)
			if got.Name != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got.Name)
			}
			if got.SilenceWindow != tc.silence || got.FinalWindow != tc.final || got.Fallback != tc.fallback {
				t.Fatalf("unexpected windows: %+v", got)
			}
			if got.Fallback < got.SilenceWindow {
				t.Fatalf("fallback must not be shorter than the silence window: %+v", got)
			}
		})
	}
}

func TestSelectCaptureProfileFillsZeroTiming(t *testing.T) {
	t.Parallel()

	got := SelectCaptureProfile(ports.RecognizerCapabilities{Continuous: true, ReliableInterim: true}, TimingPolicy{})
	if got.SilenceWindow != 1500*time.Millisecond || got.Fallback != 3500*time.Millisecond {
		t.Fatalf("expected default windows, got %+v", got)
	}
}

func TestCaptureProfileRecognizerConfig(t *testing.T) {
	t.Parallel()

	profile := SelectCaptureProfile(ports.RecognizerCapabilities{NativeFinal: true}, DefaultTimingPolicy())
	cfg := profile.RecognizerConfig("en-GB")
	if cfg.Continuous || cfg.InterimResults || cfg.Language != "en-GB" {
		t.Fatalf("unexpected recognizer config: %+v", cfg)
	}
	if !profile.NativeFinal {
		t.Fatalf("expected single-shot profile to keep native final")
	}
}

func TestTimingPolicyWithDefaultsKeepsOverrides(t *testing.T) {
	t.Parallel()

	got := TimingPolicy{Silence: time.Second, RestartBase: 50 * time.Millisecond, RestartCap: 10 * time.Millisecond}.withDefaults()
	if got.Silence != time.Second {
		t.Fatalf("expected silence override, got %v", got.Silence)
	}
	if got.RestartCap < got.RestartBase {
		t.Fatalf("expected cap to be raised to at least the base: %+v", got)
	}
	if got.Settle != 1500*time.Millisecond || got.MaxRapidRestarts != 4 {
		t.Fatalf("expected defaults for unset fields: %+v", got)
	}
}
