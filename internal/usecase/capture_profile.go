package usecase

import (
	"time"

	"scopevoice/internal/ports"
)

// TimingPolicy is the single timing policy shared by sessions and the gate.
type TimingPolicy struct {
	Silence           time.Duration
	UnreliableSilence time.Duration
	FinalSilence      time.Duration
	Fallback          time.Duration
	Settle            time.Duration
	PlaybackFailsafe  time.Duration
	DispatchTimeout   time.Duration
	RestartBase       time.Duration
	RestartCap        time.Duration
	RestartWindow     time.Duration
	MaxRapidRestarts  int
}

// DefaultTimingPolicy returns silence=1.5s, fallback=3.5s, settle=1.5s.
func DefaultTimingPolicy() TimingPolicy {
	return TimingPolicy{
		Silence:           1500 * time.Millisecond,
		UnreliableSilence: 2500 * time.Millisecond,
		FinalSilence:      800 * time.Millisecond,
		Fallback:          3500 * time.Millisecond,
		Settle:            1500 * time.Millisecond,
		PlaybackFailsafe:  45 * time.Second,
		DispatchTimeout:   30 * time.Second,
		RestartBase:       200 * time.Millisecond,
		RestartCap:        3 * time.Second,
		RestartWindow:     time.Second,
		MaxRapidRestarts:  4,
	}
}

// withDefaults fills zero fields from the default policy.
func (p TimingPolicy) withDefaults() TimingPolicy {
	d := DefaultTimingPolicy()
	if p.Silence <= 0 {
		p.Silence = d.Silence
	}
	if p.UnreliableSilence <= 0 {
		p.UnreliableSilence = d.UnreliableSilence
	}
	if p.FinalSilence <= 0 {
		p.FinalSilence = d.FinalSilence
	}
	if p.Fallback <= 0 {
		p.Fallback = d.Fallback
	}
	if p.Settle <= 0 {
		p.Settle = d.Settle
	}
	if p.PlaybackFailsafe <= 0 {
		p.PlaybackFailsafe = d.PlaybackFailsafe
	}
	if p.DispatchTimeout <= 0 {
		p.DispatchTimeout = d.DispatchTimeout
	}
	if p.RestartBase <= 0 {
		p.RestartBase = d.RestartBase
	}
	if p.RestartCap < p.RestartBase {
		p.RestartCap = max(d.RestartCap, p.RestartBase)
	}
	if p.RestartWindow <= 0 {
		p.RestartWindow = d.RestartWindow
	}
	if p.MaxRapidRestarts <= 0 {
		p.MaxRapidRestarts = d.MaxRapidRestarts
	}
	return p
}

// CaptureProfile is the recognizer configuration chosen once at startup.
type CaptureProfile struct {
	Name           string
	Continuous     bool
	InterimResults bool
	// NativeFinal finalizes immediately on the recognizer's final flag.
	NativeFinal bool
	// Segmented shortens the silence window after a native final segment.
	Segmented     bool
	SilenceWindow time.Duration
	FinalWindow   time.Duration
	Fallback      time.Duration
}

const (
	ProfileContinuousInterim   = "continuous-interim"
	ProfileContinuousSegmented = "continuous-segmented"
	ProfileUnreliableInterim   = "unreliable-interim"
	ProfileSingleShot          = "single-shot"
)

// SelectCaptureProfile picks the capture profile for a recognizer.
func SelectCaptureProfile(caps ports.RecognizerCapabilities, timing TimingPolicy) CaptureProfile {
	timing = timing.withDefaults()

	switch {
	case !caps.Continuous:
		return CaptureProfile{
			Name:           ProfileSingleShot,
			Continuous:     false,
			InterimResults: caps.ReliableInterim,
			NativeFinal:    caps.NativeFinal,
			SilenceWindow:  timing.Silence,
			FinalWindow:    timing.Silence,
			Fallback:       timing.Fallback,
		}
	case !caps.ReliableInterim:
		return CaptureProfile{
			Name:           ProfileUnreliableInterim,
			Continuous:     true,
			InterimResults: false,
			SilenceWindow:  timing.UnreliableSilence,
			FinalWindow:    timing.UnreliableSilence,
			Fallback:       max(timing.Fallback, timing.UnreliableSilence),
		}
	case caps.NativeFinal:
		return CaptureProfile{
			Name:           ProfileContinuousSegmented,
			Continuous:     true,
			InterimResults: true,
			Segmented:      true,
			SilenceWindow:  timing.Silence,
			FinalWindow:    min(timing.FinalSilence, timing.Silence),
			Fallback:       timing.Fallback,
		}
	default:
		return CaptureProfile{
			Name:           ProfileContinuousInterim,
			Continuous:     true,
			InterimResults: true,
			SilenceWindow:  timing.Silence,
			FinalWindow:    timing.Silence,
			Fallback:       timing.Fallback,
		}
	}
}

// RecognizerConfig converts the profile into recognizer flags.
func (p CaptureProfile) RecognizerConfig(language string) ports.RecognizerConfig {
	return ports.RecognizerConfig{
		Continuous:     p.Continuous,
		InterimResults: p.InterimResults,
		Language:       language,
	}
}
