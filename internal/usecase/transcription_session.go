package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"scopevoice/internal/domain"
	"scopevoice/internal/ports"
)

var (
	ErrSessionUsed       = errors.New("transcription session already used")
	ErrLoopGuardTripped  = errors.New("recognizer restarted too often; try again")
	ErrRecognitionFailed = errors.New("recognition failed")
)

// SessionError is a capture failure classified for the host.
type SessionError struct {
	Code domain.ErrorCode
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// classifySessionError maps any capture error to a SessionError.
func classifySessionError(err error, fallback domain.ErrorCode) *SessionError {
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		return sessErr
	}
	if errors.Is(err, domain.ErrPermissionDenied) {
		return &SessionError{Code: domain.ErrorCodePermission, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &SessionError{Code: domain.ErrorCodeNetwork, Err: err}
	}
	return &SessionError{Code: fallback, Err: err}
}

// FinalizeTrigger names what finalized an utterance.
type FinalizeTrigger string

const (
	TriggerSilence  FinalizeTrigger = "silence"
	TriggerFallback FinalizeTrigger = "fallback"
	TriggerNative   FinalizeTrigger = "native_final"
	TriggerEnded    FinalizeTrigger = "ended"
	TriggerError    FinalizeTrigger = "error"
)

// SessionCallbacks receive session output. They are invoked without any
// session lock held.
type SessionCallbacks struct {
	OnPartial   func(text string)
	OnFinalized func(text string)
	OnError     func(err *SessionError)
}

// SessionConfig configures one TranscriptionSession.
type SessionConfig struct {
	Profile  CaptureProfile
	Timing   TimingPolicy
	Language string
}

// TranscriptionSession wraps one capture attempt: it accumulates fragments,
// finalizes the utterance exactly once and restarts the recognizer when it
// ends unexpectedly.
type TranscriptionSession struct {
	id         string
	recognizer ports.Recognizer
	profile    CaptureProfile
	language   string
	callbacks  SessionCallbacks
	guard      *restartGuard
	aggregator *transcriptAggregator
	log        *slog.Logger

	mu          sync.Mutex
	state       domain.SessionState
	ctx         context.Context
	cancel      context.CancelFunc
	run         ports.Recognition
	runGen      uint64
	runStarted  time.Time
	silence     *time.Timer
	silenceSeq  uint64
	fallback    *time.Timer
	restart     *time.Timer
	retried     bool
	finalizedBy FinalizeTrigger
}

// NewTranscriptionSession creates an idle, single-use session.
func NewTranscriptionSession(
	recognizer ports.Recognizer,
	cfg SessionConfig,
	callbacks SessionCallbacks,
	logger *slog.Logger,
) *TranscriptionSession {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Profile.SilenceWindow <= 0 || cfg.Profile.Fallback <= 0 {
		cfg.Profile = SelectCaptureProfile(recognizer.Capabilities(), cfg.Timing)
	}
	id := uuid.NewString()
	return &TranscriptionSession{
		id:         id,
		recognizer: recognizer,
		profile:    cfg.Profile,
		language:   cfg.Language,
		callbacks:  callbacks,
		guard:      newRestartGuard(cfg.Timing),
		aggregator: newTranscriptAggregator(),
		log:        logger.With("component", "TranscriptionSession", "session_id", id),
		state:      domain.SessionStateIdle,
	}
}

// ID returns the session identifier.
func (s *TranscriptionSession) ID() string { return s.id }

// State returns the current session state.
func (s *TranscriptionSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns the running transcript.
func (s *TranscriptionSession) Transcript() string {
	return s.aggregator.Current()
}

// FinalizedBy returns the trigger that finalized the session, if any.
func (s *TranscriptionSession) FinalizedBy() FinalizeTrigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalizedBy
}

// Start begins capture. A session can only be started once.
func (s *TranscriptionSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != domain.SessionStateIdle {
		s.mu.Unlock()
		return ErrSessionUsed
	}
	s.state = domain.SessionStateStarting
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	run, err := s.recognizer.Start(runCtx, s.profile.RecognizerConfig(s.language))

	s.mu.Lock()
	if s.state != domain.SessionStateStarting {
		s.mu.Unlock()
		if run != nil {
			_ = run.Stop()
		}
		return nil
	}
	if err != nil {
		s.state = domain.SessionStateStopped
		s.cancel()
		s.mu.Unlock()
		sessErr := classifySessionError(err, domain.ErrorCodeStartFailed)
		s.log.Warn("capture start failed", "code", sessErr.Code, "error", err)
		return sessErr
	}
	s.state = domain.SessionStateListening
	s.attachLocked(run)
	s.mu.Unlock()

	s.log.Debug("capture started", "profile", s.profile.Name)
	return nil
}

// Stop ends capture, clears every timer and discards late events.
func (s *TranscriptionSession) Stop() error {
	s.mu.Lock()
	if s.state == domain.SessionStateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = domain.SessionStateStopped
	s.stopTimersLocked()
	run := s.run
	s.run = nil
	s.runGen++
	cancel := s.cancel
	s.mu.Unlock()

	var err error
	if run != nil {
		err = run.Stop()
	}
	if cancel != nil {
		cancel()
	}
	return err
}

func (s *TranscriptionSession) attachLocked(run ports.Recognition) {
	s.runGen++
	s.run = run
	s.runStarted = time.Now()
	go s.consume(run, s.runGen)
}

func (s *TranscriptionSession) consume(run ports.Recognition, gen uint64) {
	terminal := false
	for event := range run.Events() {
		switch event.Type {
		case domain.RecognitionResult:
			s.handleResult(gen, event.Fragments)
		case domain.RecognitionEnd:
			terminal = true
			s.handleEnd(gen)
		case domain.RecognitionError:
			terminal = true
			s.handleError(gen, event)
		}
	}
	if !terminal {
		s.handleEnd(gen)
	}
}

func (s *TranscriptionSession) handleResult(gen uint64, fragments []domain.TranscriptEvent) {
	s.mu.Lock()
	if gen != s.runGen || s.state != domain.SessionStateListening {
		s.mu.Unlock()
		return
	}

	added := false
	finalSegment := false
	nativeFinal := false
	for _, fragment := range fragments {
		if fragment.CapturedAt.IsZero() {
			fragment.CapturedAt = time.Now()
		}
		if !s.aggregator.Add(fragment) {
			continue
		}
		added = true
		if fragment.IsFinal() {
			finalSegment = true
			if s.profile.NativeFinal && !s.profile.Continuous {
				nativeFinal = true
			}
		}
	}
	if !added {
		s.mu.Unlock()
		return
	}

	s.guard.Reset()
	s.retried = false
	text := s.aggregator.Current()

	if !nativeFinal {
		window := s.profile.SilenceWindow
		if s.profile.Segmented && finalSegment {
			window = s.profile.FinalWindow
		}
		s.armSilenceLocked(window)
		if s.fallback == nil {
			s.fallback = time.AfterFunc(s.profile.Fallback, func() {
				s.finalize(TriggerFallback)
			})
		}
	}
	s.mu.Unlock()

	if s.callbacks.OnPartial != nil {
		s.callbacks.OnPartial(text)
	}
	if nativeFinal {
		s.finalize(TriggerNative)
	}
}

func (s *TranscriptionSession) armSilenceLocked(window time.Duration) {
	if s.silence != nil {
		s.silence.Stop()
	}
	s.silenceSeq++
	seq := s.silenceSeq
	s.silence = time.AfterFunc(window, func() {
		s.mu.Lock()
		current := seq == s.silenceSeq
		s.mu.Unlock()
		if current {
			s.finalize(TriggerSilence)
		}
	})
}

// finalize emits the utterance if it is the first trigger to arrive.
func (s *TranscriptionSession) finalize(trigger FinalizeTrigger) bool {
	s.mu.Lock()
	if s.state != domain.SessionStateListening {
		s.mu.Unlock()
		return false
	}
	s.state = domain.SessionStateFinalizing
	s.finalizedBy = trigger
	s.stopTimersLocked()
	run := s.run
	s.run = nil
	s.runGen++
	text := s.aggregator.Current()
	s.mu.Unlock()

	if run != nil {
		_ = run.Stop()
	}
	s.log.Debug("utterance finalized", "trigger", trigger, "chars", len(text))
	if s.callbacks.OnFinalized != nil {
		s.callbacks.OnFinalized(text)
	}
	return true
}

func (s *TranscriptionSession) handleEnd(gen uint64) {
	s.mu.Lock()
	if gen != s.runGen || s.state != domain.SessionStateListening {
		s.mu.Unlock()
		return
	}
	s.run = nil
	s.runGen++

	if !s.profile.Continuous && !s.aggregator.Empty() {
		s.mu.Unlock()
		s.finalize(TriggerEnded)
		return
	}

	delay, ok := s.guard.Record(s.runStarted, time.Now())
	if !ok {
		s.mu.Unlock()
		s.log.Warn("recognizer restart loop detected", "attempts", s.guard.Attempts())
		s.fail(&SessionError{Code: domain.ErrorCodeLoopGuard, Err: ErrLoopGuardTripped})
		return
	}
	s.scheduleRestartLocked(delay)
	s.mu.Unlock()
	s.log.Debug("recognizer ended; restarting", "delay", delay)
}

func (s *TranscriptionSession) handleError(gen uint64, event domain.RecognitionEvent) {
	code := event.Code
	if code == "" {
		code = domain.ErrorCodeTranscription
	}
	cause := event.Err
	if cause == nil {
		cause = ErrRecognitionFailed
	}

	s.mu.Lock()
	if gen != s.runGen || s.state != domain.SessionStateListening {
		s.mu.Unlock()
		return
	}
	s.run = nil
	s.runGen++
	if s.retryLocked(code, s.runStarted) {
		s.mu.Unlock()
		s.log.Info("recoverable recognizer error; retrying once", "code", code, "error", cause)
		return
	}
	pending := !s.aggregator.Empty()
	s.mu.Unlock()

	if pending && code != domain.ErrorCodePermission {
		s.finalize(TriggerError)
		return
	}
	s.fail(&SessionError{Code: code, Err: cause})
}

// retryLocked schedules the single bounded retry for recoverable errors.
func (s *TranscriptionSession) retryLocked(code domain.ErrorCode, started time.Time) bool {
	if !code.Recoverable() || s.retried {
		return false
	}
	delay, ok := s.guard.Record(started, time.Now())
	if !ok {
		return false
	}
	s.retried = true
	s.scheduleRestartLocked(delay)
	return true
}

func (s *TranscriptionSession) scheduleRestartLocked(delay time.Duration) {
	if s.restart != nil {
		s.restart.Stop()
	}
	s.restart = time.AfterFunc(delay, s.restartRecognition)
}

func (s *TranscriptionSession) restartRecognition() {
	s.mu.Lock()
	if s.state != domain.SessionStateListening || s.run != nil {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	run, err := s.recognizer.Start(ctx, s.profile.RecognizerConfig(s.language))

	s.mu.Lock()
	if s.state != domain.SessionStateListening || s.run != nil {
		s.mu.Unlock()
		if run != nil {
			_ = run.Stop()
		}
		return
	}
	if err != nil {
		sessErr := classifySessionError(err, domain.ErrorCodeStartFailed)
		if s.retryLocked(sessErr.Code, time.Now()) {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.log.Warn("recognizer restart failed", "code", sessErr.Code, "error", err)
		s.fail(sessErr)
		return
	}
	s.attachLocked(run)
	s.mu.Unlock()
}

func (s *TranscriptionSession) fail(err *SessionError) {
	s.mu.Lock()
	if s.state == domain.SessionStateStopped || s.state == domain.SessionStateFinalizing {
		s.mu.Unlock()
		return
	}
	s.state = domain.SessionStateStopped
	s.stopTimersLocked()
	run := s.run
	s.run = nil
	s.runGen++
	cancel := s.cancel
	s.mu.Unlock()

	if run != nil {
		_ = run.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(err)
	}
}

func (s *TranscriptionSession) stopTimersLocked() {
	if s.silence != nil {
		s.silence.Stop()
		s.silence = nil
	}
	s.silenceSeq++
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
	if s.restart != nil {
		s.restart.Stop()
		s.restart = nil
	}
}
