package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"scopevoice/internal/domain"
	"scopevoice/internal/ports"
)

var (
	ErrListenWhileSpeaking = errors.New("cannot start listening while speaking")
	ErrLoopBusy            = errors.New("voice loop is busy with a query")
	ErrWakeWordDisabled    = errors.New("wake word activation is disabled")
)

// CaptureSession is the part of TranscriptionSession the gate drives.
type CaptureSession interface {
	Start(ctx context.Context) error
	Stop() error
	State() domain.SessionState
}

// SessionFactory creates a fresh capture session bound to callbacks.
type SessionFactory func(callbacks SessionCallbacks) CaptureSession

// Dispatcher answers finalized utterances.
type Dispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (domain.Answer, error)
}

// Speaker plays answers back.
type Speaker interface {
	Speak(ctx context.Context, text string, listener PlaybackListener) PlaybackOutcome
	Cancel()
	Unlock(ctx context.Context)
}

// GateConfig controls loop behavior.
type GateConfig struct {
	Timing          TimingPolicy
	AutoResume      bool
	WakeWordEnabled bool
	Scope           domain.Scope
	DocumentID      string
	MaxRearms       int
}

// EchoLoopGate is the only owner of capture sessions. It serializes every
// loop transition and never lets listening overlap speaking.
type EchoLoopGate struct {
	newSession SessionFactory
	dispatcher Dispatcher
	speaker    Speaker
	rules      ports.RulesEngine
	events     ports.EventSink
	timing     TimingPolicy
	maxRearms  int
	log        *slog.Logger

	mu              sync.Mutex
	baseCtx         context.Context
	state           domain.LoopState
	gen             uint64
	session         CaptureSession
	submission      SubmissionRecord
	pending         string
	settle          *time.Timer
	cancelWork      context.CancelFunc
	rearms          int
	autoResume      bool
	resumeAfterTurn bool
	wakeWordEnabled bool
	scope           domain.Scope
	documentID      string
}

func NewEchoLoopGate(
	newSession SessionFactory,
	dispatcher Dispatcher,
	speaker Speaker,
	rules ports.RulesEngine,
	events ports.EventSink,
	cfg GateConfig,
	logger *slog.Logger,
) *EchoLoopGate {
	if cfg.MaxRearms <= 0 {
		cfg.MaxRearms = 3
	}
	if cfg.Scope == "" {
		cfg.Scope = domain.ScopeDocument
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EchoLoopGate{
		newSession:      newSession,
		dispatcher:      dispatcher,
		speaker:         speaker,
		rules:           rules,
		events:          events,
		timing:          cfg.Timing.withDefaults(),
		maxRearms:       cfg.MaxRearms,
		log:             logger.With("component", "EchoLoopGate"),
		baseCtx:         context.Background(),
		state:           domain.LoopStateIdle,
		autoResume:      cfg.AutoResume,
		wakeWordEnabled: cfg.WakeWordEnabled,
		scope:           cfg.Scope,
		documentID:      cfg.DocumentID,
	}
}

// State returns the current loop state.
func (g *EchoLoopGate) State() domain.LoopState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Status returns a snapshot for the host UI.
func (g *EchoLoopGate) Status() domain.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	status := domain.Status{
		State:         g.state,
		Session:       domain.SessionStateIdle,
		AutoResume:    g.autoResume,
		Scope:         g.scope,
		DocumentID:    g.documentID,
		LastSubmitted: g.submission.LastSubmittedText,
	}
	if g.session != nil {
		status.Session = g.session.State()
	}
	return status
}

// SetAutoResume opts in to listening again after an answer is spoken. It
// applies to queries that start after the call.
func (g *EchoLoopGate) SetAutoResume(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.autoResume = enabled
}

// SetWakeWordEnabled toggles wake-word activation.
func (g *EchoLoopGate) SetWakeWordEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wakeWordEnabled = enabled
}

// SetScope selects the requested scope for following queries.
func (g *EchoLoopGate) SetScope(scope domain.Scope, documentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if scope != domain.ScopeProject {
		scope = domain.ScopeDocument
	}
	g.scope = scope
	g.documentID = strings.TrimSpace(documentID)
}

// Toggle handles a user tap: it starts listening from Idle and stops the
// loop from any other state. The state check and the transition share one
// critical section.
func (g *EchoLoopGate) Toggle(ctx context.Context) error {
	g.speaker.Unlock(ctx)

	g.mu.Lock()
	if g.state != domain.LoopStateIdle {
		halted := g.stopLocked()
		g.mu.Unlock()
		g.release(halted)
		return nil
	}
	session, gen := g.listenLocked(ctx, domain.LoopReasonUserTap)
	g.mu.Unlock()
	return g.startSession(ctx, session, gen)
}

// ActivateWakeWord starts listening in response to a wake-word trigger.
func (g *EchoLoopGate) ActivateWakeWord(ctx context.Context) error {
	g.mu.Lock()
	enabled := g.wakeWordEnabled
	g.mu.Unlock()
	if !enabled {
		return ErrWakeWordDisabled
	}
	return g.Listen(ctx, domain.LoopReasonWakeWord)
}

// Listen moves Idle to Listening. It is refused while speaking or while a
// query is in flight.
func (g *EchoLoopGate) Listen(ctx context.Context, reason domain.LoopStateReason) error {
	g.mu.Lock()
	switch g.state {
	case domain.LoopStateSpeaking:
		g.mu.Unlock()
		return ErrListenWhileSpeaking
	case domain.LoopStateSubmitting, domain.LoopStateProcessing:
		g.mu.Unlock()
		return ErrLoopBusy
	case domain.LoopStateListening:
		g.mu.Unlock()
		return nil
	}
	session, gen := g.listenLocked(ctx, reason)
	g.mu.Unlock()

	return g.startSession(ctx, session, gen)
}

// listenLocked starts a fresh listen from Idle.
func (g *EchoLoopGate) listenLocked(ctx context.Context, reason domain.LoopStateReason) (CaptureSession, uint64) {
	if ctx == nil {
		ctx = context.Background()
	}
	g.baseCtx = ctx
	g.submission.Reset()
	g.rearms = 0
	return g.startListeningLocked(reason)
}

// Stop returns the loop to Idle from any state.
func (g *EchoLoopGate) Stop() {
	g.mu.Lock()
	halted := g.stopLocked()
	g.mu.Unlock()
	g.release(halted)
}

// haltedRun is what is left to tear down outside the lock after a stop.
type haltedRun struct {
	session CaptureSession
	prev    domain.LoopState
}

func (g *EchoLoopGate) stopLocked() haltedRun {
	halted := haltedRun{session: g.session, prev: g.state}
	g.session = nil
	g.gen++
	g.stopSettleLocked()
	if g.cancelWork != nil {
		g.cancelWork()
		g.cancelWork = nil
	}
	if halted.prev == domain.LoopStateSpeaking {
		g.events.HostEvent(domain.HostEventSpeechComplete)
	}
	if halted.prev != domain.LoopStateIdle {
		g.transitionLocked(domain.LoopStateIdle, domain.LoopReasonUserStopped)
	}
	return halted
}

func (g *EchoLoopGate) release(halted haltedRun) {
	if halted.session != nil {
		_ = halted.session.Stop()
	}
	if halted.prev == domain.LoopStateProcessing || halted.prev == domain.LoopStateSpeaking {
		g.speaker.Cancel()
	}
}

func (g *EchoLoopGate) startListeningLocked(reason domain.LoopStateReason) (CaptureSession, uint64) {
	g.gen++
	gen := g.gen
	session := g.newSession(SessionCallbacks{
		OnPartial:   func(text string) { g.onPartial(gen, text) },
		OnFinalized: func(text string) { g.onUtteranceFinalized(gen, text) },
		OnError:     func(err *SessionError) { g.onSessionError(gen, err) },
	})
	g.session = session
	g.transitionLocked(domain.LoopStateListening, reason)
	return session, gen
}

func (g *EchoLoopGate) startSession(ctx context.Context, session CaptureSession, gen uint64) error {
	if err := session.Start(ctx); err != nil {
		sessErr := classifySessionError(err, domain.ErrorCodeStartFailed)
		g.onSessionError(gen, sessErr)
		return sessErr
	}
	return nil
}

func (g *EchoLoopGate) onPartial(gen uint64, text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen || g.state != domain.LoopStateListening {
		return
	}
	g.events.PartialTranscript(text)
}

func (g *EchoLoopGate) onUtteranceFinalized(gen uint64, raw string) {
	g.mu.Lock()
	if gen != g.gen || g.state != domain.LoopStateListening {
		g.mu.Unlock()
		return
	}
	finished := g.session
	text := g.normalize(raw)

	if text == "" || g.submission.IsDuplicate(text) {
		reason := domain.LoopReasonNoTranscript
		if text != "" {
			reason = domain.LoopReasonDuplicateSuppressed
		}
		g.rearms++
		if g.rearms > g.maxRearms {
			g.session = nil
			g.gen++
			g.transitionLocked(domain.LoopStateIdle, reason)
			g.mu.Unlock()
			if finished != nil {
				_ = finished.Stop()
			}
			return
		}
		g.log.Debug("utterance not submitted; listening again", "reason", reason, "rearms", g.rearms)
		ctx := g.baseCtx
		session, nextGen := g.startListeningLocked(reason)
		g.mu.Unlock()
		if finished != nil {
			_ = finished.Stop()
		}
		_ = g.startSession(ctx, session, nextGen)
		return
	}

	g.rearms = 0
	g.submission.Record(text, time.Now())
	g.pending = text
	g.session = nil
	g.transitionLocked(domain.LoopStateSubmitting, domain.LoopReasonUtteranceSubmitted)
	g.events.UtteranceSubmitted(text)
	g.stopSettleLocked()
	g.settle = time.AfterFunc(g.timing.Settle, func() { g.beginProcessing(gen) })
	g.mu.Unlock()

	if finished != nil {
		_ = finished.Stop()
	}
}

func (g *EchoLoopGate) normalize(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" || g.rules == nil {
		return text
	}
	out, err := g.rules.Apply(text)
	if err != nil {
		g.log.Warn("utterance rules failed; using raw transcript", "error", err)
		g.events.LoopError(domain.ErrorCodeRules, err.Error())
		return text
	}
	return strings.TrimSpace(out)
}

func (g *EchoLoopGate) beginProcessing(gen uint64) {
	g.mu.Lock()
	if gen != g.gen || g.state != domain.LoopStateSubmitting {
		g.mu.Unlock()
		return
	}
	g.settle = nil
	req := DispatchRequest{Text: g.pending, Scope: g.scope, DocumentID: g.documentID}
	g.resumeAfterTurn = g.autoResume
	ctx, cancel := context.WithTimeout(g.baseCtx, g.timing.DispatchTimeout)
	g.cancelWork = cancel
	g.transitionLocked(domain.LoopStateProcessing, domain.LoopReasonQueryStarted)
	g.mu.Unlock()

	answer, err := g.dispatcher.Dispatch(ctx, req)
	cancel()

	g.mu.Lock()
	if gen != g.gen || g.state != domain.LoopStateProcessing {
		g.mu.Unlock()
		return
	}
	if err != nil {
		g.cancelWork = nil
		g.log.Warn("dispatch failed", "error", err)
		g.events.LoopError(domain.ErrorCodeDispatch, err.Error())
		g.transitionLocked(domain.LoopStateIdle, domain.LoopReasonDispatchFailed)
		g.mu.Unlock()
		return
	}
	g.events.AnswerReady(answer)
	if answer.Scope.FellBack() {
		g.events.ScopeNotice(answer.Scope)
	}
	speakCtx, speakCancel := context.WithCancel(g.baseCtx)
	g.cancelWork = speakCancel
	g.mu.Unlock()

	g.speaker.Speak(speakCtx, answer.Text, gatePlayback{gate: g, gen: gen})
	speakCancel()
}

func (g *EchoLoopGate) playbackStarted(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen || g.state != domain.LoopStateProcessing {
		return
	}
	g.transitionLocked(domain.LoopStateSpeaking, domain.LoopReasonAnswerSpeaking)
	g.events.HostEvent(domain.HostEventSpeechStart)
}

// playbackFinished treats failure exactly like completion.
func (g *EchoLoopGate) playbackFinished(gen uint64, playErr error) {
	g.mu.Lock()
	if gen != g.gen || (g.state != domain.LoopStateSpeaking && g.state != domain.LoopStateProcessing) {
		g.mu.Unlock()
		return
	}
	if g.state == domain.LoopStateSpeaking {
		g.events.HostEvent(domain.HostEventSpeechComplete)
	}
	g.cancelWork = nil

	reason := domain.LoopReasonPlaybackComplete
	if playErr != nil {
		reason = domain.LoopReasonPlaybackFailed
		g.log.Info("playback failed; continuing loop", "error", playErr)
	}

	if !g.resumeAfterTurn {
		g.transitionLocked(domain.LoopStateIdle, reason)
		g.mu.Unlock()
		return
	}
	ctx := g.baseCtx
	g.rearms = 0
	session, nextGen := g.startListeningLocked(domain.LoopReasonAutoResume)
	g.mu.Unlock()
	_ = g.startSession(ctx, session, nextGen)
}

func (g *EchoLoopGate) onSessionError(gen uint64, err *SessionError) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen || g.state != domain.LoopStateListening {
		return
	}
	g.session = nil
	g.gen++

	reason := domain.LoopReasonTranscriptionFailed
	switch err.Code {
	case domain.ErrorCodePermission:
		reason = domain.LoopReasonPermissionDenied
	case domain.ErrorCodeLoopGuard:
		reason = domain.LoopReasonLoopGuardTripped
	}
	g.log.Warn("capture failed", "code", err.Code, "error", err)
	g.events.LoopError(err.Code, err.Error())
	g.transitionLocked(domain.LoopStateIdle, reason)
}

func (g *EchoLoopGate) stopSettleLocked() {
	if g.settle != nil {
		g.settle.Stop()
		g.settle = nil
	}
}

// transitionLocked applies one serialized transition and emits host events.
func (g *EchoLoopGate) transitionLocked(to domain.LoopState, reason domain.LoopStateReason) {
	from := g.state
	if !canTransition(from, to) {
		g.log.Error("invalid loop transition", "from", from, "to", to, "reason", reason)
		return
	}
	g.state = to
	if from == domain.LoopStateListening && to != domain.LoopStateListening {
		g.events.HostEvent(domain.HostEventDictationStop)
	}
	g.events.LoopStateChanged(to, reason)
	if to == domain.LoopStateListening && from != domain.LoopStateListening {
		g.events.HostEvent(domain.HostEventDictationStart)
	}
}

func canTransition(from, to domain.LoopState) bool {
	if to == domain.LoopStateIdle {
		return true
	}
	switch from {
	case domain.LoopStateIdle:
		return to == domain.LoopStateListening
	case domain.LoopStateListening:
		return to == domain.LoopStateListening || to == domain.LoopStateSubmitting
	case domain.LoopStateSubmitting:
		return to == domain.LoopStateProcessing
	case domain.LoopStateProcessing:
		return to == domain.LoopStateSpeaking || to == domain.LoopStateListening
	case domain.LoopStateSpeaking:
		return to == domain.LoopStateListening
	}
	return false
}

type gatePlayback struct {
	gate *EchoLoopGate
	gen  uint64
}

func (p gatePlayback) PlaybackStarted()         { p.gate.playbackStarted(p.gen) }
func (p gatePlayback) PlaybackCompleted()       { p.gate.playbackFinished(p.gen, nil) }
func (p gatePlayback) PlaybackFailed(err error) { p.gate.playbackFinished(p.gen, err) }
