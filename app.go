package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"scopevoice/internal/bootstrap"
	"scopevoice/internal/config"
	"scopevoice/internal/domain"
	"scopevoice/internal/usecase"
)

const (
	eventLoop      = "scopevoice:loop"
	eventPartial   = "scopevoice:partial"
	eventSubmitted = "scopevoice:submitted"
	eventAnswer    = "scopevoice:answer"
	eventScope     = "scopevoice:scope"
	eventError     = "scopevoice:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context
	log *slog.Logger

	gate       *usecase.EchoLoopGate
	dispatcher *usecase.QueryDispatcher
	speaker    *usecase.SpeechPlaybackCoordinator
	profile    usecase.CaptureProfile
	cfg        config.Config
	bootErr    error

	offWakeWord func()
}

func NewApp(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{log: logger}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, a, a.log)
	if err != nil {
		a.bootErr = err
		a.log.Error("startup failed", "error", err)
		a.LoopError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.gate = services.Gate
	a.dispatcher = services.Dispatcher
	a.speaker = services.Speaker
	a.profile = services.Profile
	a.offWakeWord = runtime.EventsOn(ctx, string(domain.HostEventWakeWordActivated), func(...interface{}) {
		go a.activateWakeWord()
	})
	a.LoopStateChanged(domain.LoopStateIdle, domain.LoopReasonMicCold)
}

func (a *App) shutdown(context.Context) {
	if a.offWakeWord != nil {
		a.offWakeWord()
	}
	if a.gate != nil {
		a.gate.Stop()
	}
}

// Toggle is bound to the mic button: it starts listening from idle and
// stops the loop otherwise.
func (a *App) Toggle() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.gate.Toggle(a.ctx); err != nil {
		return a.gate.Status(), err
	}
	return a.gate.Status(), nil
}

// StopLoop stops listening, processing and speaking.
func (a *App) StopLoop() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.gate.Stop()
	return a.gate.Status(), nil
}

// SetAutoResume toggles hands-free listening after answers.
func (a *App) SetAutoResume(enabled bool) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.gate.SetAutoResume(enabled)
	return a.gate.Status(), nil
}

// SetWakeWord toggles wake-word activation.
func (a *App) SetWakeWord(enabled bool) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.gate.SetWakeWordEnabled(enabled)
	return a.gate.Status(), nil
}

// SetScope selects project or document scope for following queries.
func (a *App) SetScope(scope string, documentID string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.gate.SetScope(domain.Scope(scope), documentID)
	return a.gate.Status(), nil
}

// Ask answers a typed query without touching the voice loop.
func (a *App) Ask(text string) (domain.Answer, error) {
	if err := a.requireReady(); err != nil {
		return domain.Answer{}, err
	}
	status := a.gate.Status()
	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.Timing.DispatchTimeout)
	defer cancel()

	answer, err := a.dispatcher.Dispatch(ctx, usecase.DispatchRequest{
		Text:       text,
		Scope:      status.Scope,
		DocumentID: status.DocumentID,
	})
	if err != nil {
		a.LoopError(domain.ErrorCodeDispatch, err.Error())
		return domain.Answer{}, err
	}
	a.AnswerReady(answer)
	if answer.Scope.FellBack() {
		a.ScopeNotice(answer.Scope)
	}
	return answer, nil
}

// GetStatus returns the current loop status.
func (a *App) GetStatus() domain.Status {
	if a.gate == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.LoopStateIdle, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.LoopStateIdle, Session: domain.SessionStateIdle}
	}
	return a.gate.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	answerModel := a.cfg.Answer.OpenAI.Model
	if a.cfg.Answer.Provider == config.AnswerProviderGemini {
		answerModel = a.cfg.Answer.Gemini.Model
	}
	return map[string]string{
		"transcription":    "Deepgram",
		"model":            a.cfg.Deepgram.Model,
		"language":         a.cfg.Deepgram.Language,
		"captureProfile":   a.profile.Name,
		"answerProvider":   a.cfg.Answer.Provider,
		"answerModel":      answerModel,
		"voice":            a.cfg.Speech.Voice,
		"rulesFile":        a.cfg.Rules.Path,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
		"configFile":       a.cfg.File,
	}
}

func (a *App) activateWakeWord() {
	if a.gate == nil {
		return
	}
	err := a.gate.ActivateWakeWord(a.ctx)
	switch {
	case err == nil:
	case errors.Is(err, usecase.ErrWakeWordDisabled),
		errors.Is(err, usecase.ErrListenWhileSpeaking),
		errors.Is(err, usecase.ErrLoopBusy):
		a.log.Debug("wake word ignored", "reason", err)
	default:
		a.log.Warn("wake word activation failed", "error", err)
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.gate == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// LoopStateChanged emits loop state updates to the frontend.
func (a *App) LoopStateChanged(state domain.LoopState, reason domain.LoopStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventLoop, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": loopReasonMessage(reason),
	})
}

// PartialTranscript emits the running transcript.
func (a *App) PartialTranscript(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPartial, map[string]string{"text": text})
}

// UtteranceSubmitted emits the finalized utterance being sent as a query.
func (a *App) UtteranceSubmitted(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSubmitted, map[string]string{"text": text})
}

// AnswerReady emits an answer before it is spoken.
func (a *App) AnswerReady(answer domain.Answer) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventAnswer, answer)
}

// ScopeNotice tells the user a document query was widened to the project.
func (a *App) ScopeNotice(selection domain.ScopeSelection) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventScope, selection)
}

// LoopError emits backend errors to the UI.
func (a *App) LoopError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

// HostEvent forwards speech and dictation lifecycle events.
func (a *App) HostEvent(event domain.HostEvent) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, string(event))
}

func loopReasonMessage(reason domain.LoopStateReason) string {
	switch reason {
	case domain.LoopReasonMicCold:
		return "Mic cold"
	case domain.LoopReasonUserTap, domain.LoopReasonWakeWord:
		return "Listening"
	case domain.LoopReasonAutoResume:
		return "Listening for a follow-up"
	case domain.LoopReasonRearmed:
		return "Still listening"
	case domain.LoopReasonUtteranceSubmitted:
		return "Got it"
	case domain.LoopReasonQueryStarted:
		return "Searching your documents..."
	case domain.LoopReasonAnswerSpeaking:
		return "Answering"
	case domain.LoopReasonPlaybackComplete:
		return "Done"
	case domain.LoopReasonPlaybackFailed:
		return "Answer ready (audio playback failed)"
	case domain.LoopReasonUserStopped:
		return "Stopped"
	case domain.LoopReasonNoTranscript:
		return "Didn't catch that"
	case domain.LoopReasonDuplicateSuppressed:
		return "Already asked that"
	case domain.LoopReasonPermissionDenied:
		return "Microphone access denied"
	case domain.LoopReasonTranscriptionFailed:
		return "Transcription failed"
	case domain.LoopReasonLoopGuardTripped:
		return "Microphone kept restarting; tap to try again"
	case domain.LoopReasonDispatchFailed:
		return "Couldn't answer that"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermission:
		return "Microphone permission denied"
	case domain.ErrorCodeStartFailed:
		return "Microphone failed to start"
	case domain.ErrorCodeNetwork:
		return "Transcription connection lost"
	case domain.ErrorCodeAudioCapture:
		return "Audio capture issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeLoopGuard:
		return "Microphone restart loop stopped"
	case domain.ErrorCodeDispatch:
		return "Query failed"
	case domain.ErrorCodePlayback:
		return "Playback failed"
	case domain.ErrorCodeRules:
		return "Rules processing failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
