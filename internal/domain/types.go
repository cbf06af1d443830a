package domain

import (
	"errors"
	"time"
)

// ErrPermissionDenied marks capture failures the user must fix by granting
// microphone or provider access again.
var ErrPermissionDenied = errors.New("capture permission denied")

// ErrDocumentNotFound is returned by status sources for unknown documents.
var ErrDocumentNotFound = errors.New("document not found")

// LoopState is the voice loop state exposed to the host UI.
type LoopState string

const (
	LoopStateIdle       LoopState = "idle"
	LoopStateListening  LoopState = "listening"
	LoopStateSubmitting LoopState = "submitting"
	LoopStateProcessing LoopState = "processing"
	LoopStateSpeaking   LoopState = "speaking"
)

// LoopStateReason provides a structured reason for loop transitions.
type LoopStateReason string

const (
	LoopReasonMicCold             LoopStateReason = "mic_cold"
	LoopReasonUserTap             LoopStateReason = "user_tap"
	LoopReasonWakeWord            LoopStateReason = "wake_word"
	LoopReasonAutoResume          LoopStateReason = "auto_resume"
	LoopReasonRearmed             LoopStateReason = "rearmed"
	LoopReasonUtteranceSubmitted  LoopStateReason = "utterance_submitted"
	LoopReasonQueryStarted        LoopStateReason = "query_started"
	LoopReasonAnswerSpeaking      LoopStateReason = "answer_speaking"
	LoopReasonPlaybackComplete    LoopStateReason = "playback_complete"
	LoopReasonPlaybackFailed      LoopStateReason = "playback_failed"
	LoopReasonUserStopped         LoopStateReason = "user_stopped"
	LoopReasonNoTranscript        LoopStateReason = "no_transcript"
	LoopReasonDuplicateSuppressed LoopStateReason = "duplicate_suppressed"
	LoopReasonPermissionDenied    LoopStateReason = "permission_denied"
	LoopReasonTranscriptionFailed LoopStateReason = "transcription_failed"
	LoopReasonLoopGuardTripped    LoopStateReason = "loop_guard_tripped"
	LoopReasonDispatchFailed      LoopStateReason = "dispatch_failed"
)

// SessionState models one capture attempt. Sessions are single use.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateStarting   SessionState = "starting"
	SessionStateListening  SessionState = "listening"
	SessionStateFinalizing SessionState = "finalizing"
	SessionStateStopped    SessionState = "stopped"
)

// ErrorCode identifies errors surfaced to the host.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodePermission    ErrorCode = "permission"
	ErrorCodeStartFailed   ErrorCode = "start_failed"
	ErrorCodeNetwork       ErrorCode = "network"
	ErrorCodeAudioCapture  ErrorCode = "audio_capture"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeLoopGuard     ErrorCode = "loop_guard"
	ErrorCodeDispatch      ErrorCode = "dispatch"
	ErrorCodePlayback      ErrorCode = "playback"
	ErrorCodeRules         ErrorCode = "rules"
)

// Recoverable reports whether a capture error may be retried once.
func (c ErrorCode) Recoverable() bool {
	return c == ErrorCodeNetwork || c == ErrorCodeAudioCapture
}

// TranscriptKind identifies whether a fragment is interim or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent is one utterance fragment delivered by the recognizer.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
	CapturedAt    time.Time      `json:"capturedAt"`
}

// IsFinal reports whether the fragment is a final result.
func (e TranscriptEvent) IsFinal() bool {
	return e.Kind == TranscriptKindFinal
}

// RecognitionEventType distinguishes recognizer callbacks.
type RecognitionEventType string

const (
	RecognitionResult RecognitionEventType = "result"
	RecognitionEnd    RecognitionEventType = "end"
	RecognitionError  RecognitionEventType = "error"
)

// RecognitionEvent is emitted by a running recognition.
type RecognitionEvent struct {
	Type      RecognitionEventType
	Fragments []TranscriptEvent
	Code      ErrorCode
	Err       error
}

// Scope is the retrieval boundary a query is evaluated against.
type Scope string

const (
	ScopeDocument Scope = "document"
	ScopeProject  Scope = "project"
)

// ScopeSelection records which scope was requested and which one was used.
type ScopeSelection struct {
	Requested Scope  `json:"requested"`
	Resolved  Scope  `json:"resolved"`
	Reason    string `json:"reason,omitempty"`
}

// FellBack reports whether the resolved scope differs from the requested one.
func (s ScopeSelection) FellBack() bool {
	return s.Requested != s.Resolved
}

// DocumentStatus is the processing status of an uploaded document.
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusProcessed  DocumentStatus = "processed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// QueryKind selects result count and context shaping for a query.
type QueryKind string

const (
	QueryKindQuestion QueryKind = "question"
	QueryKindSearch   QueryKind = "search"
)

// Passage is one retrieved chunk of a source document.
type Passage struct {
	Text       string  `json:"text"`
	SourceName string  `json:"sourceName"`
	Score      float64 `json:"score,omitempty"`
}

// Answer is the outcome of a dispatched query.
type Answer struct {
	QueryID        string         `json:"queryId"`
	Query          string         `json:"query"`
	Text           string         `json:"answerText"`
	RetrievedCount int            `json:"retrievedCount"`
	NothingFound   bool           `json:"nothingFound"`
	Kind           QueryKind      `json:"kind"`
	Scope          ScopeSelection `json:"scope"`
	Sources        []string       `json:"sources,omitempty"`
}

// Status summarizes the current loop status.
type Status struct {
	State         LoopState    `json:"state"`
	Session       SessionState `json:"session"`
	AutoResume    bool         `json:"autoResume"`
	Scope         Scope        `json:"scope"`
	DocumentID    string       `json:"documentId,omitempty"`
	LastSubmitted string       `json:"lastSubmitted,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// HostEvent names an event exchanged with the host UI.
type HostEvent string

const (
	HostEventSpeechStart       HostEvent = "speech:start"
	HostEventSpeechComplete    HostEvent = "speech:complete"
	HostEventDictationStart    HostEvent = "dictation:start"
	HostEventDictationStop     HostEvent = "dictation:stop"
	HostEventWakeWordActivated HostEvent = "wakeword:activate-mic"
)
