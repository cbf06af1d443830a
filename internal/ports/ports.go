package ports

import (
	"context"
	"io"

	"scopevoice/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
	Language       string
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// RecognizerConfig mirrors the flags of a platform speech recognizer.
type RecognizerConfig struct {
	Continuous     bool
	InterimResults bool
	Language       string
}

// RecognizerCapabilities is what capability probing reports about a recognizer.
type RecognizerCapabilities struct {
	Continuous      bool
	ReliableInterim bool
	NativeFinal     bool
}

// Recognition is one running capture. Events is closed after the end or
// error event has been delivered.
type Recognition interface {
	Events() <-chan domain.RecognitionEvent
	Stop() error
}

// Recognizer is the transcription primitive.
type Recognizer interface {
	Capabilities() RecognizerCapabilities
	Start(ctx context.Context, cfg RecognizerConfig) (Recognition, error)
}

// Synthesizer turns text into an encoded audio stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (io.ReadCloser, error)
}

// AudioPlayer plays an encoded audio stream until it ends.
type AudioPlayer interface {
	Play(ctx context.Context, audio io.Reader) error
}

// Unlocker is implemented by players that need a user gesture before the
// first playback succeeds.
type Unlocker interface {
	Unlock(ctx context.Context) error
}

// RetrievalRequest asks the retrieval service for passages.
type RetrievalRequest struct {
	ScopeID string `json:"scopeId"`
	Query   string `json:"query"`
	TopK    int    `json:"topK"`
}

// RetrievalResponse carries retrieved passages, best first.
type RetrievalResponse struct {
	Passages []domain.Passage `json:"passages"`
}

// Retriever searches documents within a scope.
type Retriever interface {
	Retrieve(ctx context.Context, req RetrievalRequest) (RetrievalResponse, error)
}

// AnswerRequest asks the answer-generation service for a grounded answer.
type AnswerRequest struct {
	Query   string
	Context string
	Kind    domain.QueryKind
}

// AnswerResponse is the generated answer text.
type AnswerResponse struct {
	Text string
}

// AnswerGenerator produces answers from retrieved context.
type AnswerGenerator interface {
	Generate(ctx context.Context, req AnswerRequest) (AnswerResponse, error)
}

// DocumentStatusSource reports document processing status.
type DocumentStatusSource interface {
	DocumentStatus(ctx context.Context, documentID string) (domain.DocumentStatus, error)
}

// RulesEngine transforms transcripts using deterministic rules.
type RulesEngine interface {
	Apply(text string) (string, error)
}

// EventSink receives loop state and events for the host UI.
// Implementations must not call back into the loop.
type EventSink interface {
	LoopStateChanged(state domain.LoopState, reason domain.LoopStateReason)
	PartialTranscript(text string)
	UtteranceSubmitted(text string)
	AnswerReady(answer domain.Answer)
	ScopeNotice(selection domain.ScopeSelection)
	LoopError(code domain.ErrorCode, detail string)
	HostEvent(event domain.HostEvent)
}
