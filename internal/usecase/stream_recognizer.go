package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scopevoice/internal/domain"
	"scopevoice/internal/ports"
)

// RecognizerSettings controls how microphone capture feeds the streaming
// transcription provider.
type RecognizerSettings struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration
	NativeFinal    bool
}

// StreamingRecognizer composes microphone capture and a streaming
// transcription provider into the recognizer primitive.
type StreamingRecognizer struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      RecognizerSettings
	log      *slog.Logger
}

var _ ports.Recognizer = (*StreamingRecognizer)(nil)

func NewStreamingRecognizer(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	cfg RecognizerSettings,
	logger *slog.Logger,
) *StreamingRecognizer {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = defaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamingRecognizer{
		audio:    audio,
		provider: provider,
		cfg:      cfg,
		log:      logger.With("component", "StreamingRecognizer"),
	}
}

// Capabilities reports a continuous recognizer; interim reliability follows
// the provider configuration.
func (r *StreamingRecognizer) Capabilities() ports.RecognizerCapabilities {
	return ports.RecognizerCapabilities{
		Continuous:      true,
		ReliableInterim: r.cfg.Streaming.InterimResults,
		NativeFinal:     r.cfg.NativeFinal,
	}
}

// Start opens the provider stream, then the microphone, and begins pumping.
func (r *StreamingRecognizer) Start(ctx context.Context, rc ports.RecognizerConfig) (ports.Recognition, error) {
	streamCfg := r.cfg.Streaming
	streamCfg.InterimResults = rc.InterimResults
	if rc.Language != "" {
		streamCfg.Language = rc.Language
	}

	runCtx, cancel := context.WithCancel(ctx)
	stream, err := r.provider.StartStreaming(runCtx, streamCfg)
	if err != nil {
		cancel()
		return nil, classifySessionError(err, domain.ErrorCodeNetwork)
	}

	audioSession, err := r.audio.Start(runCtx, r.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return nil, classifySessionError(err, domain.ErrorCodeStartFailed)
	}

	rec := &streamRecognition{
		cancel:     cancel,
		audio:      audioSession,
		stream:     stream,
		grace:      r.cfg.StreamingGrace,
		continuous: rc.Continuous,
		events:     make(chan domain.RecognitionEvent, 64),
		quit:       make(chan struct{}),
		eventsDone: make(chan struct{}),
		log:        r.log,
	}
	pump := newAudioPump(audioSession, stream, r.cfg.ChunkSize, rec.audioFailed)
	rec.audioDone = pump.done

	go pump.run(r.log)
	go rec.forward()
	return rec, nil
}

type streamRecognition struct {
	cancel     context.CancelFunc
	audio      ports.AudioSession
	stream     ports.StreamingSession
	grace      time.Duration
	continuous bool
	log        *slog.Logger

	events     chan domain.RecognitionEvent
	quit       chan struct{}
	audioDone  chan struct{}
	eventsDone chan struct{}

	mu        sync.Mutex
	audioErr  error
	stopped   bool
	stopOnce  sync.Once
	finishOne sync.Once
}

func (s *streamRecognition) Events() <-chan domain.RecognitionEvent {
	return s.events
}

// Stop tears the run down and discards any result still in flight.
func (s *streamRecognition) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.quit)

		err = s.audio.Stop()
		if err != nil {
			s.log.Debug("audio stop reported error", "error", err)
		}
		_ = s.stream.Close()
		<-s.audioDone
		<-s.eventsDone
		s.cancel()
	})
	return err
}

func (s *streamRecognition) emit(event domain.RecognitionEvent) {
	select {
	case s.events <- event:
	case <-s.quit:
	}
}

func (s *streamRecognition) audioFailed(err error) {
	s.mu.Lock()
	if s.audioErr == nil {
		s.audioErr = err
	}
	s.mu.Unlock()
	_ = s.stream.Close()
}

// finishUtterance ends a single-shot run after the provider's final flag.
func (s *streamRecognition) finishUtterance() {
	s.finishOne.Do(func() {
		go func() {
			_ = s.audio.Stop()
			if s.grace > 0 {
				timer := time.NewTimer(s.grace)
				select {
				case <-timer.C:
				case <-s.quit:
					timer.Stop()
					return
				}
			}
			_ = s.stream.CloseSend()
			_ = drainStream(s.stream, 4*time.Second)
		}()
	})
}

func (s *streamRecognition) forward() {
	defer close(s.eventsDone)
	defer close(s.events)

	for event := range s.stream.Events() {
		if event.CapturedAt.IsZero() {
			event.CapturedAt = time.Now()
		}
		s.emit(domain.RecognitionEvent{
			Type:      domain.RecognitionResult,
			Fragments: []domain.TranscriptEvent{event},
		})
		if !s.continuous && event.IsSpeechFinal {
			s.finishUtterance()
		}
	}

	streamErr := s.stream.Wait()
	s.mu.Lock()
	audioErr := s.audioErr
	s.mu.Unlock()

	// The provider side is gone; release the microphone so the pump exits.
	_ = s.audio.Stop()
	<-s.audioDone

	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	switch {
	case stopped:
		return
	case audioErr != nil:
		s.emit(domain.RecognitionEvent{Type: domain.RecognitionError, Code: domain.ErrorCodeAudioCapture, Err: audioErr})
	case streamErr != nil:
		sessErr := classifySessionError(streamErr, domain.ErrorCodeNetwork)
		s.emit(domain.RecognitionEvent{Type: domain.RecognitionError, Code: sessErr.Code, Err: streamErr})
	default:
		s.emit(domain.RecognitionEvent{Type: domain.RecognitionEnd})
	}
}
