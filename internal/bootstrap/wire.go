package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"scopevoice/internal/audio"
	"scopevoice/internal/config"
	"scopevoice/internal/domain"
	"scopevoice/internal/ports"
	"scopevoice/internal/providers/deepgram"
	"scopevoice/internal/providers/gemini"
	"scopevoice/internal/providers/openai"
	"scopevoice/internal/providers/scopeapi"
	"scopevoice/internal/rules"
	"scopevoice/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Gate       *usecase.EchoLoopGate
	Dispatcher *usecase.QueryDispatcher
	Speaker    *usecase.SpeechPlaybackCoordinator
	Recognizer *usecase.StreamingRecognizer
	Profile    usecase.CaptureProfile
	Config     config.Config
}

// Build wires all backend dependencies for the current runtime.
func Build(ctx context.Context, eventSink ports.EventSink, logger *slog.Logger) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWithConfig(ctx, cfg, eventSink, logger)
}

// BuildWithConfig wires the runtime graph from an already loaded config.
func BuildWithConfig(ctx context.Context, cfg config.Config, eventSink ports.EventSink, logger *slog.Logger) (Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rulesEngine, err := NewRules(cfg)
	if err != nil {
		return Services{}, err
	}
	dispatcher, err := NewDispatcher(ctx, cfg, logger)
	if err != nil {
		return Services{}, err
	}
	speaker, err := NewSpeaker(cfg, logger)
	if err != nil {
		return Services{}, err
	}

	timing := Timing(cfg)
	recognizer := NewRecognizer(cfg, logger)
	profile := usecase.SelectCaptureProfile(recognizer.Capabilities(), timing)
	logger.Info("capture profile selected", "profile", profile.Name, "silence", profile.SilenceWindow, "fallback", profile.Fallback)

	newSession := func(callbacks usecase.SessionCallbacks) usecase.CaptureSession {
		return usecase.NewTranscriptionSession(recognizer, usecase.SessionConfig{
			Profile:  profile,
			Timing:   timing,
			Language: cfg.Session.Language,
		}, callbacks, logger)
	}

	gate := usecase.NewEchoLoopGate(newSession, dispatcher, speaker, rulesEngine, eventSink, usecase.GateConfig{
		Timing:          timing,
		AutoResume:      cfg.Loop.AutoResume,
		WakeWordEnabled: cfg.Loop.WakeWordEnabled,
		Scope:           domain.Scope(cfg.Retrieval.Scope),
		DocumentID:      cfg.Retrieval.DocumentID,
		MaxRearms:       cfg.Loop.MaxRearms,
	}, logger)

	return Services{
		Gate:       gate,
		Dispatcher: dispatcher,
		Speaker:    speaker,
		Recognizer: recognizer,
		Profile:    profile,
		Config:     cfg,
	}, nil
}

// Timing converts the configured timing into the loop policy.
func Timing(cfg config.Config) usecase.TimingPolicy {
	return usecase.TimingPolicy(cfg.Timing)
}

// NewRules compiles the utterance rules, wake phrases included.
func NewRules(cfg config.Config) (*rules.Engine, error) {
	engine, err := rules.Load(rules.Options{
		Path:        cfg.Rules.Path,
		Inline:      cfg.Rules.Inline,
		WakePhrases: cfg.Loop.WakePhrases,
		PassLimit:   cfg.Rules.IterationLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("loading utterance rules: %w", err)
	}
	return engine, nil
}

// NewRecognizer composes ffmpeg capture with Deepgram streaming.
func NewRecognizer(cfg config.Config, logger *slog.Logger) *usecase.StreamingRecognizer {
	return usecase.NewStreamingRecognizer(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
		deepgram.NewProvider(deepgram.Config{
			APIKey:         cfg.Deepgram.APIKey,
			APIBaseURL:     cfg.Deepgram.APIBaseURL,
			Model:          cfg.Deepgram.Model,
			Language:       cfg.Deepgram.Language,
			SmartFormat:    cfg.Deepgram.SmartFormat,
			EndpointingMS:  cfg.Deepgram.EndpointingMS,
			UtteranceEndMS: cfg.Deepgram.UtteranceEndMS,
		}),
		usecase.RecognizerSettings{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: cfg.Deepgram.InterimResults,
				Language:       cfg.Session.Language,
			},
			ChunkSize:      cfg.Session.ChunkSize,
			StreamingGrace: cfg.Session.StreamingGrace,
			NativeFinal:    true,
		},
		logger,
	)
}

// NewDispatcher wires the document service and the configured answer
// provider.
func NewDispatcher(ctx context.Context, cfg config.Config, logger *slog.Logger) (*usecase.QueryDispatcher, error) {
	client, err := scopeapi.NewClient(cfg.Retrieval.BaseURL, cfg.Retrieval.Token)
	if err != nil {
		return nil, err
	}
	generator, err := newAnswerGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return usecase.NewQueryDispatcher(client, generator, client, usecase.DispatcherConfig{
		ProjectID:       cfg.Retrieval.ProjectID,
		QuestionTopK:    cfg.Retrieval.QuestionTopK,
		SearchTopK:      cfg.Retrieval.SearchTopK,
		ContextPassages: cfg.Retrieval.ContextPassages,
	}, logger), nil
}

func newAnswerGenerator(ctx context.Context, cfg config.Config) (ports.AnswerGenerator, error) {
	switch cfg.Answer.Provider {
	case config.AnswerProviderGemini:
		return gemini.NewAnswerGenerator(ctx, gemini.Config{
			APIKey:    cfg.Answer.Gemini.APIKey,
			BaseURL:   cfg.Answer.Gemini.BaseURL,
			Model:     cfg.Answer.Gemini.Model,
			MaxTokens: cfg.Answer.Gemini.MaxTokens,
		})
	default:
		return openai.NewAnswerGenerator(openai.Config{
			APIKey:     cfg.Answer.OpenAI.APIKey,
			BaseURL:    cfg.Answer.OpenAI.BaseURL,
			Model:      cfg.Answer.OpenAI.Model,
			MaxTokens:  cfg.Answer.OpenAI.MaxTokens,
			MaxRetries: 1,
		})
	}
}

// NewSpeaker wires OpenAI speech synthesis to ffplay playback.
func NewSpeaker(cfg config.Config, logger *slog.Logger) (*usecase.SpeechPlaybackCoordinator, error) {
	synth, err := openai.NewSynthesizer(
		openai.Config{APIKey: cfg.Speech.APIKey, BaseURL: cfg.Speech.BaseURL, MaxRetries: 1},
		openai.SpeechConfig{Model: cfg.Speech.Model, Voice: cfg.Speech.Voice, Format: cfg.Speech.Format},
	)
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}
	return usecase.NewSpeechPlaybackCoordinator(
		synth,
		audio.NewFFPlayPlayer(cfg.Audio.PlayerCommand),
		cfg.Speech.Voice,
		cfg.Timing.PlaybackFailsafe,
		logger,
	), nil
}
