package openai

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"

	"scopevoice/internal/ports"
)

// SpeechConfig controls text-to-speech requests.
type SpeechConfig struct {
	Model  string
	Voice  string
	Format string
}

// Synthesizer implements ports.Synthesizer with the audio speech endpoint.
type Synthesizer struct {
	client *openai.Client
	cfg    SpeechConfig
}

var _ ports.Synthesizer = (*Synthesizer)(nil)

func NewSynthesizer(cfg Config, speech SpeechConfig) (*Synthesizer, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if speech.Model == "" {
		speech.Model = "tts-1"
	}
	if speech.Voice == "" {
		speech.Voice = "alloy"
	}
	if speech.Format == "" {
		speech.Format = "mp3"
	}
	return &Synthesizer{client: client, cfg: speech}, nil
}

// Synthesize returns the encoded audio body. The caller closes it.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voiceID string) (io.ReadCloser, error) {
	voice := s.cfg.Voice
	if voiceID != "" {
		voice = voiceID
	}
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(s.cfg.Format),
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	return resp.Body, nil
}
