package deepgram

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"scopevoice/internal/domain"
)

var (
	keepAliveMessage   = []byte(`{"type":"KeepAlive"}`)
	closeStreamMessage = []byte(`{"type":"CloseStream"}`)
)

type serverMessage struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Message     string  `json:"message"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Channel     channel `json:"channel"`
	Results     struct {
		Channels []channel `json:"channels"`
	} `json:"results"`
}

type channel struct {
	Alternatives []struct {
		Transcript string `json:"transcript"`
	} `json:"alternatives"`
}

func (c channel) transcript() string {
	if len(c.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(c.Alternatives[0].Transcript)
}

// decode turns one server message into a transcript event. ok is false for
// messages that carry nothing for the recognizer.
func decode(payload []byte, now time.Time) (event domain.TranscriptEvent, ok bool, err error) {
	var msg serverMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.TranscriptEvent{}, false, nil
	}

	switch strings.ToLower(msg.Type) {
	case "error":
		reason := strings.TrimSpace(msg.Description)
		if reason == "" {
			reason = strings.TrimSpace(msg.Message)
		}
		if reason == "" {
			reason = "deepgram returned an unknown error"
		}
		return domain.TranscriptEvent{}, false, errors.New(reason)
	case "utteranceend":
		return domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, IsSpeechFinal: true, CapturedAt: now}, true, nil
	case "metadata", "speechstarted":
		return domain.TranscriptEvent{}, false, nil
	}

	text := msg.Channel.transcript()
	if text == "" && len(msg.Results.Channels) > 0 {
		text = msg.Results.Channels[0].transcript()
	}
	if text == "" {
		return domain.TranscriptEvent{}, false, nil
	}

	kind := domain.TranscriptKindPartial
	if msg.IsFinal || msg.SpeechFinal {
		kind = domain.TranscriptKindFinal
	}
	return domain.TranscriptEvent{Kind: kind, Text: text, IsSpeechFinal: msg.SpeechFinal, CapturedAt: now}, true, nil
}
