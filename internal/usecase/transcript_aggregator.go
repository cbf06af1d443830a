package usecase

import (
	"strings"
	"sync"

	"scopevoice/internal/domain"
)

// transcriptAggregator accumulates the fragments of one capture attempt.
// Final fragments are appended; an interim fragment replaces the previous
// interim tail until a final one settles it.
type transcriptAggregator struct {
	mu        sync.Mutex
	fragments []domain.TranscriptEvent
	finals    []string
	pending   string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

// Add records a fragment and reports whether it carried any text.
func (a *transcriptAggregator) Add(event domain.TranscriptEvent) bool {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	event.Text = text
	a.fragments = append(a.fragments, event)
	if event.IsFinal() {
		a.finals = append(a.finals, text)
		a.pending = ""
		return true
	}
	a.pending = text
	return true
}

// Current returns the running transcript.
func (a *transcriptAggregator) Current() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	if a.pending == "" {
		return joined
	}
	if joined == "" {
		return a.pending
	}
	if strings.HasSuffix(joined, a.pending) {
		return joined
	}
	return joined + " " + a.pending
}

// Fragments returns a copy of every fragment seen so far.
func (a *transcriptAggregator) Fragments() []domain.TranscriptEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.TranscriptEvent, len(a.fragments))
	copy(out, a.fragments)
	return out
}

// Empty reports whether no text has been captured.
func (a *transcriptAggregator) Empty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.fragments) == 0
}
