package commands

import (
	"fmt"
	"io"
	"sync"

	"scopevoice/internal/domain"
)

// consoleSink prints loop events as plain lines.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out}
}

func (s *consoleSink) LoopStateChanged(state domain.LoopState, reason domain.LoopStateReason) {
	s.printf("[%s] %s\n", state, reason)
}

func (s *consoleSink) PartialTranscript(text string) {
	s.printf("  ... %s\n", text)
}

func (s *consoleSink) UtteranceSubmitted(text string) {
	s.printf("> %s\n", text)
}

func (s *consoleSink) AnswerReady(answer domain.Answer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	printAnswer(s.out, answer)
}

func (s *consoleSink) ScopeNotice(selection domain.ScopeSelection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	printScopeNotice(s.out, selection)
}

func (s *consoleSink) LoopError(code domain.ErrorCode, detail string) {
	if detail == "" {
		s.printf("error: %s\n", code)
		return
	}
	s.printf("error: %s: %s\n", code, detail)
}

func (s *consoleSink) HostEvent(domain.HostEvent) {}

func (s *consoleSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}
