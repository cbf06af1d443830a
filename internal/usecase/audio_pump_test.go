package usecase

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestAudioPumpReportsSendError(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession([]byte("abc"))
	stream := newFakeStreamingSession()
	stream.sendErr = errors.New("send failed")
	errs := &errorRecorder{}

	pump := newAudioPump(audio, stream, 256, errs.record)
	go pump.run(discardLogger)
	<-pump.done

	got := errs.snapshot()
	if len(got) != 1 || !strings.Contains(got[0].Error(), "failed to stream audio") {
		t.Fatalf("expected stream error, got %v", got)
	}
}

func TestAudioPumpReportsReadError(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession()
	audio.readErr = errors.New("read failed")
	stream := newFakeStreamingSession()
	errs := &errorRecorder{}

	pump := newAudioPump(audio, stream, 256, errs.record)
	go pump.run(discardLogger)
	<-pump.done

	got := errs.snapshot()
	if len(got) != 1 || !strings.Contains(got[0].Error(), "audio capture error") {
		t.Fatalf("expected capture error, got %v", got)
	}
	if stream.closeSendCount() != 1 {
		t.Fatalf("expected CloseSend after read failure")
	}
}

func TestAudioPumpEndsCleanlyOnEOF(t *testing.T) {
	t.Parallel()

	audio := newFakeAudioSession([]byte("one"), []byte("two"))
	stream := newFakeStreamingSession()
	errs := &errorRecorder{}

	pump := newAudioPump(audio, stream, 256, errs.record)
	go pump.run(discardLogger)
	deadline := time.After(2 * time.Second)
	for len(stream.sentChunks()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected both chunks to be streamed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	_ = audio.Stop()
	<-pump.done

	if got := errs.snapshot(); len(got) != 0 {
		t.Fatalf("expected no errors on EOF, got %v", got)
	}
	if stream.closeSendCount() != 1 {
		t.Fatalf("expected CloseSend on EOF")
	}
	if pump.chunks != 2 || pump.bytes != 6 {
		t.Fatalf("expected 2 chunks and 6 bytes, got %d and %d", pump.chunks, pump.bytes)
	}
}

func TestNewAudioPumpDefaultsSmallChunks(t *testing.T) {
	t.Parallel()

	pump := newAudioPump(newFakeAudioSession(), newFakeStreamingSession(), 10, func(error) {})
	if len(pump.buf) != defaultChunkSize {
		t.Fatalf("expected default chunk size, got %d", len(pump.buf))
	}
}

func TestDrainStreamTimeoutClosesSession(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	stream.waitErr = errors.New("closed")

	err := drainStream(stream, 10*time.Millisecond)
	if err == nil || err.Error() != "closed" {
		t.Fatalf("expected closed error, got %v", err)
	}
	if !stream.isClosed() {
		t.Fatalf("expected close to be called on timeout")
	}
}

func TestDrainStreamReturnsPromptly(t *testing.T) {
	t.Parallel()

	stream := newFakeStreamingSession()
	_ = stream.Close()

	start := time.Now()
	if err := drainStream(stream, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("expected drain to return once the stream ended")
	}
}

type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *errorRecorder) snapshot() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}
