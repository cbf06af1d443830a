package usecase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"scopevoice/internal/ports"
)

const defaultChunkSize = 4096

// audioPump copies microphone audio into the provider stream until either
// side ends. done is closed once the pump has returned.
type audioPump struct {
	audio   ports.AudioSession
	stream  ports.StreamingSession
	buf     []byte
	onError func(error)
	done    chan struct{}

	chunks int
	bytes  int64
}

func newAudioPump(audio ports.AudioSession, stream ports.StreamingSession, chunkSize int, onError func(error)) *audioPump {
	if chunkSize < 256 {
		chunkSize = defaultChunkSize
	}
	return &audioPump{
		audio:   audio,
		stream:  stream,
		buf:     make([]byte, chunkSize),
		onError: onError,
		done:    make(chan struct{}),
	}
}

func (p *audioPump) run(log *slog.Logger) {
	defer close(p.done)
	err := p.copy()
	log.Debug("audio pump finished", "chunks", p.chunks, "bytes", p.bytes, "error", err)
	if err != nil {
		p.onError(err)
	}
}

// copy returns nil when capture ends with EOF. A read failure still
// half-closes the stream so the provider can flush its last result.
func (p *audioPump) copy() error {
	for {
		n, err := p.audio.Read(p.buf)
		if n > 0 {
			if sendErr := p.stream.SendAudio(p.buf[:n]); sendErr != nil {
				return fmt.Errorf("failed to stream audio: %w", sendErr)
			}
			p.chunks++
			p.bytes += int64(n)
		}
		if err == nil {
			continue
		}
		_ = p.stream.CloseSend()
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("audio capture error: %w", err)
	}
}

// drainStream waits for the provider to finish and force-closes it after
// timeout.
func drainStream(stream ports.StreamingSession, timeout time.Duration) error {
	waited := make(chan error, 1)
	go func() {
		waited <- stream.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-waited:
		return err
	case <-timer.C:
		_ = stream.Close()
		return <-waited
	}
}
