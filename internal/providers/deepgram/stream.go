package deepgram

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"scopevoice/internal/domain"
)

var errStreamClosed = errors.New("audio stream is already closed")

// stream is one live transcription socket. A reader goroutine decodes server
// messages; a writer goroutine forwards audio and keeps the socket alive
// between chunks.
type stream struct {
	conn      *websocket.Conn
	keepAlive time.Duration

	events     chan domain.TranscriptEvent
	audio      chan []byte
	readerDone chan struct{}
	done       chan struct{}

	sendMu     sync.RWMutex
	sendClosed bool

	errMu   sync.Mutex
	err     error
	closing atomic.Bool

	closeSendOnce sync.Once
	closeOnce     sync.Once
}

func newStream(conn *websocket.Conn, keepAlive time.Duration) *stream {
	s := &stream{
		conn:       conn,
		keepAlive:  keepAlive,
		events:     make(chan domain.TranscriptEvent, 64),
		audio:      make(chan []byte, 32),
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(s.readerDone)
		s.read()
	}()
	go func() {
		defer wg.Done()
		s.write()
	}()
	go func() {
		wg.Wait()
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()
	return s
}

func (s *stream) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errStreamClosed
	}

	select {
	case s.audio <- append([]byte(nil), chunk...):
		return nil
	case <-s.readerDone:
		if err := s.failure(); err != nil {
			return err
		}
		return errors.New("transcription stream ended")
	}
}

func (s *stream) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *stream) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *stream) Wait() error {
	<-s.done
	return s.failure()
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		_ = s.conn.Close()
		_ = s.CloseSend()
	})
	<-s.done
	return s.failure()
}

func (s *stream) failure() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// fail records the first error that is not an orderly or local close.
func (s *stream) fail(err error) {
	if err == nil || s.closing.Load() || orderlyClose(err) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// orderlyClose reports whether err, possibly wrapped, is a normal websocket
// close from the server.
func orderlyClose(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	switch closeErr.Code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
		return true
	}
	return false
}

func (s *stream) write() {
	idle := time.NewTimer(s.keepAlive)
	defer idle.Stop()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.conn.WriteMessage(websocket.TextMessage, closeStreamMessage); err != nil {
					s.fail(fmt.Errorf("failed to close stream: %w", err))
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.fail(fmt.Errorf("failed to send audio: %w", err))
				_ = s.conn.Close()
				return
			}
			idle.Reset(s.keepAlive)
		case <-idle.C:
			if err := s.conn.WriteMessage(websocket.TextMessage, keepAliveMessage); err != nil {
				s.fail(fmt.Errorf("failed to send keepalive: %w", err))
				_ = s.conn.Close()
				return
			}
			idle.Reset(s.keepAlive)
		case <-s.readerDone:
			return
		}
	}
}

func (s *stream) read() {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		event, ok, err := decode(payload, time.Now())
		if err != nil {
			s.fail(err)
			return
		}
		if ok {
			s.emit(event)
		}
	}
}

// emit drops the event when the consumer is not keeping up.
func (s *stream) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	default:
	}
}
