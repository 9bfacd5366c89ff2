// Package transport owns the half-duplex serial link to the panel.
//
// A background read loop appends every received byte to an input buffer;
// ReadFrame hands out exactly FrameSize bytes at a time. No interpretation
// of the bytes happens here.
package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"paradox-go-home/internal/protocol"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("transport: session closed")

// pollSlice is the granularity of ReadFrame's wait.
const pollSlice = 100 * time.Millisecond

// Port is the byte-stream collaborator. serial.Port satisfies it.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Session wraps a Port with frame-sized reads.
type Session struct {
	port   Port
	logger *slog.Logger

	mu     sync.Mutex
	buf    []byte
	notify chan struct{}
	// gen counts flushes. A read that started before a flush is dropped.
	gen uint64

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession starts the read loop on an already opened port.
func NewSession(port Port, logger *slog.Logger) *Session {
	s := &Session{
		port:   port,
		logger: logger.With("component", "transport"),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s
}

func (s *Session) readLoop() {
	defer s.wg.Done()

	chunk := make([]byte, 256)
	backoff := 10 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.mu.Lock()
		gen := s.gen
		s.mu.Unlock()

		n, err := s.port.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			stale := gen != s.gen
			if !stale {
				s.buf = append(s.buf, chunk[:n]...)
			}
			s.mu.Unlock()
			if stale {
				s.logger.Debug("dropped bytes read across a flush", "bytes", n)
			} else {
				select {
				case s.notify <- struct{}{}:
				default:
				}
			}
		}
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if err != io.EOF && !strings.Contains(err.Error(), "closed") {
				s.logger.Error("serial read error", "err", err)
			}
			select {
			case <-time.After(backoff):
			case <-s.done:
				return
			}
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}
		backoff = 10 * time.Millisecond
	}
}

// Available returns the number of buffered input bytes.
func (s *Session) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// ReadFrame waits up to timeout for FrameSize buffered bytes and returns them.
// ok is false on timeout or after Close.
func (s *Session) ReadFrame(timeout time.Duration) (frame []byte, ok bool) {
	deadline := time.Now().Add(timeout)
	for {
		if frame, ok = s.take(); ok {
			s.logger.Debug("frame received", "frame", fmt.Sprintf("%X", frame))
			return frame, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		wait := pollSlice
		if remaining < wait {
			wait = remaining
		}
		t := time.NewTimer(wait)
		select {
		case <-s.notify:
		case <-t.C:
		case <-s.done:
			t.Stop()
			return nil, false
		}
		t.Stop()
	}
}

func (s *Session) take() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < protocol.FrameSize {
		return nil, false
	}
	frame := make([]byte, protocol.FrameSize)
	copy(frame, s.buf)
	s.buf = append(s.buf[:0], s.buf[protocol.FrameSize:]...)
	return frame, true
}

// Write sends raw bytes to the panel.
func (s *Session) Write(b []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.logger.Debug("frame sent", "frame", fmt.Sprintf("%X", b))
	if _, err := s.port.Write(b); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// FlushInput drops every buffered and pending input byte, including a
// chunk the read loop is holding at the time of the call.
func (s *Session) FlushInput() error {
	s.mu.Lock()
	s.gen++
	dropped := len(s.buf)
	s.buf = s.buf[:0]
	err := s.port.ResetInputBuffer()
	s.mu.Unlock()
	if dropped > 0 {
		s.logger.Debug("input flushed", "bytes", dropped)
	}
	if err != nil {
		return fmt.Errorf("transport: reset input: %w", err)
	}
	return nil
}

// FlushOutput discards bytes not yet transmitted.
func (s *Session) FlushOutput() error {
	if err := s.port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("transport: reset output: %w", err)
	}
	return nil
}

// Close stops the read loop and closes the port.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.port.Close()
	})
	s.wg.Wait()
	return err
}
