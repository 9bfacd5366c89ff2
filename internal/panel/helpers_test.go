package panel

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"paradox-go-home/internal/protocol"
	"paradox-go-home/internal/state"
)

// fakeLink answers written frames through respond and records everything.
type fakeLink struct {
	mu      sync.Mutex
	respond func(payload []byte) []byte
	pending [][]byte
	written [][]byte
	flushes int
}

func (l *fakeLink) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending) * protocol.FrameSize
}

func (l *fakeLink) ReadFrame(time.Duration) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return nil, false
	}
	f := l.pending[0]
	l.pending = l.pending[1:]
	return f, true
}

func (l *fakeLink) Write(b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.written = append(l.written, append([]byte(nil), b...))
	if l.respond != nil {
		if r := l.respond(b[:protocol.PayloadSize]); r != nil {
			l.pending = append(l.pending, r)
		}
	}
	return nil
}

func (l *fakeLink) FlushInput() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushes++
	l.pending = nil
	return nil
}

func (l *fakeLink) push(frame []byte) {
	l.mu.Lock()
	l.pending = append(l.pending, frame)
	l.mu.Unlock()
}

// sent returns the payloads written so far.
func (l *fakeLink) sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.written))
	for i, f := range l.written {
		out[i] = f[:protocol.PayloadSize]
	}
	return out
}

func (l *fakeLink) reset() {
	l.mu.Lock()
	l.written = nil
	l.mu.Unlock()
}

type senderFunc func([]byte) error

func (f senderFunc) SendMessage(p []byte) error { return f(p) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2024, 3, 15, 14, 30, 0, 0, time.Local)

func newTestStore() *state.Store {
	s := state.NewStore(state.Config{Zones: 8, Users: 4, Outputs: 2}, nil, testLogger())
	s.SetClock(func() time.Time { return testNow })
	return s
}

func encode(t *testing.T, b ...byte) []byte {
	t.Helper()
	f, err := protocol.Encode(protocol.Pad(b...))
	require.NoError(t, err)
	return f
}

func encodePayload(t *testing.T, p []byte) []byte {
	t.Helper()
	f, err := protocol.Encode(p)
	require.NoError(t, err)
	return f
}

// livePayload builds a class 14 live event payload.
func livePayload(event, sub, partition byte, labelType protocol.LabelType, label string) []byte {
	p := make([]byte, protocol.PayloadSize)
	p[0] = 0xE2
	copy(p[1:7], []byte{20, 24, 3, 15, 14, 30})
	p[7] = event
	p[8] = sub
	p[9] = partition - 1
	p[14] = byte(labelType)
	copy(p[15:31], label)
	return p
}
