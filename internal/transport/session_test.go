package transport

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paradox-go-home/internal/protocol"
)

// fakePort delivers queued chunks to Read and records writes.
type fakePort struct {
	in      chan []byte
	closed  chan struct{}
	once    sync.Once
	mu      sync.Mutex
	written bytes.Buffer
	resets  int
}

func newFakePort() *fakePort {
	return &fakePort{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.in:
		return copy(b, chunk), nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	p.resets++
	p.mu.Unlock()
	return nil
}

func (p *fakePort) ResetOutputBuffer() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T) (*Session, *fakePort) {
	t.Helper()
	port := newFakePort()
	s := NewSession(port, testLogger())
	t.Cleanup(func() { s.Close() })
	return s, port
}

func testFrame(t *testing.T, first byte) []byte {
	t.Helper()
	f, err := protocol.Encode(protocol.Pad(first, 0x00, 0x80, 0x00))
	require.NoError(t, err)
	return f
}

func TestReadFrameAssemblesChunks(t *testing.T) {
	s, port := newTestSession(t)
	frame := testFrame(t, 0x52)

	port.in <- frame[:10]
	port.in <- frame[10:30]
	port.in <- frame[30:]

	got, ok := s.ReadFrame(time.Second)
	require.True(t, ok)
	assert.Equal(t, frame, got)
	assert.Equal(t, 0, s.Available())
}

func TestReadFrameTimeout(t *testing.T) {
	s, port := newTestSession(t)
	port.in <- []byte{1, 2, 3}

	start := time.Now()
	_, ok := s.ReadFrame(250 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
	assert.Eventually(t, func() bool { return s.Available() == 3 }, time.Second, 10*time.Millisecond)
}

func TestReadFrameSplitsBackToBack(t *testing.T) {
	s, port := newTestSession(t)
	a := testFrame(t, 0x52)
	b := testFrame(t, 0xE2)
	port.in <- append(append([]byte{}, a...), b...)

	got, ok := s.ReadFrame(time.Second)
	require.True(t, ok)
	assert.Equal(t, a, got)
	got, ok = s.ReadFrame(time.Second)
	require.True(t, ok)
	assert.Equal(t, b, got)
}

func TestFlushInput(t *testing.T) {
	s, port := newTestSession(t)
	port.in <- []byte{9, 9, 9, 9}
	require.Eventually(t, func() bool { return s.Available() == 4 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.FlushInput())
	assert.Equal(t, 0, s.Available())
	port.mu.Lock()
	assert.Equal(t, 1, port.resets)
	port.mu.Unlock()
}

// gatedPort holds every Read until the test releases it.
type gatedPort struct {
	*fakePort
	reading chan struct{}
	release chan []byte
}

func (p *gatedPort) Read(b []byte) (int, error) {
	select {
	case p.reading <- struct{}{}:
	case <-p.closed:
		return 0, io.EOF
	}
	select {
	case chunk := <-p.release:
		return copy(b, chunk), nil
	case <-p.closed:
		return 0, io.EOF
	}
}

func TestFlushInputDropsChunkInFlight(t *testing.T) {
	port := &gatedPort{fakePort: newFakePort(), reading: make(chan struct{}), release: make(chan []byte)}
	s := NewSession(port, testLogger())
	t.Cleanup(func() { s.Close() })

	<-port.reading
	require.NoError(t, s.FlushInput())
	port.release <- []byte{0xAA, 0xBB, 0xCC}
	<-port.reading
	assert.Equal(t, 0, s.Available(), "bytes read before the flush survived it")

	port.release <- testFrame(t, 0x52)
	<-port.reading
	frame, ok := s.ReadFrame(time.Second)
	require.True(t, ok)
	assert.Equal(t, byte(0x52), frame[0])
}

func TestWriteAndClose(t *testing.T) {
	s, port := newTestSession(t)
	require.NoError(t, s.Write([]byte{0xAA, 0xBB}))
	port.mu.Lock()
	assert.Equal(t, []byte{0xAA, 0xBB}, port.written.Bytes())
	port.mu.Unlock()

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Write([]byte{1}), ErrClosed)
	_, ok := s.ReadFrame(time.Second)
	assert.False(t, ok)
}
