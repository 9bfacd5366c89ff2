// Package panel drives the protocol session: request/reply correlation,
// frame dispatch into the entity store, and the periodic login, keep-alive,
// label and pulse schedule.
package panel

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"paradox-go-home/internal/metrics"
	"paradox-go-home/internal/protocol"
)

// ErrNoReply is returned when every attempt of a command timed out.
var ErrNoReply = errors.New("panel: no reply")

// Link is the transport used by the session. *transport.Session satisfies it.
type Link interface {
	Available() int
	ReadFrame(timeout time.Duration) ([]byte, bool)
	Write(b []byte) error
	FlushInput() error
}

// Sender sends a command without waiting for a reply.
type Sender interface {
	SendMessage(payload []byte) error
}

// Correlator pairs one command with the next frame on the link.
// It is not safe for concurrent use; the session serializes all calls.
type Correlator struct {
	link     Link
	timeout  time.Duration
	maxTries int
	logger   *slog.Logger
}

func NewCorrelator(link Link, timeout time.Duration, maxTries int, logger *slog.Logger) *Correlator {
	if maxTries < 1 {
		maxTries = 1
	}
	return &Correlator{
		link:     link,
		timeout:  timeout,
		maxTries: maxTries,
		logger:   logger.With("component", "correlator"),
	}
}

// SendMessage encodes and writes a 36-byte payload.
func (c *Correlator) SendMessage(payload []byte) error {
	frame, err := protocol.Encode(payload)
	if err != nil {
		return err
	}
	if err := c.link.Write(frame); err != nil {
		return err
	}
	metrics.FramesSent.Inc()
	return nil
}

// SendAndAwait writes payload and returns the first frame that arrives,
// retransmitting after each timeout up to maxTries times.
func (c *Correlator) SendAndAwait(payload []byte) ([]byte, error) {
	for attempt := 1; attempt <= c.maxTries; attempt++ {
		if attempt > 1 {
			metrics.ReplyRetries.Inc()
			c.logger.Debug("no reply, retransmitting", "attempt", attempt, "command", fmt.Sprintf("%X", payload[:4]))
		}
		if err := c.SendMessage(payload); err != nil {
			return nil, err
		}
		if reply, ok := c.link.ReadFrame(c.timeout); ok {
			return reply, nil
		}
	}
	metrics.ReplyTimeouts.Inc()
	c.logger.Warn("no reply from panel", "command", fmt.Sprintf("%X", payload[:4]), "tries", c.maxTries)
	return nil, ErrNoReply
}
