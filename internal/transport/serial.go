package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial"
)

// Config selects the serial device.
type Config struct {
	Port     string
	BaudRate int
	// OpenTimeout bounds the total time spent retrying the open. Zero retries forever.
	OpenTimeout time.Duration
}

// Open opens the serial device (8N1), retrying with exponential backoff
// until it succeeds, ctx is done or OpenTimeout elapses.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	var port serial.Port
	op := func() error {
		p, err := serial.Open(cfg.Port, mode)
		if err != nil {
			return err
		}
		port = p
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = cfg.OpenTimeout

	err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		logger.Warn("serial open failed, retrying", "port", cfg.Port, "err", err, "retry_in", d)
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.Port, err)
	}

	// Short read timeout lets the read loop observe Close promptly.
	if err := port.SetReadTimeout(pollSlice); err != nil {
		port.Close()
		return nil, fmt.Errorf("transport: set read timeout: %w", err)
	}
	logger.Info("serial port opened", "port", cfg.Port, "baud", cfg.BaudRate)
	return NewSession(port, logger), nil
}
