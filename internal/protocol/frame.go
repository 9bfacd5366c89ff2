// Package protocol implements the wire format of the Paradox serial
// interface: fixed 37-byte frames, command payloads and field decoders.
package protocol

import (
	"errors"
	"fmt"
)

const (
	// PayloadSize is the number of payload bytes in every frame.
	PayloadSize = 36
	// FrameSize is the on-wire frame length: payload plus one checksum byte.
	FrameSize = PayloadSize + 1
)

var (
	// ErrBadLength is returned by Decode for frames that are not FrameSize bytes.
	ErrBadLength = errors.New("bad frame length")
	// ErrBadChecksum is returned by Decode when the trailing checksum does not match.
	ErrBadChecksum = errors.New("bad frame checksum")
	// ErrPayloadSize is returned by Encode when the payload is not PayloadSize bytes.
	ErrPayloadSize = errors.New("payload must be 36 bytes")
)

// Checksum returns the additive checksum of a payload (sum of all bytes mod 256).
func Checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return sum
}

// Encode appends the checksum to a 36-byte payload.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) != PayloadSize {
		return nil, fmt.Errorf("encode %d bytes: %w", len(payload), ErrPayloadSize)
	}
	frame := make([]byte, FrameSize)
	copy(frame, payload)
	frame[PayloadSize] = Checksum(payload)
	return frame, nil
}

// Decode validates a frame and returns its payload.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) != FrameSize {
		return nil, fmt.Errorf("decode %d bytes: %w", len(frame), ErrBadLength)
	}
	if Checksum(frame[:PayloadSize]) != frame[PayloadSize] {
		return nil, fmt.Errorf("want %02X got %02X: %w",
			Checksum(frame[:PayloadSize]), frame[PayloadSize], ErrBadChecksum)
	}
	payload := make([]byte, PayloadSize)
	copy(payload, frame[:PayloadSize])
	return payload, nil
}

// Pad right-pads b with zero bytes to PayloadSize. Longer input is truncated.
func Pad(b ...byte) []byte {
	payload := make([]byte, PayloadSize)
	copy(payload, b)
	return payload
}
