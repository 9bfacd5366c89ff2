package main

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paradox-go-home/internal/protocol"
)

func encodeFrame(t *testing.T, b ...byte) []byte {
	t.Helper()
	frame, err := protocol.Encode(protocol.Pad(b...))
	require.NoError(t, err)
	return frame
}

func TestParseHex(t *testing.T) {
	b, err := parseHex("0x00 0a:FF")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x0A, 0xFF}, b)

	_, err = parseHex("zz")
	assert.Error(t, err)
}

func TestDescribeFrame(t *testing.T) {
	startComm := protocol.Pad(0x00)
	startComm[4] = 65
	startComm[5], startComm[6], startComm[7] = 6, 10, 2

	partitions := protocol.Pad(0x52, 0, protocol.StatusRAMRead, 1)
	partitions[17] = 0x01

	bypass := protocol.Pad(0x52, 0, protocol.StatusRAMRead, 2)
	bypass[4+2] = 0x08

	tests := []struct {
		name    string
		payload []byte
		want    []string
	}{
		{"start comm", startComm, []string{"class:    start_communication", "MG5050 (id 65)", "firmware: 6.10.2"}},
		{"partition status", partitions, []string{"flags:    direct=false software=true", "sequence 1", "partition 1: ARM", "partition 2: DISARM"}},
		{"bypass status", bypass, []string{"bypassed: [3]"}},
		{"final marker", protocol.Pad(0x52, 0, protocol.StatusFinalMarker, protocol.StatusFinalSub), []string{"final marker"}},
		{"action bypass", protocol.Pad(0x42, 0, protocol.ActionBypass, 4), []string{"class:    action", "bypass:   zone 5"}},
		{"live event", protocol.Pad(0xE2), []string{"class:    live_event", "partition: 1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := protocol.Encode(tt.payload)
			require.NoError(t, err)
			var out bytes.Buffer
			require.NoError(t, describeFrame(&out, frame, protocol.ModelMG5050, 32))
			assert.Contains(t, out.String(), "checksum: ok")
			for _, w := range tt.want {
				assert.Contains(t, out.String(), w)
			}
		})
	}
}

func TestDescribeFrameChecksum(t *testing.T) {
	frame := encodeFrame(t, 0x52, 0, protocol.StatusRAMRead, 1)
	frame[protocol.PayloadSize]++
	var out bytes.Buffer
	require.NoError(t, describeFrame(&out, frame, protocol.ModelMG5050, 32))
	assert.Contains(t, out.String(), "checksum: BAD")
	assert.Contains(t, out.String(), "class:    status")

	out.Reset()
	require.NoError(t, describeFrame(&out, frame[:protocol.PayloadSize], protocol.ModelMG5050, 32))
	assert.Contains(t, out.String(), "bare payload")

	assert.ErrorIs(t, describeFrame(&out, frame[:10], protocol.ModelMG5050, 32), protocol.ErrBadLength)
}

func TestDecodeCommand(t *testing.T) {
	frame := encodeFrame(t, 0x42, 0, protocol.ActionBypass, 0)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"decode", "--model", "SP6000", hex.EncodeToString(frame)})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "bypass:   zone 1")
}
