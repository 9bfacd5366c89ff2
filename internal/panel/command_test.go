package panel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paradox-go-home/internal/protocol"
	"paradox-go-home/internal/state"
)

func TestParseCommand(t *testing.T) {
	cfg := state.Config{Zones: 8, Users: 4, Outputs: 2}
	tests := []struct {
		name string
		cmd  Command
		want Action
	}{
		{"armstate away", Command{state.KindPartition, 1, "armstate", "3"}, Action{Op: OpArm, Target: 1, Mode: protocol.ArmAway}},
		{"armstate stay", Command{state.KindPartition, 1, "armstate", "1"}, Action{Op: OpArm, Target: 1, Mode: protocol.ArmStay}},
		{"armstate disarm", Command{state.KindPartition, 2, "armstate", "0"}, Action{Op: OpArm, Target: 2, Mode: protocol.Disarmed}},
		{"armstatetext sleep", Command{state.KindPartition, 1, "armstatetext", "SLEEP"}, Action{Op: OpArm, Target: 1, Mode: protocol.ArmSleep}},
		{"armstatehass home", Command{state.KindPartition, 1, "armstatehass", "armed_home"}, Action{Op: OpArm, Target: 1, Mode: protocol.ArmStay}},
		{"armed true", Command{state.KindPartition, 1, "armed", "true"}, Action{Op: OpArm, Target: 1, Mode: protocol.ArmAway}},
		{"armed false", Command{state.KindPartition, 1, "armed", "false"}, Action{Op: OpArm, Target: 1, Mode: protocol.Disarmed}},
		{"output on", Command{state.KindOutput, 2, "on", "true"}, Action{Op: OpOutput, Target: 2, On: true}},
		{"output pulse", Command{state.KindOutput, 1, "pulse", "false"}, Action{Op: OpPulse, Target: 1}},
		{"zone bypass", Command{state.KindZone, 8, "bypass", "false"}, Action{Op: OpBypass, Target: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.cmd, cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandRejects(t *testing.T) {
	cfg := state.Config{Zones: 8, Users: 4, Outputs: 2}
	bad := []Command{
		{state.KindPartition, 3, "armstate", "3"},
		{state.KindPartition, 1, "armstate", "4"},
		{state.KindPartition, 1, "armstate", "x"},
		{state.KindPartition, 1, "armstatetext", "arm"},
		{state.KindPartition, 1, "armstatehass", "triggered"},
		{state.KindPartition, 1, "armed", "ON"},
		{state.KindPartition, 1, "alarm", "true"},
		{state.KindOutput, 3, "on", "true"},
		{state.KindOutput, 1, "on", "1"},
		{state.KindOutput, 1, "tamper", "true"},
		{state.KindZone, 0, "bypass", "true"},
		{state.KindZone, 1, "open", "true"},
		{state.KindZone, 1, "bypass", "yes"},
		{state.KindUser, 1, "label", "x"},
		{state.KindPanel, 0, "bell", "true"},
	}
	for _, c := range bad {
		_, err := ParseCommand(c, cfg)
		assert.ErrorIs(t, err, ErrInvalidCommand, c.String())
	}
}
