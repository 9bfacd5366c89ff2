package panel

import (
	"errors"
	"fmt"
	"strconv"

	"paradox-go-home/internal/protocol"
	"paradox-go-home/internal/state"
)

// ErrInvalidCommand is returned for commands that fail validation.
var ErrInvalidCommand = errors.New("panel: invalid command")

// Command is an inbound request from MQTT, HTTP or a script:
// a settable property of one entity and its raw value.
type Command struct {
	Kind     state.Kind `json:"kind"`
	ID       int        `json:"id"`
	Property string     `json:"property"`
	Value    string     `json:"value"`
}

func (c Command) String() string {
	return fmt.Sprintf("%s/%s=%s", state.NodeID(c.Kind, c.ID), c.Property, c.Value)
}

// Op is a validated panel operation.
type Op int

const (
	OpArm Op = iota
	OpOutput
	OpPulse
	OpBypass
)

func (o Op) String() string {
	switch o {
	case OpArm:
		return "arm"
	case OpOutput:
		return "output"
	case OpPulse:
		return "pulse"
	case OpBypass:
		return "bypass"
	}
	return "unknown"
}

// Action is a Command after validation.
type Action struct {
	Op     Op
	Target int
	Mode   protocol.ArmMode
	On     bool
}

func invalid(c Command, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidCommand, c, fmt.Sprintf(format, args...))
}

// parseBool accepts the Homie boolean vocabulary only.
func parseBool(s string) (bool, bool) {
	switch s {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// ParseCommand validates c against the configured entity counts.
func ParseCommand(c Command, cfg state.Config) (Action, error) {
	switch c.Kind {
	case state.KindPartition:
		if c.ID < 1 || c.ID > protocol.Partitions {
			return Action{}, invalid(c, "partition out of range")
		}
		mode, err := parseArm(c)
		if err != nil {
			return Action{}, err
		}
		return Action{Op: OpArm, Target: c.ID, Mode: mode}, nil

	case state.KindOutput:
		if c.ID < 1 || c.ID > cfg.Outputs {
			return Action{}, invalid(c, "output out of range")
		}
		on, ok := parseBool(c.Value)
		if !ok {
			return Action{}, invalid(c, "should be true/false")
		}
		switch c.Property {
		case state.OutputOn.String():
			return Action{Op: OpOutput, Target: c.ID, On: on}, nil
		case state.OutputPulse.String():
			return Action{Op: OpPulse, Target: c.ID, On: on}, nil
		}
		return Action{}, invalid(c, "output property not settable")

	case state.KindZone:
		if c.ID < 1 || c.ID > cfg.Zones {
			return Action{}, invalid(c, "zone out of range")
		}
		if c.Property != state.ZoneBypass.String() {
			return Action{}, invalid(c, "zone property not settable")
		}
		if _, ok := parseBool(c.Value); !ok {
			return Action{}, invalid(c, "should be true/false")
		}
		return Action{Op: OpBypass, Target: c.ID}, nil
	}
	return Action{}, invalid(c, "kind not settable")
}

func parseArm(c Command) (protocol.ArmMode, error) {
	switch c.Property {
	case state.PartitionArmState.String():
		n, err := strconv.Atoi(c.Value)
		if err != nil || n < int(protocol.Disarmed) || n > int(protocol.ArmAway) {
			return 0, invalid(c, "armstate should be 0-3")
		}
		return protocol.ArmMode(n), nil
	case state.PartitionArmStateText.String():
		if m, ok := protocol.ParseArmText(c.Value); ok {
			return m, nil
		}
		return 0, invalid(c, "should be ARM/STAY/SLEEP/DISARM")
	case state.PartitionArmStateHASS.String():
		if m, ok := protocol.ParseArmHASS(c.Value); ok {
			return m, nil
		}
		return 0, invalid(c, "should be disarmed/armed_home/armed_night/armed_away")
	case state.PartitionArmed.String():
		armed, ok := parseBool(c.Value)
		if !ok {
			return 0, invalid(c, "should be true/false")
		}
		if armed {
			return protocol.ArmAway, nil
		}
		return protocol.Disarmed, nil
	}
	return 0, invalid(c, "partition property not settable")
}
