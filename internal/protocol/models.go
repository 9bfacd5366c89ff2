package protocol

import (
	"fmt"
	"strings"
)

// Model is a supported panel model.
type Model int

const (
	ModelSP5500 Model = iota + 1
	ModelSP6000
	ModelSP7000
	ModelMG5000
	ModelMG5050
)

// ModelInfo holds the per-model lookup tables.
type ModelInfo struct {
	Name      string
	PanelID   byte
	Registers RegisterMap
	Events    EventMap
}

// RegisterMap holds label register addresses and control payload codes.
type RegisterMap struct {
	ZoneLabels      uint16
	OutputLabels    uint16
	PartitionLabels uint16
	UserLabels      uint16

	ArmActions map[ArmMode]byte
	OutputOn   byte
	OutputOff  byte
}

// labelsPerRead is the number of 16-byte labels in one register read.
const labelsPerRead = 2

const labelSize = 16

// paradoxRegisters is the register layout the SP and MG ranges share.
// TODO: confirm the label addresses and action codes per model on real
// panels; none of them has been checked against hardware yet.
func paradoxRegisters() RegisterMap {
	return RegisterMap{
		ZoneLabels:      0x0010,
		OutputLabels:    0x0210,
		PartitionLabels: 0x0310,
		UserLabels:      0x0330,
		ArmActions: map[ArmMode]byte{
			ArmStay:  0x01,
			ArmSleep: 0x03,
			ArmAway:  0x04,
			Disarmed: 0x05,
		},
		OutputOn:  0x30,
		OutputOff: 0x31,
	}
}

// Each model owns its table so one can diverge without touching the rest.
var (
	sp5500Registers = paradoxRegisters()
	sp6000Registers = paradoxRegisters()
	sp7000Registers = paradoxRegisters()
	mg5000Registers = paradoxRegisters()
	mg5050Registers = paradoxRegisters()
)

var models = map[Model]ModelInfo{
	ModelSP5500: {Name: "SP5500", PanelID: 21, Registers: sp5500Registers, Events: spEvents},
	ModelSP6000: {Name: "SP6000", PanelID: 22, Registers: sp6000Registers, Events: spEvents},
	ModelSP7000: {Name: "SP7000", PanelID: 23, Registers: sp7000Registers, Events: spEvents},
	ModelMG5000: {Name: "MG5000", PanelID: 64, Registers: mg5000Registers, Events: mgEvents},
	ModelMG5050: {Name: "MG5050", PanelID: 65, Registers: mg5050Registers, Events: mgEvents},
}

// Info returns the tables for m.
func (m Model) Info() ModelInfo {
	return models[m]
}

func (m Model) String() string {
	if info, ok := models[m]; ok {
		return info.Name
	}
	return fmt.Sprintf("model(%d)", int(m))
}

// ParseModel resolves a model name such as "MG5050".
func ParseModel(name string) (Model, error) {
	for m, info := range models {
		if strings.EqualFold(info.Name, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown panel model %q", name)
}

// ModelFor maps the panel id from a start-communication reply to a model.
func ModelFor(id byte) (Model, bool) {
	for m, info := range models {
		if info.PanelID == id {
			return m, true
		}
	}
	return 0, false
}

// PanelName is the model name for a panel id.
func PanelName(id byte) (string, bool) {
	m, ok := ModelFor(id)
	if !ok {
		return "", false
	}
	return m.String(), true
}

// LabelRead returns the register read for the labels of entity numbers
// first and first+1 of the given kind. first is 1-based.
func (r RegisterMap) LabelRead(kind LabelType, first int) ([]byte, error) {
	var base uint16
	switch kind {
	case LabelZone:
		base = r.ZoneLabels
	case LabelUser:
		base = r.UserLabels
	case LabelPartition:
		base = r.PartitionLabels
	case LabelOutput:
		base = r.OutputLabels
	default:
		return nil, fmt.Errorf("no label register for %s", kind)
	}
	if first < 1 {
		return nil, fmt.Errorf("label read: invalid %s number %d", kind, first)
	}
	return ReadRegister(base + uint16((first-1)/labelsPerRead)*labelsPerRead*labelSize), nil
}

// ControlAlarm builds the arm/disarm action for a partition.
func (r RegisterMap) ControlAlarm(partition int, mode ArmMode) ([]byte, error) {
	if partition < 1 || partition > Partitions {
		return nil, fmt.Errorf("control alarm: invalid partition %d", partition)
	}
	action, ok := r.ArmActions[mode]
	if !ok {
		return nil, fmt.Errorf("control alarm: unsupported mode %d", int(mode))
	}
	return Pad(cmdAction, 0x00, action, byte(partition-1)), nil
}

// ControlOutput builds the PGM on/off action for a 1-based output.
func (r RegisterMap) ControlOutput(output int, on bool) ([]byte, error) {
	if output < 1 || output > 255 {
		return nil, fmt.Errorf("control output: invalid output %d", output)
	}
	action := r.OutputOff
	if on {
		action = r.OutputOn
	}
	return Pad(cmdAction, 0x00, action, byte(output-1)), nil
}
