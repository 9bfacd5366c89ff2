package protocol

import (
	"fmt"
	"time"
)

// Class is the message class carried in the high nibble of byte 0.
type Class byte

const (
	ClassStartComm Class = 0
	ClassInitComm  Class = 1
	ClassSetTime   Class = 3
	ClassAction    Class = 4
	ClassStatus    Class = 5
	ClassError     Class = 7
	ClassLiveEvent Class = 14
	// ClassNoFlags frames carry no low-nibble flag update.
	ClassNoFlags Class = 15
)

func (c Class) String() string {
	switch c {
	case ClassStartComm:
		return "start_communication"
	case ClassInitComm:
		return "initialize_communication"
	case ClassSetTime:
		return "set_time"
	case ClassAction:
		return "action"
	case ClassStatus:
		return "status"
	case ClassError:
		return "error"
	case ClassLiveEvent:
		return "live_event"
	case ClassNoFlags:
		return "no_flags"
	default:
		return fmt.Sprintf("unknown(%d)", byte(c))
	}
}

// Flags are the sticky connection flags from the low nibble of byte 0.
type Flags struct {
	SoftwareDirectConnected bool `json:"softwaredirectconnected"`
	SoftwareConnected       bool `json:"softwareconnected"`
	Alarm                   bool `json:"alarm"`
	EventReporting          bool `json:"eventreporting"`
}

// ParseFlags decodes a low nibble.
func ParseFlags(lo byte) Flags {
	return Flags{
		SoftwareDirectConnected: Bit(lo, 0),
		SoftwareConnected:       Bit(lo, 1),
		Alarm:                   Bit(lo, 2),
		EventReporting:          Bit(lo, 3),
	}
}

// Header returns the message class and flag nibble of a payload.
func Header(payload []byte) (Class, Flags) {
	hi, lo := SplitNibbles(payload[0])
	return Class(hi), ParseFlags(lo)
}

// PanelIdentity is the body of a start-communication reply.
type PanelIdentity struct {
	PanelID          byte
	FirmwareVersion  byte
	FirmwareRevision byte
	FirmwareBuild    byte
	ProgrammedIDA    byte
	ProgrammedIDB    byte
}

// ProgrammedIDs splits the two programmed id bytes into their four nibbles.
func (p PanelIdentity) ProgrammedIDs() [4]byte {
	a1, a2 := SplitNibbles(p.ProgrammedIDA)
	b1, b2 := SplitNibbles(p.ProgrammedIDB)
	return [4]byte{a1, a2, b1, b2}
}

func ParseStartComm(p []byte) PanelIdentity {
	return PanelIdentity{
		PanelID:          p[4],
		FirmwareVersion:  p[5],
		FirmwareRevision: p[6],
		FirmwareBuild:    p[7],
		ProgrammedIDA:    p[8],
		ProgrammedIDB:    p[9],
	}
}

// Status reply selectors.
const (
	StatusRAMRead     = 128
	StatusFinalMarker = 31
	StatusFinalSub    = 224

	ActionBypass = 16
)

// MaxStatusZones is the number of zones covered by the open-zone bitmap.
const MaxStatusZones = 32

// PanelStatus is status sub-sequence 0: clock, voltages and open zones.
type PanelStatus struct {
	Time      time.Time
	TimeValid bool
	InputDC   float64
	PowerDC   float64
	BatteryDC float64
	// OpenZones is indexed by zone number - 1.
	OpenZones [MaxStatusZones]bool
}

func ParsePanelStatus(p []byte) PanelStatus {
	var s PanelStatus
	s.Time, s.TimeValid = DecodeTime(p[9:15])
	s.InputDC = InputVoltage(p[15])
	s.PowerDC = SupplyVoltage(p[16])
	s.BatteryDC = SupplyVoltage(p[17])
	for i := 0; i < 4; i++ {
		b := p[19+i]
		for j := uint(0); j < 8; j++ {
			s.OpenZones[i*8+int(j)] = Bit(b, j)
		}
	}
	return s
}

// ArmMode is the numeric partition arm state.
type ArmMode int

const (
	Disarmed ArmMode = 0
	ArmStay  ArmMode = 1
	ArmSleep ArmMode = 2
	ArmAway  ArmMode = 3
)

// Text is the ARM/STAY/SLEEP/DISARM vocabulary.
func (m ArmMode) Text() string {
	switch m {
	case ArmStay:
		return "STAY"
	case ArmSleep:
		return "SLEEP"
	case ArmAway:
		return "ARM"
	default:
		return "DISARM"
	}
}

// HASS is the Home Assistant alarm_control_panel vocabulary.
func (m ArmMode) HASS() string {
	switch m {
	case ArmStay:
		return "armed_home"
	case ArmSleep:
		return "armed_night"
	case ArmAway:
		return "armed_away"
	default:
		return "disarmed"
	}
}

func (m ArmMode) Armed() bool { return m != Disarmed }

func (m ArmMode) String() string { return m.Text() }

// ParseArmText parses the ARM/STAY/SLEEP/DISARM vocabulary.
func ParseArmText(s string) (ArmMode, bool) {
	for _, m := range []ArmMode{Disarmed, ArmStay, ArmSleep, ArmAway} {
		if m.Text() == s {
			return m, true
		}
	}
	return Disarmed, false
}

// ParseArmHASS parses the Home Assistant vocabulary.
func ParseArmHASS(s string) (ArmMode, bool) {
	for _, m := range []ArmMode{Disarmed, ArmStay, ArmSleep, ArmAway} {
		if m.HASS() == s {
			return m, true
		}
	}
	return Disarmed, false
}

// ArmModeFromBits applies stay > sleep > away > disarmed priority to a
// partition status byte (bit0 away, bit1 sleep, bit2 stay).
func ArmModeFromBits(b byte) ArmMode {
	switch {
	case Bit(b, 2):
		return ArmStay
	case Bit(b, 1):
		return ArmSleep
	case Bit(b, 0):
		return ArmAway
	default:
		return Disarmed
	}
}

// Partitions is the fixed number of partitions.
const Partitions = 2

// ParsePartitionStatus decodes status sub-sequence 1.
func ParsePartitionStatus(p []byte) [Partitions]ArmMode {
	var modes [Partitions]ArmMode
	for i := 0; i < Partitions; i++ {
		modes[i] = ArmModeFromBits(p[17+i*4])
	}
	return modes
}

// ParseBypassStatus decodes status sub-sequence 2. The result holds zones-1
// entries (zone numbers 1..zones-1), bounded by the payload size.
func ParseBypassStatus(p []byte, zones int) []bool {
	n := zones - 1
	if n > len(p)-4 {
		n = len(p) - 4
	}
	if n < 0 {
		n = 0
	}
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		out[i] = Bit(p[4+i], 3)
	}
	return out
}

// LabelType selects which entity a live-event label belongs to.
type LabelType byte

const (
	LabelZone      LabelType = 0
	LabelUser      LabelType = 1
	LabelPartition LabelType = 2
	LabelOutput    LabelType = 3
)

func (t LabelType) String() string {
	switch t {
	case LabelZone:
		return "zone"
	case LabelUser:
		return "user"
	case LabelPartition:
		return "partition"
	case LabelOutput:
		return "output"
	default:
		return fmt.Sprintf("label_type(%d)", byte(t))
	}
}

// LiveEvent is an unsolicited class 14 event.
type LiveEvent struct {
	Time         time.Time
	TimeValid    bool
	Event        byte
	Subevent     byte
	Partition    int
	ModuleSerial string
	LabelType    LabelType
	Label        string
	HasLabel     bool
}

func ParseLiveEvent(p []byte) LiveEvent {
	ev := LiveEvent{
		Event:        p[7],
		Subevent:     p[8],
		Partition:    int(p[9]) + 1,
		ModuleSerial: ModuleSerial(p[10:14]),
		LabelType:    LabelType(p[14]),
	}
	ev.Time, ev.TimeValid = DecodeTime(p[1:7])
	ev.Label, ev.HasLabel = DecodeLabel(p[15:31])
	return ev
}

// LabelPair extracts the two labels returned by a label register read.
func LabelPair(reply []byte) (first string, firstOK bool, second string, secondOK bool) {
	if len(reply) < PayloadSize {
		return "", false, "", false
	}
	first, firstOK = DecodeLabel(reply[4:20])
	second, secondOK = DecodeLabel(reply[20:36])
	return
}
