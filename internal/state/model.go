package state

import (
	"fmt"
	"strings"
	"time"

	"paradox-go-home/internal/protocol"
)

// Kind identifies an entity collection.
type Kind string

const (
	KindPanel         Kind = "panel"
	KindPartition     Kind = "partition"
	KindZone          Kind = "zone"
	KindOutput        Kind = "output"
	KindUser          Kind = "user"
	KindTrouble       Kind = "trouble"
	KindModuleTrouble Kind = "moduletrouble"
	KindLastZoneEvent Kind = "lastzoneevent"
)

// NodeID returns the stable machine label of an entity, e.g. "zone3".
func NodeID(kind Kind, n int) string {
	switch kind {
	case KindPanel:
		return "panel"
	case KindTrouble:
		return "troubleindicators"
	case KindModuleTrouble:
		return "moduletroubleindicators"
	case KindLastZoneEvent:
		return "lastzoneevent"
	}
	return fmt.Sprintf("%s%d", kind, n)
}

// ParseNodeID is the inverse of NodeID for numbered kinds.
func ParseNodeID(node string) (Kind, int, bool) {
	for _, k := range []Kind{KindPartition, KindZone, KindOutput, KindUser} {
		rest, found := strings.CutPrefix(node, string(k))
		if !found || rest == "" {
			continue
		}
		n := 0
		for _, r := range rest {
			if r < '0' || r > '9' {
				return "", 0, false
			}
			n = n*10 + int(r-'0')
			if n > 1000 {
				return "", 0, false
			}
		}
		return k, n, true
	}
	return "", 0, false
}

// PanelProperty enumerates panel node properties.
type PanelProperty int

const (
	PanelID PanelProperty = iota
	PanelName
	FirmwareVersion
	FirmwareRevision
	FirmwareBuild
	ProgrammedIDA
	ProgrammedIDB
	ProgrammedID1
	ProgrammedID2
	ProgrammedID3
	ProgrammedID4
	PanelTime
	MessageTime
	SoftwareDirectConnected
	SoftwareConnected
	PanelAlarm
	EventReporting
	Bell
	InputDCVoltage
	PowerSupplyDCVoltage
	BatteryDCVoltage
	panelPropertyCount
)

var panelPropertyNames = [...]string{
	"panelid", "panelname", "firmwareversion", "firmwarerevision", "firmwarebuild",
	"programmedpanelida", "programmedpanelidb", "programmedpanelid1", "programmedpanelid2",
	"programmedpanelid3", "programmedpanelid4", "paneltime", "messagetime",
	"softwaredirectconnected", "softwareconnected", "alarm", "eventreporting", "bell",
	"inputdcvoltage", "powersupplydcvoltage", "batterydcvoltage",
}

func (p PanelProperty) String() string {
	if p >= 0 && p < panelPropertyCount {
		return panelPropertyNames[p]
	}
	return fmt.Sprintf("panel_property(%d)", int(p))
}

// PanelProperties lists every panel property in publication order.
func PanelProperties() []PanelProperty {
	out := make([]PanelProperty, panelPropertyCount)
	for i := range out {
		out[i] = PanelProperty(i)
	}
	return out
}

// PartitionProperty enumerates partition properties.
type PartitionProperty int

const (
	PartitionAlarm PartitionProperty = iota
	PartitionArmed
	PartitionArmState
	PartitionArmStateText
	PartitionArmStateHASS
)

func (p PartitionProperty) String() string {
	switch p {
	case PartitionAlarm:
		return "alarm"
	case PartitionArmed:
		return "armed"
	case PartitionArmState:
		return "armstate"
	case PartitionArmStateText:
		return "armstatetext"
	case PartitionArmStateHASS:
		return "armstatehass"
	}
	return fmt.Sprintf("partition_property(%d)", int(p))
}

// ZoneProperty enumerates the boolean zone flags.
type ZoneProperty int

const (
	ZoneOpen ZoneProperty = iota
	ZoneBypass
	ZoneAlarm
	ZoneFireAlarm
	ZoneShutdown
	ZoneTamper
	ZoneLowBattery
	ZoneSupervisionTrouble
	zonePropertyCount
)

var zonePropertyNames = [...]string{
	"open", "bypass", "alarm", "firealarm", "shutdown", "tamper", "lowbattery", "supervisiontrouble",
}

func (p ZoneProperty) String() string {
	if p >= 0 && p < zonePropertyCount {
		return zonePropertyNames[p]
	}
	return fmt.Sprintf("zone_property(%d)", int(p))
}

// ZoneProperties lists every zone flag.
func ZoneProperties() []ZoneProperty {
	out := make([]ZoneProperty, zonePropertyCount)
	for i := range out {
		out[i] = ZoneProperty(i)
	}
	return out
}

// OutputProperty enumerates the boolean output flags.
type OutputProperty int

const (
	OutputOn OutputProperty = iota
	OutputPulse
	OutputTamper
	OutputSupervisionTrouble
)

func (p OutputProperty) String() string {
	switch p {
	case OutputOn:
		return "on"
	case OutputPulse:
		return "pulse"
	case OutputTamper:
		return "tamper"
	case OutputSupervisionTrouble:
		return "supervisiontrouble"
	}
	return fmt.Sprintf("output_property(%d)", int(p))
}

// OutputProperties lists every output flag.
func OutputProperties() []OutputProperty {
	return []OutputProperty{OutputOn, OutputPulse, OutputTamper, OutputSupervisionTrouble}
}

// Identity is the panel identity from the start-communication reply.
type Identity struct {
	ID               int    `json:"panelid"`
	Name             string `json:"panelname"`
	FirmwareVersion  int    `json:"firmwareversion"`
	FirmwareRevision int    `json:"firmwarerevision"`
	FirmwareBuild    int    `json:"firmwarebuild"`
	ProgrammedIDA    int    `json:"programmedpanelida"`
	ProgrammedIDB    int    `json:"programmedpanelidb"`
	ProgrammedIDs    [4]int `json:"programmedpanelids"`
}

// Voltages are the last decoded supply readings.
type Voltages struct {
	InputDC       float64 `json:"inputdcvoltage"`
	PowerSupplyDC float64 `json:"powersupplydcvoltage"`
	BatteryDC     float64 `json:"batterydcvoltage"`
}

type Panel struct {
	Identity    *Identity      `json:"identity"`
	PanelTime   *time.Time     `json:"paneltime"`
	MessageTime *time.Time     `json:"messagetime"`
	Voltages    *Voltages      `json:"voltages"`
	Flags       protocol.Flags `json:"flags"`
	Bell        bool           `json:"bell"`
}

type Partition struct {
	Number       int               `json:"number"`
	Label        string            `json:"label"`
	Alarm        bool              `json:"alarm"`
	Armed        *bool             `json:"armed"`
	ArmState     *protocol.ArmMode `json:"armstate"`
	ArmStateText string            `json:"armstatetext,omitempty"`
	ArmStateHASS string            `json:"armstatehass,omitempty"`
}

type Zone struct {
	Number int    `json:"number"`
	Label  string `json:"label"`
	// Open is nil until the first status poll or live event.
	Open               *bool `json:"open"`
	Bypass             bool  `json:"bypass"`
	Alarm              bool  `json:"alarm"`
	FireAlarm          bool  `json:"firealarm"`
	Shutdown           bool  `json:"shutdown"`
	Tamper             bool  `json:"tamper"`
	LowBattery         bool  `json:"lowbattery"`
	SupervisionTrouble bool  `json:"supervisiontrouble"`
}

func (z *Zone) flag(p ZoneProperty) (value bool, known bool) {
	switch p {
	case ZoneOpen:
		if z.Open == nil {
			return false, false
		}
		return *z.Open, true
	case ZoneBypass:
		return z.Bypass, true
	case ZoneAlarm:
		return z.Alarm, true
	case ZoneFireAlarm:
		return z.FireAlarm, true
	case ZoneShutdown:
		return z.Shutdown, true
	case ZoneTamper:
		return z.Tamper, true
	case ZoneLowBattery:
		return z.LowBattery, true
	case ZoneSupervisionTrouble:
		return z.SupervisionTrouble, true
	}
	return false, false
}

func (z *Zone) setFlag(p ZoneProperty, v bool) {
	switch p {
	case ZoneOpen:
		z.Open = &v
	case ZoneBypass:
		z.Bypass = v
	case ZoneAlarm:
		z.Alarm = v
	case ZoneFireAlarm:
		z.FireAlarm = v
	case ZoneShutdown:
		z.Shutdown = v
	case ZoneTamper:
		z.Tamper = v
	case ZoneLowBattery:
		z.LowBattery = v
	case ZoneSupervisionTrouble:
		z.SupervisionTrouble = v
	}
}

// Flag returns a zone flag; known is false while Open has not been reported.
func (z Zone) Flag(p ZoneProperty) (value bool, known bool) {
	return z.flag(p)
}

type Output struct {
	Number             int    `json:"number"`
	Label              string `json:"label"`
	On                 bool   `json:"on"`
	Pulse              bool   `json:"pulse"`
	Tamper             bool   `json:"tamper"`
	SupervisionTrouble bool   `json:"supervisiontrouble"`
}

func (o *Output) flag(p OutputProperty) bool {
	switch p {
	case OutputOn:
		return o.On
	case OutputPulse:
		return o.Pulse
	case OutputTamper:
		return o.Tamper
	case OutputSupervisionTrouble:
		return o.SupervisionTrouble
	}
	return false
}

func (o *Output) setFlag(p OutputProperty, v bool) {
	switch p {
	case OutputOn:
		o.On = v
	case OutputPulse:
		o.Pulse = v
	case OutputTamper:
		o.Tamper = v
	case OutputSupervisionTrouble:
		o.SupervisionTrouble = v
	}
}

// Flag returns an output flag.
func (o Output) Flag(p OutputProperty) bool {
	return o.flag(p)
}

type User struct {
	Number int    `json:"number"`
	Label  string `json:"label"`
}

// TroubleIndicator is one entry of a trouble table.
type TroubleIndicator struct {
	Code         int    `json:"code"`
	MachineLabel string `json:"machine_label"`
	Name         string `json:"name"`
	Status       bool   `json:"status"`
}

// LastZoneEvent records the most recent zone flag change.
type LastZoneEvent struct {
	Zone     int       `json:"zone"`
	Node     string    `json:"node"`
	Label    string    `json:"label"`
	Property string    `json:"property"`
	State    bool      `json:"state"`
	Time     time.Time `json:"time"`
}

// Snapshot is a deep copy of the whole model. Slices are indexed by number-1.
type Snapshot struct {
	Panel          Panel              `json:"panel"`
	Partitions     []Partition        `json:"partitions"`
	Zones          []Zone             `json:"zones"`
	Outputs        []Output           `json:"outputs"`
	Users          []User             `json:"users"`
	Troubles       []TroubleIndicator `json:"troubles"`
	ModuleTroubles []TroubleIndicator `json:"module_troubles"`
	LastZoneEvent  *LastZoneEvent     `json:"last_zone_event,omitempty"`
	Time           time.Time          `json:"time"`
}
