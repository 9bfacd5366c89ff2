package protocol

import "fmt"

// EventDescription names an event group and, optionally, its subevents.
type EventDescription struct {
	Name      string
	Subevents map[byte]string
	// SubeventKind names the entity a subevent number refers to when the
	// subevent is a number rather than a code (for example "zone").
	SubeventKind string
}

// EventMap maps event numbers to descriptions.
type EventMap map[byte]EventDescription

// Describe returns human readable event and subevent text.
func (m EventMap) Describe(event, subevent byte) (string, string) {
	return m.DescribeWith(event, subevent, nil)
}

// SubeventNamer names entity n of kind ("zone", "user"). It reports false
// when it knows no name.
type SubeventNamer func(kind string, n int) (string, bool)

// DescribeWith is Describe with numbered subevents named by name when it
// can. name may be nil.
func (m EventMap) DescribeWith(event, subevent byte, name SubeventNamer) (string, string) {
	d, ok := m[event]
	if !ok {
		return fmt.Sprintf("event %d", event), fmt.Sprintf("subevent %d", subevent)
	}
	if s, ok := d.Subevents[subevent]; ok {
		return d.Name, s
	}
	if d.SubeventKind != "" {
		if name != nil {
			if label, ok := name(d.SubeventKind, int(subevent)); ok && label != "" {
				return d.Name, label
			}
		}
		return d.Name, fmt.Sprintf("%s %d", d.SubeventKind, subevent)
	}
	return d.Name, fmt.Sprintf("subevent %d", subevent)
}

var partitionStatus = map[byte]string{
	0:  "Partition ready",
	1:  "Partition not ready",
	2:  "Silent alarm",
	3:  "Buzzer alarm",
	4:  "Steady alarm",
	5:  "Pulsed alarm",
	6:  "Strobe",
	7:  "Alarm stopped",
	8:  "Squawk ON",
	9:  "Squawk OFF",
	10: "Ground start",
	11: "Disarm partition",
	12: "Arm partition",
	13: "Entry delay started",
	14: "Exit delay started",
	15: "Pre-alarm delay",
}

var bellStatus = map[byte]string{
	0: "Bell OFF",
	1: "Bell ON",
	2: "Bell squawk arm",
	3: "Bell squawk disarm",
}

var nonReportable = map[byte]string{
	0: "Telephone line trouble",
	1: "Reset smoke detectors",
	2: "Instant arming",
	3: "Stay arming",
	4: "Sleep arming",
	5: "Fast exit",
	6: "PC fail to communicate",
	7: "Midnight",
}

var specialArming = map[byte]string{
	0: "Auto-arming",
	1: "Late to close",
	2: "No movement",
	3: "Partial arming",
	4: "Quick arming",
	5: "Arm with WinLoad",
	6: "Arm with keyswitch",
}

var specialDisarming = map[byte]string{
	0: "Cancel auto-arm",
	1: "Disarm with WinLoad",
	2: "Disarm after alarm with WinLoad",
	3: "Cancel alarm with WinLoad",
}

func zoneNumbered(name string) EventDescription {
	return EventDescription{Name: name, SubeventKind: "zone"}
}

func userNumbered(name string) EventDescription {
	return EventDescription{Name: name, SubeventKind: "user"}
}

func troubleDescriptions(table []TroubleDef) map[byte]string {
	m := make(map[byte]string, len(table))
	for _, t := range table {
		m[t.Code] = t.Name
	}
	return m
}

// mgEvents is the MG series event table.
var mgEvents = EventMap{
	0:  zoneNumbered("Zone closed"),
	1:  zoneNumbered("Zone open"),
	2:  {Name: "Partition status", Subevents: partitionStatus},
	3:  {Name: "Bell status", Subevents: bellStatus},
	6:  {Name: "Non-reportable event", Subevents: nonReportable},
	8:  userNumbered("Remote button pressed"),
	12: zoneNumbered("Cold start wireless zone"),
	13: {Name: "Cold start wireless module", SubeventKind: "module"},
	14: userNumbered("Bypass programming"),
	15: userNumbered("User code activated output"),
	16: zoneNumbered("Wireless smoke maintenance signal"),
	17: zoneNumbered("Delay zone alarm transmission"),
	29: userNumbered("Arming with user code"),
	30: {Name: "Special arming", Subevents: specialArming},
	31: userNumbered("Disarming with user code"),
	32: userNumbered("Disarming after alarm with user code"),
	33: userNumbered("Alarm cancelled with user code"),
	34: {Name: "Special disarming", Subevents: specialDisarming},
	35: zoneNumbered("Zone bypassed"),
	36: zoneNumbered("Zone in alarm"),
	37: zoneNumbered("Fire alarm"),
	38: zoneNumbered("Zone alarm restore"),
	39: zoneNumbered("Fire alarm restore"),
	41: zoneNumbered("Zone shutdown"),
	42: zoneNumbered("Zone tampered"),
	43: zoneNumbered("Zone tamper restore"),
	44: {Name: "New trouble", Subevents: troubleDescriptions(Troubles)},
	45: {Name: "Trouble restored", Subevents: troubleDescriptions(Troubles)},
	46: {Name: "Module trouble", Subevents: troubleDescriptions(ModuleTroubles)},
	47: {Name: "Module trouble restored", Subevents: troubleDescriptions(ModuleTroubles)},
	49: zoneNumbered("Low battery on zone"),
	50: zoneNumbered("Zone low battery restore"),
	51: zoneNumbered("Zone supervision trouble"),
	52: zoneNumbered("Zone supervision restore"),
	53: {Name: "Wireless module supervision trouble", SubeventKind: "output"},
	54: {Name: "Wireless module supervision restore", SubeventKind: "output"},
	55: {Name: "Wireless module tamper trouble", SubeventKind: "output"},
	56: {Name: "Wireless module tamper restore", SubeventKind: "output"},
	57: {Name: "Non-medical alarm"},
	58: zoneNumbered("Zone forced"),
	59: zoneNumbered("Zone included"),
	64: {Name: "System status"},
}

// spEvents is the SP series event table. SP panels have no wireless
// transceiver built in, so the wireless module groups are absent.
var spEvents = func() EventMap {
	m := make(EventMap, len(mgEvents))
	for k, v := range mgEvents {
		m[k] = v
	}
	for _, k := range []byte{12, 13, 16, 53, 54, 55, 56} {
		delete(m, k)
	}
	return m
}()
