package state

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paradox-go-home/internal/protocol"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Change
	for _, e := range r.events {
		if c, ok := e.Data.(Change); ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *recorder) find(node, property string) []Change {
	var out []Change
	for _, c := range r.changes() {
		if c.Node == node && c.Property == property {
			out = append(out, c)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*Store, *recorder) {
	t.Helper()
	rec := &recorder{}
	s := NewStore(Config{Zones: 8, Users: 4, Outputs: 2}, rec, testLogger())
	fixed := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })
	return s, rec
}

func TestDefaultLabels(t *testing.T) {
	s, _ := newTestStore(t)
	snap := s.Snapshot()
	require.Len(t, snap.Zones, 8)
	require.Len(t, snap.Partitions, 2)
	require.Len(t, snap.Outputs, 2)
	require.Len(t, snap.Users, 4)
	assert.Equal(t, "Zone 1", snap.Zones[0].Label)
	assert.Equal(t, "Partition 2", snap.Partitions[1].Label)
	assert.Equal(t, "Output 2", snap.Outputs[1].Label)
	assert.Equal(t, "User 4", snap.Users[3].Label)
	assert.Nil(t, snap.Zones[0].Open)
}

func TestSetZoneEdgeTriggered(t *testing.T) {
	s, rec := newTestStore(t)

	require.NoError(t, s.SetZone(3, ZoneOpen, false))
	require.NoError(t, s.SetZone(3, ZoneOpen, false))
	assert.Len(t, rec.find("zone3", "open"), 1, "unknown -> false publishes once")

	require.NoError(t, s.SetZone(3, ZoneOpen, true))
	require.NoError(t, s.SetZone(3, ZoneOpen, true))
	assert.Len(t, rec.find("zone3", "open"), 2)

	last := rec.find("lastzoneevent", "event")
	require.Len(t, last, 2)
	ev := last[1].Value.(LastZoneEvent)
	assert.Equal(t, 3, ev.Zone)
	assert.Equal(t, "zone3", ev.Node)
	assert.Equal(t, "open", ev.Property)
	assert.True(t, ev.State)
}

func TestSetZoneOutOfRange(t *testing.T) {
	s, rec := newTestStore(t)
	assert.ErrorIs(t, s.SetZone(0, ZoneOpen, true), ErrOutOfRange)
	assert.ErrorIs(t, s.SetZone(9, ZoneOpen, true), ErrOutOfRange)
	assert.ErrorIs(t, s.ToggleZone(9, ZoneBypass), ErrOutOfRange)
	assert.ErrorIs(t, s.SetOutput(3, OutputOn, true), ErrOutOfRange)
	assert.ErrorIs(t, s.SetPartitionAlarm(3, true), ErrOutOfRange)
	assert.ErrorIs(t, s.SetTrouble(42, true), ErrOutOfRange)
	assert.Empty(t, rec.changes())
}

func TestToggleZone(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.ToggleZone(2, ZoneBypass))
	z, err := s.Zone(2)
	require.NoError(t, err)
	assert.True(t, z.Bypass)
	require.NoError(t, s.ToggleZone(2, ZoneBypass))
	z, _ = s.Zone(2)
	assert.False(t, z.Bypass)
}

func TestSetArmMode(t *testing.T) {
	s, rec := newTestStore(t)

	require.NoError(t, s.SetArmMode(1, protocol.ArmAway))
	p, err := s.Partition(1)
	require.NoError(t, err)
	require.NotNil(t, p.Armed)
	assert.True(t, *p.Armed)
	assert.Equal(t, protocol.ArmAway, *p.ArmState)
	assert.Equal(t, "ARM", p.ArmStateText)
	assert.Equal(t, "armed_away", p.ArmStateHASS)

	rec.reset()
	require.NoError(t, s.SetArmMode(1, protocol.ArmAway))
	assert.Empty(t, rec.changes())

	require.NoError(t, s.SetArmMode(1, protocol.ArmStay))
	assert.Empty(t, rec.find("partition1", "armed"), "armed unchanged between away and stay")
	assert.Len(t, rec.find("partition1", "armstate"), 1)
	assert.Len(t, rec.find("partition1", "armstatehass"), 1)
}

func TestDisarmClearsBellAndBypass(t *testing.T) {
	s, rec := newTestStore(t)
	require.NoError(t, s.SetArmMode(1, protocol.ArmAway))
	s.SetBell(true)
	require.NoError(t, s.SetZone(1, ZoneBypass, true))
	require.NoError(t, s.SetZone(5, ZoneBypass, true))
	rec.reset()

	require.NoError(t, s.SetArmMode(1, protocol.Disarmed))

	snap := s.Snapshot()
	assert.False(t, snap.Panel.Bell)
	for _, z := range snap.Zones {
		assert.False(t, z.Bypass, "zone %d", z.Number)
	}
	assert.Len(t, rec.find("panel", "bell"), 1)
	assert.Len(t, rec.find("zone1", "bypass"), 1)
	assert.Len(t, rec.find("zone5", "bypass"), 1)
	assert.Empty(t, rec.find("zone2", "bypass"))
}

func TestInitialDisarmRunsClear(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetBell(true)
	require.NoError(t, s.SetArmMode(2, protocol.Disarmed))
	assert.False(t, s.Snapshot().Panel.Bell)
}

func TestAlarmFlagOffClearsPartitionAlarms(t *testing.T) {
	s, _ := newTestStore(t)
	s.SetFlags(protocol.Flags{Alarm: true})
	require.NoError(t, s.SetPartitionAlarm(1, true))
	require.NoError(t, s.SetPartitionAlarm(2, true))

	s.SetFlags(protocol.Flags{Alarm: false})
	snap := s.Snapshot()
	assert.False(t, snap.Partitions[0].Alarm)
	assert.False(t, snap.Partitions[1].Alarm)
	assert.False(t, snap.Panel.Flags.Alarm)
}

func TestSetFlagsEdges(t *testing.T) {
	s, rec := newTestStore(t)
	f := protocol.Flags{SoftwareConnected: true, EventReporting: true}
	s.SetFlags(f)
	s.SetFlags(f)
	assert.Len(t, rec.find("panel", "softwareconnected"), 1)
	assert.Len(t, rec.find("panel", "eventreporting"), 1)
	assert.Empty(t, rec.find("panel", "alarm"))
	assert.True(t, s.SoftwareConnected())
}

func TestSetIdentity(t *testing.T) {
	s, rec := newTestStore(t)
	id := protocol.PanelIdentity{PanelID: 21, FirmwareVersion: 4, FirmwareRevision: 72, FirmwareBuild: 3}
	assert.True(t, s.SetIdentity(id))
	assert.False(t, s.SetIdentity(id))

	snap := s.Snapshot()
	require.NotNil(t, snap.Panel.Identity)
	assert.Equal(t, 21, snap.Panel.Identity.ID)
	assert.NotEmpty(t, snap.Panel.Identity.Name)
	assert.Len(t, rec.find("panel", "panelid"), 1)
}

func TestSetIdentityUnknownPanel(t *testing.T) {
	s, _ := newTestStore(t)
	assert.True(t, s.SetIdentity(protocol.PanelIdentity{PanelID: 0xEE}))
	snap := s.Snapshot()
	require.NotNil(t, snap.Panel.Identity)
	assert.Empty(t, snap.Panel.Identity.Name)
}

func TestSetLabel(t *testing.T) {
	s, rec := newTestStore(t)
	require.NoError(t, s.SetLabel(protocol.LabelZone, 1, "Front Door"))
	require.NoError(t, s.SetLabel(protocol.LabelZone, 1, "Front Door"))
	require.NoError(t, s.SetLabel(protocol.LabelPartition, 2, "Garage"))
	require.NoError(t, s.SetLabel(protocol.LabelOutput, 1, "Siren"))
	require.NoError(t, s.SetLabel(protocol.LabelUser, 3, "Alice"))
	assert.ErrorIs(t, s.SetLabel(protocol.LabelOutput, 5, "x"), ErrOutOfRange)

	snap := s.Snapshot()
	assert.Equal(t, "Front Door", snap.Zones[0].Label)
	assert.Equal(t, "Garage", snap.Partitions[1].Label)
	assert.Equal(t, "Siren", snap.Outputs[0].Label)
	assert.Equal(t, "Alice", snap.Users[2].Label)
	assert.Len(t, rec.find("zone1", "label"), 1)

	tests := []struct {
		kind protocol.LabelType
		n    int
		want string
		ok   bool
	}{
		{protocol.LabelZone, 1, "Front Door", true},
		{protocol.LabelPartition, 2, "Garage", true},
		{protocol.LabelOutput, 1, "Siren", true},
		{protocol.LabelUser, 3, "Alice", true},
		{protocol.LabelZone, 9, "", false},
		{protocol.LabelOutput, 0, "", false},
		{protocol.LabelType(9), 1, "", false},
	}
	for _, tt := range tests {
		got, ok := s.Label(tt.kind, tt.n)
		assert.Equal(t, tt.ok, ok, "%s %d", tt.kind, tt.n)
		assert.Equal(t, tt.want, got, "%s %d", tt.kind, tt.n)
	}
}

func TestOutputsAndPulse(t *testing.T) {
	s, rec := newTestStore(t)
	require.NoError(t, s.SetOutput(1, OutputPulse, true))
	require.NoError(t, s.SetOutput(1, OutputOn, true))
	assert.Equal(t, []int{1}, s.PulsingOutputs())

	o, err := s.Output(1)
	require.NoError(t, err)
	assert.True(t, o.On)

	require.NoError(t, s.SetOutput(1, OutputOn, true))
	assert.Len(t, rec.find("output1", "on"), 1)
}

func TestTroubles(t *testing.T) {
	s, rec := newTestStore(t)
	code := int(protocol.Troubles[0].Code)
	require.NoError(t, s.SetTrouble(code, true))
	require.NoError(t, s.SetTrouble(code, true))
	changes := rec.find("troubleindicators", protocol.Troubles[0].MachineLabel)
	assert.Len(t, changes, 1)

	require.NoError(t, s.SetModuleTrouble(int(protocol.ModuleTroubles[0].Code), true))
	snap := s.Snapshot()
	assert.True(t, snap.Troubles[0].Status)
	assert.True(t, snap.ModuleTroubles[0].Status)
}

func TestVoltagesAndPanelTime(t *testing.T) {
	s, rec := newTestStore(t)
	s.SetVoltages(Voltages{InputDC: 20.3, PowerSupplyDC: 13.8, BatteryDC: 13.5})
	s.SetVoltages(Voltages{InputDC: 20.3, PowerSupplyDC: 13.8, BatteryDC: 13.4})
	assert.Len(t, rec.find("panel", "inputdcvoltage"), 1)
	assert.Len(t, rec.find("panel", "batterydcvoltage"), 2)

	_, ok := s.PanelTime()
	assert.False(t, ok)
	pt := time.Date(2024, 3, 15, 14, 29, 0, 0, time.Local)
	s.SetPanelTime(pt, true)
	got, ok := s.PanelTime()
	assert.True(t, ok)
	assert.True(t, got.Equal(pt))
	s.SetPanelTime(time.Time{}, false)
	_, ok = s.PanelTime()
	assert.False(t, ok)
}

func TestSnapshotIsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.SetZone(1, ZoneOpen, true))
	snap := s.Snapshot()
	*snap.Zones[0].Open = false
	snap.Zones[0].Label = "mutated"
	z, _ := s.Zone(1)
	assert.True(t, *z.Open)
	assert.Equal(t, "Zone 1", z.Label)
}

func TestChangeEmittedAfterUnlock(t *testing.T) {
	bus := NewEventBus(testLogger())
	s := NewStore(Config{Zones: 2, Users: 2, Outputs: 2}, bus, testLogger())
	var seen bool
	bus.On(EventChange, func(e Event) {
		// Reading the store from a handler must not deadlock.
		_ = s.Snapshot()
		seen = true
	})
	require.NoError(t, s.SetZone(1, ZoneAlarm, true))
	assert.True(t, seen)
}

func TestNodeID(t *testing.T) {
	tests := []struct {
		kind Kind
		n    int
		want string
	}{
		{KindPanel, 0, "panel"},
		{KindZone, 3, "zone3"},
		{KindPartition, 1, "partition1"},
		{KindOutput, 1, "output1"},
		{KindUser, 12, "user12"},
		{KindTrouble, 0, "troubleindicators"},
		{KindModuleTrouble, 0, "moduletroubleindicators"},
		{KindLastZoneEvent, 0, "lastzoneevent"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NodeID(tt.kind, tt.n))
	}

	k, n, ok := ParseNodeID("zone12")
	assert.True(t, ok)
	assert.Equal(t, KindZone, k)
	assert.Equal(t, 12, n)
	_, _, ok = ParseNodeID("zone")
	assert.False(t, ok)
	_, _, ok = ParseNodeID("zonex")
	assert.False(t, ok)
	_, _, ok = ParseNodeID("panel")
	assert.False(t, ok)
}
