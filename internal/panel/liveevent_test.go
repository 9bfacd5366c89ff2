package panel

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paradox-go-home/internal/metrics"
	"paradox-go-home/internal/protocol"
	"paradox-go-home/internal/state"
	"paradox-go-home/internal/store"
)

func (f *dispatchFixture) live(t *testing.T, event, sub, partition byte, lt protocol.LabelType, label string) {
	t.Helper()
	f.disp.Process(encodePayload(t, livePayload(event, sub, partition, lt, label)))
}

func TestLiveZoneFlags(t *testing.T) {
	tests := []struct {
		event byte
		prop  state.ZoneProperty
		want  bool
	}{
		{1, state.ZoneOpen, true},
		{0, state.ZoneOpen, false},
		{36, state.ZoneAlarm, true},
		{38, state.ZoneAlarm, false},
		{37, state.ZoneFireAlarm, true},
		{39, state.ZoneFireAlarm, false},
		{41, state.ZoneShutdown, true},
		{42, state.ZoneTamper, true},
		{43, state.ZoneTamper, false},
		{49, state.ZoneLowBattery, true},
		{50, state.ZoneLowBattery, false},
		{51, state.ZoneSupervisionTrouble, true},
		{52, state.ZoneSupervisionTrouble, false},
	}
	for _, tt := range tests {
		f := newDispatchFixture(t)
		if !tt.want {
			require.NoError(t, f.store.SetZone(3, tt.prop, true))
		}
		f.live(t, tt.event, 3, 1, protocol.LabelZone, "")
		z, err := f.store.Zone(3)
		require.NoError(t, err)
		got, known := z.Flag(tt.prop)
		assert.True(t, known)
		assert.Equal(t, tt.want, got, "event %d", tt.event)
	}
}

func TestLiveZoneLabel(t *testing.T) {
	f := newDispatchFixture(t)
	f.live(t, 1, 2, 1, protocol.LabelZone, "Kitchen")
	z, _ := f.store.Zone(2)
	assert.Equal(t, "Kitchen", z.Label)
	require.NotNil(t, z.Open)
	assert.True(t, *z.Open)
}

func TestLiveLabelPersisted(t *testing.T) {
	f := newDispatchFixture(t)
	f.live(t, 1, 2, 1, protocol.LabelZone, "Kitchen")
	f.live(t, 2, 11, 2, protocol.LabelPartition, "Upstairs")
	f.live(t, 1, 20, 1, protocol.LabelZone, "Nowhere")

	assert.Equal(t, map[string]string{"zone2": "Kitchen", "partition2": "Upstairs"}, f.labels.saved)
}

func TestLiveLabelSurvivesRestart(t *testing.T) {
	db, err := store.NewBoltStore(filepath.Join(t.TempDir(), "labels.db"))
	require.NoError(t, err)
	defer db.Close()

	f := newDispatchFixture(t)
	f.disp.labels = db
	f.live(t, 1, 2, 1, protocol.LabelZone, "Kitchen")

	restarted := newTestStore()
	n, err := store.RestoreLabels(db, restarted)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	label, ok := restarted.Label(protocol.LabelZone, 2)
	assert.True(t, ok)
	assert.Equal(t, "Kitchen", label)
}

func TestLiveEventDescribedByLabel(t *testing.T) {
	f := newDispatchFixture(t)
	var buf bytes.Buffer
	f.disp.logger = slog.New(slog.NewTextHandler(&buf, nil))

	f.live(t, 1, 2, 1, protocol.LabelZone, "Kitchen")
	assert.Contains(t, buf.String(), `subevent=Kitchen`)

	// A later event without a label still names the zone.
	buf.Reset()
	f.live(t, 0, 2, 1, protocol.LabelType(0xFF), "")
	assert.Contains(t, buf.String(), `event="Zone closed" subevent=Kitchen`)
}

func TestLiveEventOutOfRangeLogged(t *testing.T) {
	f := newDispatchFixture(t)
	var buf bytes.Buffer
	f.disp.logger = slog.New(slog.NewTextHandler(&buf, nil))
	before := testutil.ToFloat64(metrics.FrameErrors.WithLabelValues("range"))

	f.live(t, 1, 20, 1, protocol.LabelType(0xFF), "")

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FrameErrors.WithLabelValues("range")))
	assert.Contains(t, buf.String(), "frame not applied")
	assert.Contains(t, buf.String(), "subevent=20")
}

func TestLivePartitionLabelUsesPartition(t *testing.T) {
	f := newDispatchFixture(t)
	f.live(t, 2, 12, 2, protocol.LabelPartition, "Garage")
	p, _ := f.store.Partition(2)
	assert.Equal(t, "Garage", p.Label)
}

func TestLiveOutputLabelOutOfRangeIgnored(t *testing.T) {
	f := newDispatchFixture(t)
	f.live(t, 99, 5, 1, protocol.LabelOutput, "Siren")
	f.live(t, 99, 1, 1, protocol.LabelOutput, "Strobe")
	o, _ := f.store.Output(1)
	assert.Equal(t, "Strobe", o.Label)
}

func TestLiveDisarmClears(t *testing.T) {
	f := newDispatchFixture(t)
	require.NoError(t, f.store.SetArmMode(1, protocol.ArmAway))
	f.store.SetBell(true)
	require.NoError(t, f.store.SetZone(4, state.ZoneBypass, true))
	require.NoError(t, f.store.SetPartitionAlarm(1, true))

	f.live(t, 2, 11, 1, protocol.LabelUser, "")

	snap := f.store.Snapshot()
	p := snap.Partitions[0]
	assert.False(t, *p.Armed)
	assert.Equal(t, protocol.Disarmed, *p.ArmState)
	assert.Equal(t, "DISARM", p.ArmStateText)
	assert.Equal(t, "disarmed", p.ArmStateHASS)
	assert.False(t, p.Alarm)
	assert.False(t, snap.Panel.Bell)
	assert.False(t, snap.Zones[3].Bypass)
}

func TestLiveAlarmStopped(t *testing.T) {
	f := newDispatchFixture(t)
	f.live(t, 2, 3, 2, protocol.LabelZone, "")
	p, _ := f.store.Partition(2)
	assert.True(t, p.Alarm)
	f.live(t, 2, 7, 2, protocol.LabelZone, "")
	p, _ = f.store.Partition(2)
	assert.False(t, p.Alarm)
}

func TestLiveBellAndArmModes(t *testing.T) {
	f := newDispatchFixture(t)
	f.live(t, 3, 1, 1, protocol.LabelZone, "")
	assert.True(t, f.store.Snapshot().Panel.Bell)
	f.live(t, 3, 5, 1, protocol.LabelZone, "")
	assert.True(t, f.store.Snapshot().Panel.Bell)
	f.live(t, 3, 0, 1, protocol.LabelZone, "")
	assert.False(t, f.store.Snapshot().Panel.Bell)

	f.live(t, 6, 3, 1, protocol.LabelZone, "")
	p, _ := f.store.Partition(1)
	assert.Equal(t, protocol.ArmStay, *p.ArmState)
	f.live(t, 6, 4, 2, protocol.LabelZone, "")
	p, _ = f.store.Partition(2)
	assert.Equal(t, protocol.ArmSleep, *p.ArmState)
}

func TestLiveBypassToggle(t *testing.T) {
	f := newDispatchFixture(t)
	f.live(t, 35, 6, 1, protocol.LabelZone, "")
	z, _ := f.store.Zone(6)
	assert.True(t, z.Bypass)
	f.live(t, 35, 6, 1, protocol.LabelZone, "")
	z, _ = f.store.Zone(6)
	assert.False(t, z.Bypass)
}

func TestLiveTroublesAndOutputs(t *testing.T) {
	f := newDispatchFixture(t)
	code := protocol.Troubles[1].Code
	f.live(t, 44, code, 1, protocol.LabelZone, "")
	f.live(t, 46, protocol.ModuleTroubles[0].Code, 1, protocol.LabelZone, "")
	f.live(t, 53, 2, 1, protocol.LabelZone, "")
	f.live(t, 55, 1, 1, protocol.LabelZone, "")
	f.live(t, 55, 9, 1, protocol.LabelZone, "")

	snap := f.store.Snapshot()
	assert.True(t, snap.Troubles[1].Status)
	assert.True(t, snap.ModuleTroubles[0].Status)
	assert.True(t, snap.Outputs[1].SupervisionTrouble)
	assert.True(t, snap.Outputs[0].Tamper)

	f.live(t, 45, code, 1, protocol.LabelZone, "")
	assert.False(t, f.store.Snapshot().Troubles[1].Status)
}
