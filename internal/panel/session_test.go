package panel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paradox-go-home/internal/protocol"
	"paradox-go-home/internal/state"
)

// panelSim answers like a logged-in panel.
func panelSim(t *testing.T) func([]byte) []byte {
	return func(p []byte) []byte {
		switch p[0] {
		case 0x72:
			return encode(t, 0x02, 0x00, 0x00, 0x00, 65, 6, 80, 1, 0x12, 0x34)
		case 0x5F:
			r := make([]byte, protocol.PayloadSize)
			r[0] = 0x12
			for i := 1; i < 23; i++ {
				r[i] = byte(i)
			}
			return encodePayload(t, r)
		case 0x50:
			r := make([]byte, protocol.PayloadSize)
			r[0] = 0x52
			r[2], r[3] = p[2], p[3]
			if p[2] == protocol.StatusRAMRead && p[3] == 0 {
				withClock(r, testNow)
			}
			return encodePayload(t, r)
		case 0x12:
			// initialize communication echo
			return encode(t, 0x12)
		}
		return nil
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []state.Event
}

func (e *eventLog) Emit(ev state.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *eventLog) ofType(typ string) []state.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []state.Event
	for _, ev := range e.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type memLabels struct {
	saved map[string]string
}

func (m *memLabels) SaveLabel(kind protocol.LabelType, n int, label string) error {
	if m.saved == nil {
		m.saved = make(map[string]string)
	}
	m.saved[kind.String()+string(rune('0'+n))] = label
	return nil
}

func newTestSession(t *testing.T, link *fakeLink, cfg Config) (*Session, *eventLog, *memLabels) {
	t.Helper()
	if cfg.Model == 0 {
		cfg.Model = protocol.ModelMG5050
	}
	cfg.ReplyTimeout = time.Millisecond
	events := &eventLog{}
	labels := &memLabels{}
	s := NewSession(cfg, link, newTestStore(), events, labels, testLogger())
	s.now = func() time.Time { return testNow }
	return s, events, labels
}

func TestLoginSequence(t *testing.T) {
	link := &fakeLink{respond: panelSim(t)}
	s, events, _ := newTestSession(t, link, Config{})

	s.login(context.Background())

	sent := link.sent()
	require.Len(t, sent, 7)
	assert.Equal(t, protocol.StartCommunication(), sent[0])
	assert.Equal(t, protocol.StatusRequest(0), sent[1])
	assert.Equal(t, protocol.InitRequest(), sent[2])
	assert.Equal(t, byte(0x12), sent[3][0], "init echoes the reply")
	assert.Equal(t, []byte{0x19, 0x00, 0x00}, sent[3][12:15])
	assert.Equal(t, protocol.KeepAliveFinal(), sent[4])
	assert.Equal(t, protocol.ZeroRead(), sent[5])
	assert.Equal(t, protocol.LoginTail(), sent[6])

	assert.Equal(t, StateConnected, s.State())
	assert.True(t, s.store.SoftwareConnected())
	assert.GreaterOrEqual(t, link.flushes, 1)

	conn := events.ofType(state.EventConnection)
	require.Len(t, conn, 2)
	assert.Equal(t, StateLoggingIn, conn[0].Data.(state.ConnectionState).State)
	assert.Equal(t, StateConnected, conn[1].Data.(state.ConnectionState).State)

	id := s.store.Snapshot().Panel.Identity
	require.NotNil(t, id)
	assert.Equal(t, "MG5050", id.Name)
}

func TestLoginWithoutPanel(t *testing.T) {
	link := &fakeLink{}
	s, _, _ := newTestSession(t, link, Config{})

	s.login(context.Background())

	assert.Len(t, link.sent(), 9, "three commands, three tries each")
	assert.Equal(t, StateDisconnected, s.State())
	assert.False(t, s.store.SoftwareConnected())
}

func TestKeepAliveBurst(t *testing.T) {
	link := &fakeLink{respond: panelSim(t)}
	s, _, _ := newTestSession(t, link, Config{})

	s.keepAlive()

	sent := link.sent()
	require.Len(t, sent, 8)
	for i := 0; i < 7; i++ {
		assert.Equal(t, protocol.StatusRequest(byte(i)), sent[i])
	}
	assert.Equal(t, protocol.KeepAliveFinal(), sent[7])
}

func TestReadLabels(t *testing.T) {
	reply := make([]byte, protocol.PayloadSize)
	reply[0] = 0x52
	copy(reply[4:20], "Front Door")
	copy(reply[20:36], "  Back Door  ")
	link := &fakeLink{}
	link.respond = func([]byte) []byte { return encodePayload(t, reply) }
	s, _, labels := newTestSession(t, link, Config{})

	s.readLabels()

	// 8 zones, 4 users, 2 partitions, 2 outputs
	assert.Len(t, link.sent(), 4+2+1+1)
	snap := s.store.Snapshot()
	assert.Equal(t, "Front Door", snap.Zones[0].Label)
	assert.Equal(t, "Back Door", snap.Zones[1].Label)
	assert.Equal(t, "Front Door", snap.Partitions[0].Label)
	assert.Equal(t, "Back Door", snap.Outputs[1].Label)
	assert.Equal(t, "Back Door", labels.saved["user4"])
}

func TestReadLabelsAbsentKeepsPrior(t *testing.T) {
	reply := make([]byte, protocol.PayloadSize)
	reply[0] = 0x52
	link := &fakeLink{}
	link.respond = func([]byte) []byte { return encodePayload(t, reply) }
	s, _, labels := newTestSession(t, link, Config{})

	s.readLabels()
	assert.Equal(t, "Zone 1", s.store.Snapshot().Zones[0].Label)
	assert.Empty(t, labels.saved)
}

func TestOutputPulse(t *testing.T) {
	link := &fakeLink{}
	s, _, _ := newTestSession(t, link, Config{})

	require.NoError(t, s.store.SetOutput(1, state.OutputPulse, true))

	s.pulseOutputs()
	o, _ := s.store.Output(1)
	assert.True(t, o.On)
	assert.True(t, o.Pulse)

	s.pulseOutputs()
	o, _ = s.store.Output(1)
	assert.False(t, o.On)
	assert.True(t, o.Pulse)

	on, _ := protocol.ModelMG5050.Info().Registers.ControlOutput(1, true)
	off, _ := protocol.ModelMG5050.Info().Registers.ControlOutput(1, false)
	assert.Equal(t, [][]byte{on, off}, link.sent())

	// an explicit on stops the pulse
	require.NoError(t, s.Submit(Command{Kind: state.KindOutput, ID: 1, Property: "on", Value: "true"}))
	s.drainCommands()
	o, _ = s.store.Output(1)
	assert.True(t, o.On)
	assert.False(t, o.Pulse)
}

func TestPulseOffSwitchesOutputOff(t *testing.T) {
	link := &fakeLink{}
	s, _, _ := newTestSession(t, link, Config{})
	require.NoError(t, s.Submit(Command{Kind: state.KindOutput, ID: 2, Property: "pulse", Value: "true"}))
	s.drainCommands()
	o, _ := s.store.Output(2)
	assert.True(t, o.Pulse)
	assert.Empty(t, link.sent())

	require.NoError(t, s.Submit(Command{Kind: state.KindOutput, ID: 2, Property: "pulse", Value: "false"}))
	s.drainCommands()
	o, _ = s.store.Output(2)
	assert.False(t, o.Pulse)
	assert.False(t, o.On)
	assert.Len(t, link.sent(), 1)
}

func TestSubmitArmAndBypass(t *testing.T) {
	link := &fakeLink{}
	s, _, _ := newTestSession(t, link, Config{})

	require.NoError(t, s.Submit(Command{Kind: state.KindPartition, ID: 2, Property: "armstatehass", Value: "armed_night"}))
	require.NoError(t, s.Submit(Command{Kind: state.KindZone, ID: 3, Property: "bypass", Value: "false"}))
	s.drainCommands()

	arm, err := protocol.ModelMG5050.Info().Registers.ControlAlarm(2, protocol.ArmSleep)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{arm, protocol.Bypass(3)}, link.sent())
}

func TestSubmitRejectsInvalid(t *testing.T) {
	link := &fakeLink{}
	s, _, _ := newTestSession(t, link, Config{})
	err := s.Submit(Command{Kind: state.KindZone, ID: 9, Property: "bypass", Value: "true"})
	assert.ErrorIs(t, err, ErrInvalidCommand)
	s.drainCommands()
	assert.Empty(t, link.sent())
}

func TestSubmitQueueFull(t *testing.T) {
	s, _, _ := newTestSession(t, &fakeLink{}, Config{QueueSize: 1})
	c := Command{Kind: state.KindZone, ID: 1, Property: "bypass", Value: "true"}
	require.NoError(t, s.Submit(c))
	assert.Error(t, s.Submit(c))
}

func TestStepSchedule(t *testing.T) {
	link := &fakeLink{respond: panelSim(t)}
	s, events, _ := newTestSession(t, link, Config{})
	ctx := context.Background()

	s.step(ctx)
	assert.Equal(t, StateConnected, s.State())
	assert.Len(t, events.ofType(state.EventInit), 1)
	assert.Len(t, events.ofType(state.EventSnapshot), 1)
	first := len(link.sent())
	assert.Greater(t, first, 7+8, "login, labels and keep-alive ran")

	// nothing is due on the next tick at the same instant
	s.step(ctx)
	assert.Len(t, link.sent(), first)
	assert.Len(t, events.ofType(state.EventSnapshot), 1)

	s.RequestInit()
	s.step(ctx)
	assert.Len(t, events.ofType(state.EventInit), 2)
}

func TestStepDispatchesBufferedFrame(t *testing.T) {
	link := &fakeLink{respond: panelSim(t)}
	s, _, _ := newTestSession(t, link, Config{})
	s.step(context.Background())

	link.push(encodePayload(t, livePayload(1, 5, 1, protocol.LabelZone, "")))
	s.step(context.Background())
	z, _ := s.store.Zone(5)
	require.NotNil(t, z.Open)
	assert.True(t, *z.Open)
}

func TestStepReloginWhenPanelDropsSession(t *testing.T) {
	link := &fakeLink{respond: panelSim(t)}
	s, events, _ := newTestSession(t, link, Config{})
	ctx := context.Background()
	s.step(ctx)
	require.Equal(t, StateConnected, s.State())

	// live event without the software-connected flag
	p := livePayload(99, 0, 1, protocol.LabelZone, "")
	p[0] = 0xE0
	link.push(encodePayload(t, p))
	link.reset()
	s.step(ctx)

	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, protocol.StartCommunication(), link.sent()[0])
	states := events.ofType(state.EventConnection)
	var names []string
	for _, e := range states {
		names = append(names, e.Data.(state.ConnectionState).State)
	}
	assert.Equal(t, []string{StateLoggingIn, StateConnected, StateDisconnected, StateLoggingIn, StateConnected}, names)
}

func TestRunStopsOnCancel(t *testing.T) {
	link := &fakeLink{respond: panelSim(t)}
	s, _, _ := newTestSession(t, link, Config{Tick: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
