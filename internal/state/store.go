// Package state holds the in-memory entity model of the alarm panel.
//
// Every setter is edge-triggered: a change event is emitted only when the new
// value differs from the stored one (or the stored value is still unknown).
// Events are emitted after the store lock is released so handlers may read
// the store.
package state

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"paradox-go-home/internal/protocol"
)

// ErrOutOfRange is returned for entity numbers outside the configured counts.
var ErrOutOfRange = errors.New("entity number out of range")

// Config sets the entity counts.
type Config struct {
	Zones   int
	Users   int
	Outputs int
}

// Store is the single owner of entity state.
type Store struct {
	mu     sync.RWMutex
	cfg    Config
	events Emitter
	logger *slog.Logger
	now    func() time.Time

	panel          Panel
	partitions     []Partition // index 0 unused
	zones          []Zone      // index 0 unused
	outputs        []Output    // index 0 unused
	users          []User      // index 0 unused
	troubles       []TroubleIndicator
	moduleTroubles []TroubleIndicator
	troubleIdx     map[int]int
	moduleIdx      map[int]int
	lastZoneEvent  *LastZoneEvent

	pending []Change
}

// NewStore creates a store with default labels ("Zone 1", ...).
func NewStore(cfg Config, events Emitter, logger *slog.Logger) *Store {
	s := &Store{
		cfg:        cfg,
		events:     events,
		logger:     logger.With("component", "state"),
		now:        time.Now,
		partitions: make([]Partition, protocol.Partitions+1),
		zones:      make([]Zone, cfg.Zones+1),
		outputs:    make([]Output, cfg.Outputs+1),
		users:      make([]User, cfg.Users+1),
		troubleIdx: make(map[int]int),
		moduleIdx:  make(map[int]int),
	}
	for i := range s.partitions {
		s.partitions[i] = Partition{Number: i, Label: fmt.Sprintf("Partition %d", i)}
	}
	for i := range s.zones {
		s.zones[i] = Zone{Number: i, Label: fmt.Sprintf("Zone %d", i)}
	}
	for i := range s.outputs {
		s.outputs[i] = Output{Number: i, Label: fmt.Sprintf("Output %d", i)}
	}
	for i := range s.users {
		s.users[i] = User{Number: i, Label: fmt.Sprintf("User %d", i)}
	}
	for i, t := range protocol.Troubles {
		s.troubles = append(s.troubles, TroubleIndicator{Code: int(t.Code), MachineLabel: t.MachineLabel, Name: t.Name})
		s.troubleIdx[int(t.Code)] = i
	}
	for i, t := range protocol.ModuleTroubles {
		s.moduleTroubles = append(s.moduleTroubles, TroubleIndicator{Code: int(t.Code), MachineLabel: t.MachineLabel, Name: t.Name})
		s.moduleIdx[int(t.Code)] = i
	}
	return s
}

// SetClock replaces the time source used for change timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) Config() Config { return s.cfg }

// lock/unlock wrap every mutation; unlock flushes queued changes.
func (s *Store) lock() { s.mu.Lock() }

func (s *Store) unlock() {
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	if s.events == nil {
		return
	}
	for _, c := range pending {
		s.events.Emit(Event{Type: EventChange, Data: c})
	}
}

func (s *Store) queue(kind Kind, id int, property string, value interface{}) {
	s.pending = append(s.pending, Change{
		Kind:     kind,
		ID:       id,
		Node:     NodeID(kind, id),
		Property: property,
		Value:    value,
		Time:     s.now(),
	})
}

func (s *Store) queuePanel(p PanelProperty, value interface{}) {
	s.queue(KindPanel, 0, p.String(), value)
}

// SetIdentity applies a start-communication reply. Returns true if any field changed.
func (s *Store) SetIdentity(id protocol.PanelIdentity) bool {
	s.lock()
	defer s.unlock()

	next := Identity{
		ID:               int(id.PanelID),
		FirmwareVersion:  int(id.FirmwareVersion),
		FirmwareRevision: int(id.FirmwareRevision),
		FirmwareBuild:    int(id.FirmwareBuild),
		ProgrammedIDA:    int(id.ProgrammedIDA),
		ProgrammedIDB:    int(id.ProgrammedIDB),
	}
	cur := s.panel.Identity
	if cur != nil && cur.ID == next.ID && cur.FirmwareVersion == next.FirmwareVersion &&
		cur.FirmwareRevision == next.FirmwareRevision && cur.FirmwareBuild == next.FirmwareBuild &&
		cur.ProgrammedIDA == next.ProgrammedIDA && cur.ProgrammedIDB == next.ProgrammedIDB {
		return false
	}
	if cur != nil {
		next.Name = cur.Name
	}
	if name, ok := protocol.PanelName(id.PanelID); ok {
		next.Name = name
	} else {
		s.logger.Error("invalid panel id", "panelid", id.PanelID)
	}
	for i, v := range id.ProgrammedIDs() {
		next.ProgrammedIDs[i] = int(v)
	}
	s.panel.Identity = &next
	s.logger.Info("panel identified", "panelid", next.ID, "name", next.Name,
		"firmware", fmt.Sprintf("%d.%d.%d", next.FirmwareVersion, next.FirmwareRevision, next.FirmwareBuild))

	s.queuePanel(PanelID, next.ID)
	if next.Name != "" {
		s.queuePanel(PanelName, next.Name)
	}
	s.queuePanel(FirmwareVersion, next.FirmwareVersion)
	s.queuePanel(FirmwareRevision, next.FirmwareRevision)
	s.queuePanel(FirmwareBuild, next.FirmwareBuild)
	s.queuePanel(ProgrammedIDA, next.ProgrammedIDA)
	s.queuePanel(ProgrammedIDB, next.ProgrammedIDB)
	for i, p := range []PanelProperty{ProgrammedID1, ProgrammedID2, ProgrammedID3, ProgrammedID4} {
		s.queuePanel(p, next.ProgrammedIDs[i])
	}
	return true
}

// SetFlags applies the low-nibble flags. An alarm flag turning off clears
// the alarm flag of both partitions.
func (s *Store) SetFlags(f protocol.Flags) {
	s.lock()
	defer s.unlock()

	cur := &s.panel.Flags
	if cur.SoftwareDirectConnected != f.SoftwareDirectConnected {
		cur.SoftwareDirectConnected = f.SoftwareDirectConnected
		s.logger.Info("software direct connection", "connected", f.SoftwareDirectConnected)
		s.queuePanel(SoftwareDirectConnected, f.SoftwareDirectConnected)
	}
	s.setSoftwareConnected(f.SoftwareConnected)
	if cur.Alarm != f.Alarm {
		cur.Alarm = f.Alarm
		s.queuePanel(PanelAlarm, f.Alarm)
		if f.Alarm {
			s.logger.Warn("alarm activated")
		} else {
			s.logger.Info("alarm deactivated")
			for i := 1; i <= protocol.Partitions; i++ {
				s.setPartitionAlarm(i, false)
			}
		}
	}
	if cur.EventReporting != f.EventReporting {
		cur.EventReporting = f.EventReporting
		s.logger.Info("event reporting", "enabled", f.EventReporting)
		s.queuePanel(EventReporting, f.EventReporting)
	}
}

// SetSoftwareConnected sets the software-connected flag directly (after login).
func (s *Store) SetSoftwareConnected(v bool) {
	s.lock()
	defer s.unlock()
	s.setSoftwareConnected(v)
}

func (s *Store) setSoftwareConnected(v bool) {
	if s.panel.Flags.SoftwareConnected == v {
		return
	}
	s.panel.Flags.SoftwareConnected = v
	s.logger.Info("software connection", "connected", v)
	s.queuePanel(SoftwareConnected, v)
}

// SoftwareConnected reports whether the session is logged in.
func (s *Store) SoftwareConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.panel.Flags.SoftwareConnected
}

// SetPanelTime records the panel clock; ok=false clears it to unknown.
func (s *Store) SetPanelTime(t time.Time, ok bool) {
	s.lock()
	defer s.unlock()
	if !ok {
		s.panel.PanelTime = nil
		return
	}
	if s.panel.PanelTime != nil && s.panel.PanelTime.Equal(t) {
		return
	}
	s.panel.PanelTime = &t
	s.queuePanel(PanelTime, t)
}

// PanelTime returns the last decoded panel clock.
func (s *Store) PanelTime() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.panel.PanelTime == nil {
		return time.Time{}, false
	}
	return *s.panel.PanelTime, true
}

// SetMessageTime records the arrival of a valid frame.
func (s *Store) SetMessageTime(t time.Time) {
	s.lock()
	defer s.unlock()
	s.panel.MessageTime = &t
	s.queuePanel(MessageTime, t)
}

// SetVoltages stores the three supply readings.
func (s *Store) SetVoltages(v Voltages) {
	s.lock()
	defer s.unlock()
	old := s.panel.Voltages
	s.panel.Voltages = &v
	if old == nil || old.InputDC != v.InputDC {
		s.queuePanel(InputDCVoltage, v.InputDC)
	}
	if old == nil || old.PowerSupplyDC != v.PowerSupplyDC {
		s.queuePanel(PowerSupplyDCVoltage, v.PowerSupplyDC)
	}
	if old == nil || old.BatteryDC != v.BatteryDC {
		s.queuePanel(BatteryDCVoltage, v.BatteryDC)
	}
}

// SetBell sets the bell state.
func (s *Store) SetBell(on bool) {
	s.lock()
	defer s.unlock()
	s.setBell(on)
}

func (s *Store) setBell(on bool) {
	if s.panel.Bell == on {
		return
	}
	s.panel.Bell = on
	if on {
		s.logger.Warn("bell on")
	} else {
		s.logger.Warn("bell off")
	}
	s.queuePanel(Bell, on)
}

func (s *Store) checkPartition(n int) error {
	if n < 1 || n > protocol.Partitions {
		s.logger.Error("invalid partition number", "partition", n)
		return fmt.Errorf("partition %d: %w", n, ErrOutOfRange)
	}
	return nil
}

// SetPartitionAlarm sets a partition's alarm flag.
func (s *Store) SetPartitionAlarm(n int, v bool) error {
	if err := s.checkPartition(n); err != nil {
		return err
	}
	s.lock()
	defer s.unlock()
	s.setPartitionAlarm(n, v)
	return nil
}

func (s *Store) setPartitionAlarm(n int, v bool) {
	p := &s.partitions[n]
	if p.Alarm == v {
		return
	}
	p.Alarm = v
	s.logger.Info("partition update", "partition", n, "label", p.Label, "property", PartitionAlarm.String(), "value", v)
	s.queue(KindPartition, n, PartitionAlarm.String(), v)
}

// SetArmMode applies an arm mode tuple (armed, state, text, hass). A
// transition of the numeric state to disarmed runs ClearOnDisarm.
func (s *Store) SetArmMode(n int, mode protocol.ArmMode) error {
	if err := s.checkPartition(n); err != nil {
		return err
	}
	s.lock()
	defer s.unlock()

	p := &s.partitions[n]
	armed := mode.Armed()
	if p.Armed == nil || *p.Armed != armed {
		p.Armed = &armed
		s.logger.Info("partition update", "partition", n, "label", p.Label, "property", PartitionArmed.String(), "value", armed)
		s.queue(KindPartition, n, PartitionArmed.String(), armed)
	}
	disarmed := false
	if p.ArmState == nil || *p.ArmState != mode {
		m := mode
		p.ArmState = &m
		s.logger.Info("partition update", "partition", n, "label", p.Label, "property", PartitionArmState.String(), "value", int(mode))
		s.queue(KindPartition, n, PartitionArmState.String(), int(mode))
		disarmed = mode == protocol.Disarmed
	}
	if p.ArmStateText != mode.Text() {
		p.ArmStateText = mode.Text()
		s.queue(KindPartition, n, PartitionArmStateText.String(), p.ArmStateText)
	}
	s.setArmStateHASS(n, mode.HASS())
	if disarmed {
		s.clearOnDisarm()
	}
	return nil
}

// SetArmStateHASS sets only the Home Assistant state (used for "triggered").
func (s *Store) SetArmStateHASS(n int, v string) error {
	if err := s.checkPartition(n); err != nil {
		return err
	}
	s.lock()
	defer s.unlock()
	s.setArmStateHASS(n, v)
	return nil
}

func (s *Store) setArmStateHASS(n int, v string) {
	p := &s.partitions[n]
	if p.ArmStateHASS == v {
		return
	}
	p.ArmStateHASS = v
	s.logger.Info("partition update", "partition", n, "label", p.Label, "property", PartitionArmStateHASS.String(), "value", v)
	s.queue(KindPartition, n, PartitionArmStateHASS.String(), v)
}

// ClearOnDisarm turns the bell off and clears every zone bypass.
func (s *Store) ClearOnDisarm() {
	s.lock()
	defer s.unlock()
	s.clearOnDisarm()
}

func (s *Store) clearOnDisarm() {
	s.setBell(false)
	for i := 1; i <= s.cfg.Zones; i++ {
		s.setZone(i, ZoneBypass, false)
	}
}

func (s *Store) checkZone(n int) error {
	if n < 1 || n > s.cfg.Zones {
		s.logger.Error("invalid zone number", "zone", n)
		return fmt.Errorf("zone %d: %w", n, ErrOutOfRange)
	}
	return nil
}

// SetZone sets a zone flag.
func (s *Store) SetZone(n int, p ZoneProperty, v bool) error {
	if err := s.checkZone(n); err != nil {
		return err
	}
	s.lock()
	defer s.unlock()
	s.setZone(n, p, v)
	return nil
}

// ToggleZone inverts a zone flag. An unknown open flag toggles to true.
func (s *Store) ToggleZone(n int, p ZoneProperty) error {
	if err := s.checkZone(n); err != nil {
		return err
	}
	s.lock()
	defer s.unlock()
	cur, _ := s.zones[n].flag(p)
	s.setZone(n, p, !cur)
	return nil
}

func (s *Store) setZone(n int, p ZoneProperty, v bool) {
	z := &s.zones[n]
	if cur, known := z.flag(p); known && cur == v {
		return
	}
	z.setFlag(p, v)
	s.logger.Info("zone update", "zone", n, "label", z.Label, "property", p.String(), "value", v)
	s.queue(KindZone, n, p.String(), v)

	now := s.now()
	s.lastZoneEvent = &LastZoneEvent{
		Zone:     n,
		Node:     NodeID(KindZone, n),
		Label:    z.Label,
		Property: p.String(),
		State:    v,
		Time:     now,
	}
	s.queue(KindLastZoneEvent, 0, "event", *s.lastZoneEvent)
}

func (s *Store) checkOutput(n int) error {
	if n < 1 || n > s.cfg.Outputs {
		s.logger.Error("invalid output number", "output", n)
		return fmt.Errorf("output %d: %w", n, ErrOutOfRange)
	}
	return nil
}

// SetOutput sets an output flag.
func (s *Store) SetOutput(n int, p OutputProperty, v bool) error {
	if err := s.checkOutput(n); err != nil {
		return err
	}
	s.lock()
	defer s.unlock()
	o := &s.outputs[n]
	if o.flag(p) == v {
		return nil
	}
	o.setFlag(p, v)
	s.logger.Info("output update", "output", n, "label", o.Label, "property", p.String(), "value", v)
	s.queue(KindOutput, n, p.String(), v)
	return nil
}

// Output returns a copy of an output.
func (s *Store) Output(n int) (Output, error) {
	if n < 1 || n > s.cfg.Outputs {
		return Output{}, fmt.Errorf("output %d: %w", n, ErrOutOfRange)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputs[n], nil
}

// Zone returns a copy of a zone.
func (s *Store) Zone(n int) (Zone, error) {
	if n < 1 || n > s.cfg.Zones {
		return Zone{}, fmt.Errorf("zone %d: %w", n, ErrOutOfRange)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	z := s.zones[n]
	if z.Open != nil {
		open := *z.Open
		z.Open = &open
	}
	return z, nil
}

// Partition returns a copy of a partition.
func (s *Store) Partition(n int) (Partition, error) {
	if n < 1 || n > protocol.Partitions {
		return Partition{}, fmt.Errorf("partition %d: %w", n, ErrOutOfRange)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyPartition(s.partitions[n]), nil
}

// PulsingOutputs returns the numbers of outputs with pulse set.
func (s *Store) PulsingOutputs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for i := 1; i <= s.cfg.Outputs; i++ {
		if s.outputs[i].Pulse {
			out = append(out, i)
		}
	}
	return out
}

// SetLabel routes a label to the entity selected by the label type.
// For partition labels n is the partition number.
func (s *Store) SetLabel(kind protocol.LabelType, n int, label string) error {
	var (
		target *string
		k      Kind
	)
	s.lock()
	defer s.unlock()
	switch kind {
	case protocol.LabelZone:
		if n < 1 || n > s.cfg.Zones {
			return s.labelRangeErr("zone", n)
		}
		target, k = &s.zones[n].Label, KindZone
	case protocol.LabelUser:
		if n < 1 || n > s.cfg.Users {
			return s.labelRangeErr("user", n)
		}
		target, k = &s.users[n].Label, KindUser
	case protocol.LabelPartition:
		if n < 1 || n > protocol.Partitions {
			return s.labelRangeErr("partition", n)
		}
		target, k = &s.partitions[n].Label, KindPartition
	case protocol.LabelOutput:
		if n < 1 || n > s.cfg.Outputs {
			return s.labelRangeErr("output", n)
		}
		target, k = &s.outputs[n].Label, KindOutput
	default:
		return s.labelRangeErr(kind.String(), n)
	}
	if *target == label {
		return nil
	}
	*target = label
	s.logger.Info("label set", "kind", string(k), "number", n, "label", label)
	s.queue(k, n, "label", label)
	return nil
}

// Label returns the current label of an entity, false when n is out of
// range for kind.
func (s *Store) Label(kind protocol.LabelType, n int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case protocol.LabelZone:
		if n >= 1 && n <= s.cfg.Zones {
			return s.zones[n].Label, true
		}
	case protocol.LabelUser:
		if n >= 1 && n <= s.cfg.Users {
			return s.users[n].Label, true
		}
	case protocol.LabelPartition:
		if n >= 1 && n <= protocol.Partitions {
			return s.partitions[n].Label, true
		}
	case protocol.LabelOutput:
		if n >= 1 && n <= s.cfg.Outputs {
			return s.outputs[n].Label, true
		}
	}
	return "", false
}

func (s *Store) labelRangeErr(kind string, n int) error {
	s.logger.Error("invalid label target", "kind", kind, "number", n)
	return fmt.Errorf("%s label %d: %w", kind, n, ErrOutOfRange)
}

// SetTrouble sets a trouble indicator by code.
func (s *Store) SetTrouble(code int, v bool) error {
	return s.setTroubleIn(KindTrouble, s.troubles, s.troubleIdx, code, v)
}

// SetModuleTrouble sets a module trouble indicator by code.
func (s *Store) SetModuleTrouble(code int, v bool) error {
	return s.setTroubleIn(KindModuleTrouble, s.moduleTroubles, s.moduleIdx, code, v)
}

func (s *Store) setTroubleIn(kind Kind, table []TroubleIndicator, idx map[int]int, code int, v bool) error {
	i, ok := idx[code]
	if !ok {
		s.logger.Error("invalid trouble code", "kind", string(kind), "code", code)
		return fmt.Errorf("%s %d: %w", kind, code, ErrOutOfRange)
	}
	s.lock()
	defer s.unlock()
	t := &table[i]
	if t.Status == v {
		return nil
	}
	t.Status = v
	s.logger.Info("trouble update", "kind", string(kind), "code", code, "trouble", t.MachineLabel, "value", v)
	s.queue(kind, 0, t.MachineLabel, v)
	return nil
}

func copyPartition(p Partition) Partition {
	if p.Armed != nil {
		v := *p.Armed
		p.Armed = &v
	}
	if p.ArmState != nil {
		v := *p.ArmState
		p.ArmState = &v
	}
	return p
}

// Snapshot returns a deep copy of the model.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Panel:          s.panel,
		Partitions:     make([]Partition, 0, protocol.Partitions),
		Zones:          make([]Zone, 0, s.cfg.Zones),
		Outputs:        append([]Output(nil), s.outputs[1:]...),
		Users:          append([]User(nil), s.users[1:]...),
		Troubles:       append([]TroubleIndicator(nil), s.troubles...),
		ModuleTroubles: append([]TroubleIndicator(nil), s.moduleTroubles...),
		Time:           s.now(),
	}
	if p := s.panel.Identity; p != nil {
		id := *p
		snap.Panel.Identity = &id
	}
	if v := s.panel.Voltages; v != nil {
		vv := *v
		snap.Panel.Voltages = &vv
	}
	if t := s.panel.PanelTime; t != nil {
		tt := *t
		snap.Panel.PanelTime = &tt
	}
	if t := s.panel.MessageTime; t != nil {
		tt := *t
		snap.Panel.MessageTime = &tt
	}
	for _, p := range s.partitions[1:] {
		snap.Partitions = append(snap.Partitions, copyPartition(p))
	}
	for _, z := range s.zones[1:] {
		if z.Open != nil {
			open := *z.Open
			z.Open = &open
		}
		snap.Zones = append(snap.Zones, z)
	}
	if s.lastZoneEvent != nil {
		e := *s.lastZoneEvent
		snap.LastZoneEvent = &e
	}
	return snap
}
