package panel

import (
	"errors"

	"paradox-go-home/internal/protocol"
	"paradox-go-home/internal/state"
)

// Live event numbers with a state effect.
const (
	evZoneClosed          = 0
	evZoneOpen            = 1
	evPartitionStatus     = 2
	evBell                = 3
	evNonReportable       = 6
	evZoneBypass          = 35
	evZoneAlarm           = 36
	evZoneFireAlarm       = 37
	evZoneAlarmRestore    = 38
	evZoneFireRestore     = 39
	evZoneShutdown        = 41
	evZoneTamper          = 42
	evZoneTamperRestore   = 43
	evTrouble             = 44
	evTroubleRestore      = 45
	evModuleTrouble       = 46
	evModuleTroubleClear  = 47
	evZoneLowBattery      = 49
	evZoneBatteryRestore  = 50
	evZoneSupervision     = 51
	evZoneSupervisionOK   = 52
	evOutputSupervision   = 53
	evOutputSupervisionOK = 54
	evOutputTamper        = 55
	evOutputTamperRestore = 56
)

func (d *Dispatcher) liveEvent(ev protocol.LiveEvent) {
	if ev.HasLabel {
		d.routeLabel(ev)
	}

	name, sub := d.events.DescribeWith(ev.Event, ev.Subevent, d.subeventLabel)
	d.logger.Info("live event",
		"partition", ev.Partition,
		"event", name,
		"subevent", sub,
		"label", ev.Label,
	)
	d.logger.Debug("live event detail",
		"event", ev.Event,
		"subevent", ev.Subevent,
		"label_type", ev.LabelType.String(),
		"module_serial", ev.ModuleSerial,
		"time", ev.Time,
		"time_valid", ev.TimeValid,
	)

	var err error
	n := int(ev.Subevent)
	switch ev.Event {
	case evZoneClosed, evZoneOpen:
		err = d.store.SetZone(n, state.ZoneOpen, ev.Event == evZoneOpen)
	case evPartitionStatus:
		err = d.partitionStatus(ev.Partition, ev.Subevent)
	case evBell:
		if ev.Subevent <= 1 {
			d.store.SetBell(ev.Subevent == 1)
		}
	case evNonReportable:
		switch ev.Subevent {
		case 3:
			err = d.store.SetArmMode(ev.Partition, protocol.ArmStay)
		case 4:
			err = d.store.SetArmMode(ev.Partition, protocol.ArmSleep)
		}
	case evZoneBypass:
		err = d.store.ToggleZone(n, state.ZoneBypass)
	case evZoneAlarm, evZoneAlarmRestore:
		err = d.store.SetZone(n, state.ZoneAlarm, ev.Event == evZoneAlarm)
	case evZoneFireAlarm, evZoneFireRestore:
		err = d.store.SetZone(n, state.ZoneFireAlarm, ev.Event == evZoneFireAlarm)
	case evZoneShutdown:
		err = d.store.SetZone(n, state.ZoneShutdown, true)
	case evZoneTamper, evZoneTamperRestore:
		err = d.store.SetZone(n, state.ZoneTamper, ev.Event == evZoneTamper)
	case evTrouble, evTroubleRestore:
		err = d.store.SetTrouble(n, ev.Event == evTrouble)
	case evModuleTrouble, evModuleTroubleClear:
		err = d.store.SetModuleTrouble(n, ev.Event == evModuleTrouble)
	case evZoneLowBattery, evZoneBatteryRestore:
		err = d.store.SetZone(n, state.ZoneLowBattery, ev.Event == evZoneLowBattery)
	case evZoneSupervision, evZoneSupervisionOK:
		err = d.store.SetZone(n, state.ZoneSupervisionTrouble, ev.Event == evZoneSupervision)
	case evOutputSupervision, evOutputSupervisionOK:
		if n > 0 && n <= d.store.Config().Outputs {
			err = d.store.SetOutput(n, state.OutputSupervisionTrouble, ev.Event == evOutputSupervision)
		}
	case evOutputTamper, evOutputTamperRestore:
		if n > 0 && n <= d.store.Config().Outputs {
			err = d.store.SetOutput(n, state.OutputTamper, ev.Event == evOutputTamper)
		}
	default:
		d.logger.Debug("nothing to do for event", "event", ev.Event)
	}
	d.rejected(err, "live event", "event", name, "event_number", ev.Event, "subevent", ev.Subevent, "partition", ev.Partition)
}

func (d *Dispatcher) partitionStatus(partition int, sub byte) error {
	switch sub {
	case 2, 3, 4, 5, 6:
		return errors.Join(
			d.store.SetPartitionAlarm(partition, true),
			d.store.SetArmStateHASS(partition, "triggered"),
		)
	case 7:
		return d.store.SetPartitionAlarm(partition, false)
	case 11:
		err := errors.Join(
			d.store.SetArmMode(partition, protocol.Disarmed),
			d.store.SetPartitionAlarm(partition, false),
		)
		d.store.ClearOnDisarm()
		return err
	case 12:
		// Arming type arrives in a separate event.
	}
	return nil
}

// subeventLabel names the zone or user a numbered subevent refers to.
func (d *Dispatcher) subeventLabel(kind string, n int) (string, bool) {
	switch kind {
	case "zone":
		return d.store.Label(protocol.LabelZone, n)
	case "user":
		return d.store.Label(protocol.LabelUser, n)
	}
	return "", false
}

// routeLabel stores a label carried by a live event. Zone, user and output
// labels are numbered by the subevent, partition labels by the partition.
func (d *Dispatcher) routeLabel(ev protocol.LiveEvent) {
	n := int(ev.Subevent)
	switch ev.LabelType {
	case protocol.LabelZone, protocol.LabelUser:
		d.saveLabel(ev.LabelType, n, ev.Label)
	case protocol.LabelPartition:
		d.saveLabel(ev.LabelType, ev.Partition, ev.Label)
	case protocol.LabelOutput:
		if n > 0 && n <= d.store.Config().Outputs {
			d.saveLabel(ev.LabelType, n, ev.Label)
		}
	default:
		d.logger.Error("can't process label type", "label_type", ev.LabelType)
	}
}

// saveLabel applies a label to the store and persists it. Labels the store
// rejects are not persisted.
func (d *Dispatcher) saveLabel(kind protocol.LabelType, n int, label string) {
	if err := d.store.SetLabel(kind, n, label); err != nil {
		return
	}
	if d.labels == nil {
		return
	}
	if err := d.labels.SaveLabel(kind, n, label); err != nil {
		d.logger.Warn("persist label failed", "kind", kind.String(), "number", n, "err", err)
	}
}
