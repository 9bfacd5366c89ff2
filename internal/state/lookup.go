package state

// Value returns one property of a snapshot entity, as published on the
// node property of the same name. ok is false for unknown entities,
// unknown properties and values not yet reported.
func (s Snapshot) Value(kind Kind, id int, property string) (value interface{}, ok bool) {
	switch kind {
	case KindPanel:
		return s.panelValue(property)
	case KindPartition:
		if id < 1 || id > len(s.Partitions) {
			return nil, false
		}
		p := s.Partitions[id-1]
		switch property {
		case "label":
			return p.Label, true
		case PartitionAlarm.String():
			return p.Alarm, true
		case PartitionArmed.String():
			if p.Armed == nil {
				return nil, false
			}
			return *p.Armed, true
		case PartitionArmState.String():
			if p.ArmState == nil {
				return nil, false
			}
			return int(*p.ArmState), true
		case PartitionArmStateText.String():
			return p.ArmStateText, p.ArmStateText != ""
		case PartitionArmStateHASS.String():
			return p.ArmStateHASS, p.ArmStateHASS != ""
		}
	case KindZone:
		if id < 1 || id > len(s.Zones) {
			return nil, false
		}
		z := s.Zones[id-1]
		if property == "label" {
			return z.Label, true
		}
		for _, p := range ZoneProperties() {
			if p.String() == property {
				v, known := z.Flag(p)
				if !known {
					return nil, false
				}
				return v, true
			}
		}
	case KindOutput:
		if id < 1 || id > len(s.Outputs) {
			return nil, false
		}
		o := s.Outputs[id-1]
		if property == "label" {
			return o.Label, true
		}
		for _, p := range OutputProperties() {
			if p.String() == property {
				return o.Flag(p), true
			}
		}
	case KindUser:
		if id >= 1 && id <= len(s.Users) && property == "label" {
			return s.Users[id-1].Label, true
		}
	case KindTrouble:
		return troubleValue(s.Troubles, property)
	case KindModuleTrouble:
		return troubleValue(s.ModuleTroubles, property)
	case KindLastZoneEvent:
		e := s.LastZoneEvent
		if e == nil {
			return nil, false
		}
		switch property {
		case "zone":
			return e.Node, true
		case "label":
			return e.Label, true
		case "property":
			return e.Property, true
		case "state":
			return e.State, true
		case "time":
			return e.Time, true
		}
	}
	return nil, false
}

func troubleValue(table []TroubleIndicator, property string) (interface{}, bool) {
	for _, t := range table {
		if t.MachineLabel == property {
			return t.Status, true
		}
	}
	return nil, false
}

func (s Snapshot) panelValue(property string) (interface{}, bool) {
	p := s.Panel
	switch property {
	case PanelTime.String():
		if p.PanelTime == nil {
			return nil, false
		}
		return *p.PanelTime, true
	case MessageTime.String():
		if p.MessageTime == nil {
			return nil, false
		}
		return *p.MessageTime, true
	case SoftwareDirectConnected.String():
		return p.Flags.SoftwareDirectConnected, true
	case SoftwareConnected.String():
		return p.Flags.SoftwareConnected, true
	case PanelAlarm.String():
		return p.Flags.Alarm, true
	case EventReporting.String():
		return p.Flags.EventReporting, true
	case Bell.String():
		return p.Bell, true
	}
	if v := p.Voltages; v != nil {
		switch property {
		case InputDCVoltage.String():
			return v.InputDC, true
		case PowerSupplyDCVoltage.String():
			return v.PowerSupplyDC, true
		case BatteryDCVoltage.String():
			return v.BatteryDC, true
		}
	}
	if id := p.Identity; id != nil {
		switch property {
		case PanelID.String():
			return id.ID, true
		case PanelName.String():
			return id.Name, id.Name != ""
		case FirmwareVersion.String():
			return id.FirmwareVersion, true
		case FirmwareRevision.String():
			return id.FirmwareRevision, true
		case FirmwareBuild.String():
			return id.FirmwareBuild, true
		case ProgrammedIDA.String():
			return id.ProgrammedIDA, true
		case ProgrammedIDB.String():
			return id.ProgrammedIDB, true
		case ProgrammedID1.String():
			return id.ProgrammedIDs[0], true
		case ProgrammedID2.String():
			return id.ProgrammedIDs[1], true
		case ProgrammedID3.String():
			return id.ProgrammedIDs[2], true
		case ProgrammedID4.String():
			return id.ProgrammedIDs[3], true
		}
	}
	return nil, false
}

// Config returns the entity counts the snapshot was taken with.
func (s Snapshot) Config() Config {
	return Config{Zones: len(s.Zones), Users: len(s.Users), Outputs: len(s.Outputs)}
}
