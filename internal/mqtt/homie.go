//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"paradox-go-home/internal/protocol"
	"paradox-go-home/internal/state"
)

const (
	homieVersion        = "4.0.0"
	homieImplementation = "paradox_mqtt"
)

// Homie datatypes.
const (
	typeBoolean = "boolean"
	typeInteger = "integer"
	typeFloat   = "float"
	typeString  = "string"
	typeEnum    = "enum"
)

// message is one MQTT publication.
type message struct {
	Topic   string
	Payload []byte
}

// property describes one Homie property.
type property struct {
	ID       string
	Name     string
	Datatype string
	Format   string
	Unit     string
	Settable bool
}

// node describes one Homie node.
type node struct {
	ID         string
	Name       string
	Kind       state.Kind
	Number     int
	Properties []property
}

func (n node) propertyIDs() string {
	ids := make([]string, len(n.Properties))
	for i, p := range n.Properties {
		ids[i] = p.ID
	}
	return strings.Join(ids, ",")
}

var panelProperties = map[state.PanelProperty]property{
	state.PanelID:                 {Name: "Panel ID", Datatype: typeInteger},
	state.PanelName:               {Name: "Panel Name", Datatype: typeString},
	state.FirmwareVersion:         {Name: "Firmware Version", Datatype: typeInteger},
	state.FirmwareRevision:        {Name: "Firmware Revision", Datatype: typeInteger},
	state.FirmwareBuild:           {Name: "Firmware Build", Datatype: typeInteger},
	state.ProgrammedIDA:           {Name: "Programmed Panel ID A", Datatype: typeInteger},
	state.ProgrammedIDB:           {Name: "Programmed Panel ID B", Datatype: typeInteger},
	state.ProgrammedID1:           {Name: "Programmed Panel ID 1", Datatype: typeInteger},
	state.ProgrammedID2:           {Name: "Programmed Panel ID 2", Datatype: typeInteger},
	state.ProgrammedID3:           {Name: "Programmed Panel ID 3", Datatype: typeInteger},
	state.ProgrammedID4:           {Name: "Programmed Panel ID 4", Datatype: typeInteger},
	state.PanelTime:               {Name: "Panel Time", Datatype: typeString},
	state.MessageTime:             {Name: "Message Time", Datatype: typeString},
	state.SoftwareDirectConnected: {Name: "Software Direct Connected", Datatype: typeBoolean},
	state.SoftwareConnected:       {Name: "Software Connected", Datatype: typeBoolean},
	state.PanelAlarm:              {Name: "Alarm", Datatype: typeBoolean},
	state.EventReporting:          {Name: "Event Reporting", Datatype: typeBoolean},
	state.Bell:                    {Name: "Bell", Datatype: typeBoolean},
	state.InputDCVoltage:          {Name: "Input DC Voltage", Datatype: typeFloat, Unit: "v"},
	state.PowerSupplyDCVoltage:    {Name: "Power Supply DC Voltage", Datatype: typeFloat, Unit: "v"},
	state.BatteryDCVoltage:        {Name: "Battery DC Voltage", Datatype: typeFloat, Unit: "v"},
}

var partitionProperties = []property{
	{ID: state.PartitionAlarm.String(), Name: "Alarm", Datatype: typeBoolean},
	{ID: state.PartitionArmed.String(), Name: "Armed", Datatype: typeBoolean, Settable: true},
	{ID: state.PartitionArmState.String(), Name: "Arm State", Datatype: typeInteger, Format: "0:3", Settable: true},
	{ID: state.PartitionArmStateText.String(), Name: "Arm State Text", Datatype: typeString, Settable: true},
	{ID: state.PartitionArmStateHASS.String(), Name: "Arm State Home Assistant", Datatype: typeEnum,
		Format: "disarmed,armed_home,armed_night,armed_away,triggered", Settable: true},
}

var outputProperties = []property{
	{ID: state.OutputOn.String(), Name: "On", Datatype: typeBoolean, Settable: true},
	{ID: state.OutputPulse.String(), Name: "Pulse", Datatype: typeBoolean, Settable: true},
	{ID: state.OutputTamper.String(), Name: "Tamper", Datatype: typeBoolean},
	{ID: state.OutputSupervisionTrouble.String(), Name: "Supervision Trouble", Datatype: typeBoolean},
}

var zonePropertyNames = map[state.ZoneProperty]string{
	state.ZoneOpen:               "Open",
	state.ZoneBypass:             "Bypass",
	state.ZoneAlarm:              "Alarm",
	state.ZoneFireAlarm:          "Fire Alarm",
	state.ZoneShutdown:           "Shutdown",
	state.ZoneTamper:             "Tamper",
	state.ZoneLowBattery:         "Low Battery",
	state.ZoneSupervisionTrouble: "Supervision Trouble",
}

var lastZoneEventProperties = []property{
	{ID: "zone", Name: "Zone", Datatype: typeString},
	{ID: "label", Name: "Zone Name", Datatype: typeString},
	{ID: "property", Name: "Zone Property", Datatype: typeString},
	{ID: "state", Name: "Zone Property State", Datatype: typeBoolean},
	{ID: "time", Name: "Event Time", Datatype: typeString},
}

func troubleProperties(defs []protocol.TroubleDef) []property {
	out := make([]property, len(defs))
	for i, d := range defs {
		out[i] = property{ID: d.MachineLabel, Name: d.Name, Datatype: typeBoolean}
	}
	return out
}

// nodes returns the Homie topology for a snapshot, in $nodes order.
func nodes(snap state.Snapshot) []node {
	var out []node

	panel := node{ID: state.NodeID(state.KindPanel, 0), Name: "Panel", Kind: state.KindPanel}
	for _, p := range state.PanelProperties() {
		prop := panelProperties[p]
		prop.ID = p.String()
		panel.Properties = append(panel.Properties, prop)
	}
	out = append(out,
		panel,
		node{ID: state.NodeID(state.KindTrouble, 0), Name: "Trouble Indicators", Kind: state.KindTrouble,
			Properties: troubleProperties(protocol.Troubles)},
		node{ID: state.NodeID(state.KindModuleTrouble, 0), Name: "Module Trouble Indicators", Kind: state.KindModuleTrouble,
			Properties: troubleProperties(protocol.ModuleTroubles)},
	)

	for _, p := range snap.Partitions {
		out = append(out, node{ID: state.NodeID(state.KindPartition, p.Number), Name: p.Label,
			Kind: state.KindPartition, Number: p.Number, Properties: partitionProperties})
	}
	for _, o := range snap.Outputs {
		out = append(out, node{ID: state.NodeID(state.KindOutput, o.Number), Name: o.Label,
			Kind: state.KindOutput, Number: o.Number, Properties: outputProperties})
	}
	zoneProps := make([]property, 0, len(zonePropertyNames))
	for _, p := range state.ZoneProperties() {
		zoneProps = append(zoneProps, property{
			ID:       p.String(),
			Name:     zonePropertyNames[p],
			Datatype: typeBoolean,
			Settable: p == state.ZoneBypass,
		})
	}
	for _, z := range snap.Zones {
		out = append(out, node{ID: state.NodeID(state.KindZone, z.Number), Name: z.Label,
			Kind: state.KindZone, Number: z.Number, Properties: zoneProps})
	}
	out = append(out, node{ID: state.NodeID(state.KindLastZoneEvent, 0), Name: "Last Zone Event",
		Kind: state.KindLastZoneEvent, Properties: lastZoneEventProperties})
	return out
}

// formatValue renders a property value in the Homie payload format.
func formatValue(v interface{}) (string, bool) {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case string:
		return x, true
	case time.Time:
		return x.Format(time.RFC3339), true
	case protocol.ArmMode:
		return strconv.Itoa(int(x)), true
	}
	return "", false
}

// topics builds topic names under one Homie device.
type topics struct {
	base   string
	device string
}

func (t topics) attr(name string) string {
	return t.base + "/" + t.device + "/" + name
}

func (t topics) node(nodeID, attr string) string {
	return t.base + "/" + t.device + "/" + nodeID + "/" + attr
}

func (t topics) property(nodeID, propID string) string {
	return t.node(nodeID, propID)
}

func (t topics) propertyAttr(nodeID, propID, attr string) string {
	return t.node(nodeID, propID) + "/" + attr
}

func (t topics) state() string { return t.attr("$state") }

// setFilter is the subscription for inbound property commands.
func (t topics) setFilter() string {
	return t.base + "/" + t.device + "/+/+/set"
}

func msg(topic, payload string) message {
	return message{Topic: topic, Payload: []byte(payload)}
}

// deviceMessages announces the device attributes. $state is published
// as "init"; the caller closes the sequence with "ready".
func (t topics) deviceMessages(name string, all []node) []message {
	ids := make([]string, len(all))
	for i, n := range all {
		ids[i] = n.ID
	}
	return []message{
		msg(t.attr("$homie"), homieVersion),
		msg(t.attr("$name"), name),
		msg(t.state(), "init"),
		msg(t.attr("$nodes"), strings.Join(ids, ",")),
		msg(t.attr("$extensions"), ""),
		msg(t.attr("$implementation"), homieImplementation),
	}
}

// nodeMessages announces one node and its properties.
func (t topics) nodeMessages(n node) []message {
	out := []message{
		msg(t.node(n.ID, "$name"), n.Name),
		msg(t.node(n.ID, "$properties"), n.propertyIDs()),
	}
	for _, p := range n.Properties {
		out = append(out,
			msg(t.propertyAttr(n.ID, p.ID, "$name"), p.Name),
			msg(t.propertyAttr(n.ID, p.ID, "$datatype"), p.Datatype),
		)
		if p.Format != "" {
			out = append(out, msg(t.propertyAttr(n.ID, p.ID, "$format"), p.Format))
		}
		out = append(out,
			msg(t.propertyAttr(n.ID, p.ID, "$settable"), strconv.FormatBool(p.Settable)),
			msg(t.propertyAttr(n.ID, p.ID, "$retained"), "true"),
		)
		if p.Unit != "" {
			out = append(out, msg(t.propertyAttr(n.ID, p.ID, "$unit"), p.Unit))
		}
	}
	return out
}

func (t topics) value(nodeID, propID string, v interface{}) (message, bool) {
	s, ok := formatValue(v)
	if !ok {
		return message{}, false
	}
	return msg(t.property(nodeID, propID), s), true
}

// valueMessages publishes every known value of a snapshot. Unknown values
// (no identity yet, no panel clock, zone open state never reported) are skipped.
func (t topics) valueMessages(snap state.Snapshot) []message {
	var out []message
	add := func(nodeID, propID string, v interface{}) {
		if m, ok := t.value(nodeID, propID, v); ok {
			out = append(out, m)
		}
	}

	panel := state.NodeID(state.KindPanel, 0)
	p := snap.Panel
	if id := p.Identity; id != nil {
		add(panel, state.PanelID.String(), id.ID)
		if id.Name != "" {
			add(panel, state.PanelName.String(), id.Name)
		}
		add(panel, state.FirmwareVersion.String(), id.FirmwareVersion)
		add(panel, state.FirmwareRevision.String(), id.FirmwareRevision)
		add(panel, state.FirmwareBuild.String(), id.FirmwareBuild)
		add(panel, state.ProgrammedIDA.String(), id.ProgrammedIDA)
		add(panel, state.ProgrammedIDB.String(), id.ProgrammedIDB)
		for i, prop := range []state.PanelProperty{state.ProgrammedID1, state.ProgrammedID2, state.ProgrammedID3, state.ProgrammedID4} {
			add(panel, prop.String(), id.ProgrammedIDs[i])
		}
	}
	if p.PanelTime != nil {
		add(panel, state.PanelTime.String(), *p.PanelTime)
	}
	if p.MessageTime != nil {
		add(panel, state.MessageTime.String(), *p.MessageTime)
	}
	add(panel, state.SoftwareDirectConnected.String(), p.Flags.SoftwareDirectConnected)
	add(panel, state.SoftwareConnected.String(), p.Flags.SoftwareConnected)
	add(panel, state.PanelAlarm.String(), p.Flags.Alarm)
	add(panel, state.EventReporting.String(), p.Flags.EventReporting)
	add(panel, state.Bell.String(), p.Bell)
	if v := p.Voltages; v != nil {
		add(panel, state.InputDCVoltage.String(), v.InputDC)
		add(panel, state.PowerSupplyDCVoltage.String(), v.PowerSupplyDC)
		add(panel, state.BatteryDCVoltage.String(), v.BatteryDC)
	}

	for _, tr := range snap.Troubles {
		add(state.NodeID(state.KindTrouble, 0), tr.MachineLabel, tr.Status)
	}
	for _, tr := range snap.ModuleTroubles {
		add(state.NodeID(state.KindModuleTrouble, 0), tr.MachineLabel, tr.Status)
	}

	for _, part := range snap.Partitions {
		id := state.NodeID(state.KindPartition, part.Number)
		add(id, state.PartitionAlarm.String(), part.Alarm)
		if part.Armed != nil {
			add(id, state.PartitionArmed.String(), *part.Armed)
		}
		if part.ArmState != nil {
			add(id, state.PartitionArmState.String(), *part.ArmState)
		}
		if part.ArmStateText != "" {
			add(id, state.PartitionArmStateText.String(), part.ArmStateText)
		}
		if part.ArmStateHASS != "" {
			add(id, state.PartitionArmStateHASS.String(), part.ArmStateHASS)
		}
	}
	for _, o := range snap.Outputs {
		id := state.NodeID(state.KindOutput, o.Number)
		for _, prop := range state.OutputProperties() {
			add(id, prop.String(), o.Flag(prop))
		}
	}
	for _, z := range snap.Zones {
		id := state.NodeID(state.KindZone, z.Number)
		for _, prop := range state.ZoneProperties() {
			if v, known := z.Flag(prop); known {
				add(id, prop.String(), v)
			}
		}
	}
	return out
}

// lastZoneEventMessages publishes the five lastzoneevent properties.
func (t topics) lastZoneEventMessages(e state.LastZoneEvent) []message {
	id := state.NodeID(state.KindLastZoneEvent, 0)
	var out []message
	for _, kv := range []struct {
		prop  string
		value interface{}
	}{
		{"zone", e.Node},
		{"label", e.Label},
		{"property", e.Property},
		{"state", e.State},
		{"time", e.Time},
	} {
		if m, ok := t.value(id, kv.prop, kv.value); ok {
			out = append(out, m)
		}
	}
	return out
}

// changeMessages maps one store change to its publications. A label
// change renames the node.
func (t topics) changeMessages(c state.Change) []message {
	if c.Kind == state.KindLastZoneEvent {
		if e, ok := c.Value.(state.LastZoneEvent); ok {
			return t.lastZoneEventMessages(e)
		}
		return nil
	}
	if c.Property == "label" {
		label, _ := c.Value.(string)
		return []message{msg(t.node(c.Node, "$name"), label)}
	}
	if m, ok := t.value(c.Node, c.Property, c.Value); ok {
		return []message{m}
	}
	return nil
}

// parseSetTopic extracts the node and property from
// <base>/<device>/<node>/<property>/set.
func (t topics) parseSetTopic(topic string) (nodeID, propID string, err error) {
	prefix := t.base + "/" + t.device + "/"
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return "", "", fmt.Errorf("topic %q outside device %s", topic, prefix)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "set" || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed set topic %q", topic)
	}
	return parts[0], parts[1], nil
}
