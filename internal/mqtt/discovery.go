//go:build !no_mqtt

package mqtt

import (
	"strconv"
	"strings"

	"paradox-go-home/internal/state"
)

// HASSConfig controls Home Assistant discovery.
type HASSConfig struct {
	Enabled             bool
	BaseTopic           string
	DeviceID            string
	AlarmCode           string
	CodeArmRequired     bool
	CodeDisarmRequired  bool
	CodeTriggerRequired bool
}

// haAvailability binds an entity to the Homie $state attribute.
type haAvailability struct {
	Topic               string `json:"topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers string `json:"identifiers"`
	Model       string `json:"model"`
	Name        string `json:"name"`
	SWVersion   string `json:"sw_version,omitempty"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Availability        haAvailability `json:"availability"`
	AvailabilityMode    string         `json:"availability_mode"`
	Device              haDevice       `json:"device"`
	Code                string         `json:"code,omitempty"`
	CodeArmRequired     bool           `json:"code_arm_required"`
	CodeDisarmRequired  bool           `json:"code_disarm_required"`
	CodeTriggerRequired bool           `json:"code_trigger_required"`

	Name              string   `json:"name"`
	ObjectID          string   `json:"object_id"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	Optimistic        *bool    `json:"optimistic,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	Min               string   `json:"min,omitempty"`
	Max               string   `json:"max,omitempty"`
	Options           []string `json:"options,omitempty"`

	PayloadArmAway  string `json:"payload_arm_away,omitempty"`
	PayloadArmNight string `json:"payload_arm_night,omitempty"`
	PayloadArmHome  string `json:"payload_arm_home,omitempty"`
	PayloadDisarm   string `json:"payload_disarm,omitempty"`
}

// discovery builds HA discovery configs for one Homie device.
type discovery struct {
	cfg    HASSConfig
	topics topics
	model  string
	// firmware is the sw_version reported on the device block.
	firmware string
}

func (d discovery) template() haDiscovery {
	return haDiscovery{
		Availability: haAvailability{
			Topic:               d.topics.state(),
			PayloadAvailable:    "ready",
			PayloadNotAvailable: "lost",
		},
		AvailabilityMode:    "latest",
		Device:              haDevice{Identifiers: d.cfg.DeviceID, Model: "Paradox " + d.model, Name: "Paradox " + d.model, SWVersion: d.firmware},
		Code:                d.cfg.AlarmCode,
		CodeArmRequired:     d.cfg.CodeArmRequired,
		CodeDisarmRequired:  d.cfg.CodeDisarmRequired,
		CodeTriggerRequired: d.cfg.CodeTriggerRequired,
	}
}

// component picks the HA entity type for a property.
func component(p property) string {
	switch p.Datatype {
	case typeBoolean:
		if p.Settable {
			return "switch"
		}
		return "binary_sensor"
	case typeInteger, typeFloat:
		if p.Settable {
			return "number"
		}
		return "sensor"
	case typeString:
		if p.Settable {
			return "text"
		}
		return "sensor"
	case typeEnum:
		opts := strings.Split(p.Format, ",")
		if len(opts) == 2 && contains(opts, "On") && contains(opts, "Off") {
			if p.Settable {
				return "switch"
			}
			return "binary_sensor"
		}
		if p.Settable {
			return "select"
		}
		return "sensor"
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// propertyConfig builds the discovery message of one property. ok is false
// for datatypes HA cannot represent.
func (d discovery) propertyConfig(n node, p property) (message, bool) {
	comp := component(p)
	if comp == "" {
		return message{}, false
	}
	uniqueID := d.topics.device + "_" + n.ID + "_" + p.ID
	cfg := d.template()
	cfg.Name = p.Name
	if n.Number > 0 && n.Name != "" {
		cfg.Name = n.Name + " " + p.Name
	}
	cfg.ObjectID = uniqueID
	cfg.UniqueID = uniqueID
	cfg.StateTopic = d.topics.property(n.ID, p.ID)

	switch p.Datatype {
	case typeBoolean:
		cfg.PayloadOn, cfg.PayloadOff = "true", "false"
	case typeInteger, typeFloat:
		cfg.UnitOfMeasurement = p.Unit
		if p.Settable {
			if lo, hi, found := strings.Cut(p.Format, ":"); found {
				cfg.Min, cfg.Max = lo, hi
			}
		}
	case typeEnum:
		if comp == "switch" || comp == "binary_sensor" {
			cfg.PayloadOn, cfg.PayloadOff = "On", "Off"
		} else if p.Settable {
			cfg.Options = strings.Split(p.Format, ",")
		}
	}
	if p.Settable {
		optimistic := false
		cfg.Optimistic = &optimistic
		cfg.CommandTopic = d.topics.propertyAttr(n.ID, p.ID, "set")
	}
	return message{
		Topic:   d.cfg.BaseTopic + "/" + comp + "/" + uniqueID + "/config",
		Payload: mustJSON(cfg),
	}, true
}

// alarmPanelConfig builds the alarm_control_panel bound to a partition's
// armstatehass property.
func (d discovery) alarmPanelConfig(partition int) message {
	nodeID := state.NodeID(state.KindPartition, partition)
	cfg := d.template()
	cfg.Name = "Alarm Partition " + strconv.Itoa(partition)
	cfg.ObjectID = "alarm_partition" + strconv.Itoa(partition)
	cfg.UniqueID = "alarmpartition" + strconv.Itoa(partition)
	cfg.StateTopic = d.topics.property(nodeID, "armstatehass")
	cfg.CommandTopic = d.topics.propertyAttr(nodeID, "armstatehass", "set")
	cfg.PayloadArmAway = "armed_away"
	cfg.PayloadArmNight = "armed_night"
	cfg.PayloadArmHome = "armed_home"
	cfg.PayloadDisarm = "disarmed"
	return message{
		Topic:   d.cfg.BaseTopic + "/alarm_control_panel/" + cfg.UniqueID + "/config",
		Payload: mustJSON(cfg),
	}
}

// nodeConfigs builds the discovery messages of one node.
func (d discovery) nodeConfigs(n node) []message {
	var out []message
	for _, p := range n.Properties {
		if m, ok := d.propertyConfig(n, p); ok {
			out = append(out, m)
		}
	}
	if n.Kind == state.KindPartition {
		out = append(out, d.alarmPanelConfig(n.Number))
	}
	return out
}
