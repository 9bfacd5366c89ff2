// Package metrics exposes Prometheus collectors for the serial link and panel state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "paradox"

var FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "link",
	Name:      "frames_received_total",
	Help:      "Checksum-valid frames received from the panel.",
})

var FramesSent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "link",
	Name:      "frames_sent_total",
	Help:      "Frames written to the panel.",
})

var FrameErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "link",
	Name:      "frame_errors_total",
	Help:      "Discarded frames by reason.",
}, []string{"reason"})

var ReplyRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "link",
	Name:      "reply_retries_total",
	Help:      "Command retransmissions after a reply timeout.",
})

var ReplyTimeouts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "link",
	Name:      "reply_timeouts_total",
	Help:      "Commands that got no reply after all attempts.",
})

var Logins = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "session",
	Name:      "logins_total",
	Help:      "Login attempts by result.",
}, []string{"result"})

var Connected = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "session",
	Name:      "connected",
	Help:      "1 while the software session is logged in.",
})

var Commands = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "session",
	Name:      "commands_total",
	Help:      "External commands by kind and result.",
}, []string{"kind", "result"})

var Voltage = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "panel",
	Name:      "voltage",
	Help:      "Last decoded supply voltage.",
}, []string{"supply"})

var OpenZones = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "panel",
	Name:      "open_zones",
	Help:      "Number of zones reported open.",
})

var PartitionArmState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "panel",
	Name:      "partition_arm_state",
	Help:      "Numeric arm state per partition (0 disarmed, 1 stay, 2 sleep, 3 away).",
}, []string{"partition"})

var Alarm = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "panel",
	Name:      "alarm",
	Help:      "1 while the panel alarm flag is set.",
})

var WSClients = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "web",
	Name:      "ws_clients",
	Help:      "Connected websocket clients.",
})

var MQTTPublished = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "mqtt",
	Name:      "messages_published_total",
	Help:      "Messages handed to the MQTT client.",
})

var MQTTDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "mqtt",
	Name:      "messages_dropped_total",
	Help:      "Messages dropped because the publish queue was full.",
})
