//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"paradox-go-home/internal/metrics"
	"paradox-go-home/internal/panel"
	"paradox-go-home/internal/state"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker   string
	Username string
	Password string
	ClientID string

	BaseTopic  string
	DeviceID   string
	DeviceName string
	QoS        byte
	Retain     bool

	// Model names the panel in HA until the panel reports its identity.
	Model string
	// ConnectTimeout bounds the initial connect retries. Zero retries forever.
	ConnectTimeout time.Duration

	HASS HASSConfig
}

// Commander accepts inbound property commands.
type Commander interface {
	Submit(panel.Command) error
}

// Source provides the current model for announcements.
type Source interface {
	Snapshot() state.Snapshot
}

// Subscriber delivers state events.
type Subscriber interface {
	OnAll(handler state.EventHandler) func()
}

// Bridge publishes the alarm model as a Homie 4.0 device with optional
// Home Assistant discovery, and routes .../set messages to the panel.
type Bridge struct {
	client pahomqtt.Client
	cfg    Config
	topics topics
	source Source
	bus    Subscriber
	cmds   Commander
	logger *slog.Logger
	unsub  func()

	// out is the publish sink; the MQTT client outside tests. Only the
	// worker calls it, and Stop once the worker is gone.
	out func(message)

	// queue decouples bus handlers from the client. Full means drop.
	queue    chan message
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	// announceMu keeps init sequences from interleaving.
	announceMu sync.Mutex
}

// queueSize holds several full announcements of the largest supported panel.
const queueSize = 16384

func newBridge(cfg Config, source Source, bus Subscriber, cmds Commander, logger *slog.Logger) *Bridge {
	b := &Bridge{
		cfg:     cfg,
		topics:  topics{base: cfg.BaseTopic, device: cfg.DeviceID},
		source:  source,
		bus:     bus,
		cmds:    cmds,
		logger:  logger.With("component", "mqtt"),
		queue:   make(chan message, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	b.out = b.publishMQTT
	return b
}

// run owns the sink. On stop it drains what is already queued.
func (b *Bridge) run() {
	defer close(b.stopped)
	for {
		select {
		case m := <-b.queue:
			b.out(m)
		case <-b.done:
			for {
				select {
				case m := <-b.queue:
					b.out(m)
				default:
					return
				}
			}
		}
	}
}

// NewBridge creates and connects an MQTT bridge. The device is announced on
// every (re)connect.
func NewBridge(ctx context.Context, cfg Config, source Source, bus Subscriber, cmds Commander, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(cfg, source, bus, cmds, logger)

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(b.topics.state(), "lost", cfg.QoS, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected", "broker", cfg.Broker)
			b.subscribeCommands()
			b.announce(b.source.Snapshot())
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	go b.run()

	connect := func() error {
		token := client.Connect()
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("mqtt connect timeout")
		}
		return token.Error()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = cfg.ConnectTimeout
	err := backoff.RetryNotify(connect, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		b.logger.Warn("MQTT connect failed, retrying", "broker", cfg.Broker, "err", err, "retry_in", d)
	})
	if err != nil {
		b.halt()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// Start subscribes to state events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.bus.OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "base_topic", b.cfg.BaseTopic, "device", b.cfg.DeviceID)
}

// Stop unsubscribes, flushes the queue, marks the device lost and
// disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.halt()
	b.out(msg(b.topics.state(), "lost"))
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// halt stops the worker and waits for it to finish the queue.
func (b *Bridge) halt() {
	b.stopOnce.Do(func() { close(b.done) })
	<-b.stopped
}

func (b *Bridge) handleEvent(event state.Event) {
	switch event.Type {
	case state.EventChange:
		c, ok := event.Data.(state.Change)
		if !ok {
			return
		}
		b.publishAll(b.topics.changeMessages(c))
		if c.Property == "label" && b.cfg.HASS.Enabled {
			b.republishNode(c.Node)
		}
	case state.EventSnapshot:
		if snap, ok := event.Data.(state.Snapshot); ok {
			b.publishAll(b.topics.valueMessages(snap))
		}
	case state.EventInit:
		if snap, ok := event.Data.(state.Snapshot); ok {
			b.announce(snap)
		}
	case state.EventConnection:
		if cs, ok := event.Data.(state.ConnectionState); ok {
			b.logger.Debug("panel session state", "state", cs.State)
		}
	}
}

func (b *Bridge) discovery(snap state.Snapshot) discovery {
	d := discovery{cfg: b.cfg.HASS, topics: b.topics, model: b.cfg.Model}
	if id := snap.Panel.Identity; id != nil {
		if id.Name != "" {
			d.model = id.Name
		}
		d.firmware = fmt.Sprintf("%d.%d.%d", id.FirmwareVersion, id.FirmwareRevision, id.FirmwareBuild)
	}
	return d
}

// announce publishes the full Homie device description, the HA discovery
// configs and the current values, bracketed by $state init/ready.
func (b *Bridge) announce(snap state.Snapshot) {
	b.announceMu.Lock()
	defer b.announceMu.Unlock()

	all := nodes(snap)
	b.publishAll(b.topics.deviceMessages(b.cfg.DeviceName, all))
	d := b.discovery(snap)
	for _, n := range all {
		b.publishAll(b.topics.nodeMessages(n))
		if b.cfg.HASS.Enabled {
			b.publishAll(d.nodeConfigs(n))
		}
	}
	b.publishAll(b.topics.valueMessages(snap))
	if snap.LastZoneEvent != nil {
		b.publishAll(b.topics.lastZoneEventMessages(*snap.LastZoneEvent))
	}
	b.publish(msg(b.topics.state(), "ready"))
	b.logger.Info("homie device announced", "nodes", len(all), "hass", b.cfg.HASS.Enabled)
}

// republishNode refreshes the HA configs of a renamed node.
func (b *Bridge) republishNode(nodeID string) {
	snap := b.source.Snapshot()
	d := b.discovery(snap)
	for _, n := range nodes(snap) {
		if n.ID == nodeID {
			b.publishAll(d.nodeConfigs(n))
			return
		}
	}
}

func (b *Bridge) subscribeCommands() {
	filter := b.topics.setFilter()
	token := b.client.Subscribe(filter, b.cfg.QoS, func(_ pahomqtt.Client, m pahomqtt.Message) {
		b.handleSet(m.Topic(), m.Payload())
	})
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT subscribe timeout", "topic", filter)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT subscribe error", "topic", filter, "err", err)
		}
	}()
}

// handleSet turns <base>/<device>/<node>/<property>/set into a panel command.
func (b *Bridge) handleSet(topic string, payload []byte) {
	b.logger.Info("set message", "topic", topic, "payload", string(payload))
	nodeID, propID, err := b.topics.parseSetTopic(topic)
	if err != nil {
		b.logger.Warn("ignoring set message", "err", err)
		return
	}
	kind, n, ok := state.ParseNodeID(nodeID)
	if !ok {
		b.logger.Warn("set message for unknown node", "node", nodeID)
		return
	}
	cmd := panel.Command{Kind: kind, ID: n, Property: propID, Value: string(payload)}
	if err := b.cmds.Submit(cmd); err != nil {
		b.logger.Warn("command rejected", "command", cmd.String(), "err", err)
	}
}

func (b *Bridge) publishAll(msgs []message) {
	for _, m := range msgs {
		b.publish(m)
	}
}

// publish queues m without blocking the caller, usually the bus and
// therefore the panel session.
func (b *Bridge) publish(m message) {
	select {
	case b.queue <- m:
	default:
		metrics.MQTTDropped.Inc()
		b.logger.Warn("mqtt publish queue full, dropping message", "topic", m.Topic)
	}
}

func (b *Bridge) publishMQTT(m message) {
	metrics.MQTTPublished.Inc()
	token := b.client.Publish(m.Topic, b.cfg.QoS, b.cfg.Retain, m.Payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", m.Topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", m.Topic, "err", err)
		}
	}()
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
