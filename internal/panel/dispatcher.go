package panel

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"paradox-go-home/internal/metrics"
	"paradox-go-home/internal/protocol"
	"paradox-go-home/internal/state"
)

// MinTimeDiff is the smallest clock skew that triggers a set-time.
const MinTimeDiff = 2 * time.Minute

// Dispatcher applies validated frames to the entity store.
type Dispatcher struct {
	store    *state.Store
	link     Link
	sender   Sender
	labels   LabelStore
	model    protocol.Model
	events   protocol.EventMap
	timeDiff time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// DispatcherConfig holds the dispatcher dependencies.
type DispatcherConfig struct {
	Store  *state.Store
	Link   Link
	Sender Sender
	Model  protocol.Model
	// Labels persists labels carried by live events. May be nil.
	Labels LabelStore
	// TimeDiff is clamped to MinTimeDiff.
	TimeDiff time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		store:    cfg.Store,
		link:     cfg.Link,
		sender:   cfg.Sender,
		labels:   cfg.Labels,
		model:    cfg.Model,
		events:   cfg.Model.Info().Events,
		timeDiff: cfg.TimeDiff,
		now:      cfg.Now,
		logger:   cfg.Logger.With("component", "dispatcher"),
	}
	if d.timeDiff < MinTimeDiff {
		d.timeDiff = MinTimeDiff
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Process validates one raw frame and applies it.
func (d *Dispatcher) Process(frame []byte) {
	payload, err := protocol.Decode(frame)
	if err != nil {
		reason := "checksum"
		if errors.Is(err, protocol.ErrBadLength) {
			reason = "length"
		}
		metrics.FrameErrors.WithLabelValues(reason).Inc()
		d.logger.Warn("discarding frame, flushing input", "err", err, "frame", fmt.Sprintf("%X", frame))
		d.flush()
		return
	}
	metrics.FramesReceived.Inc()
	d.store.SetMessageTime(d.now())

	class, flags := protocol.Header(payload)
	if class != protocol.ClassNoFlags {
		d.store.SetFlags(flags)
	}
	switch class {
	case protocol.ClassStartComm:
		id := protocol.ParseStartComm(payload)
		if m, ok := protocol.ModelFor(id.PanelID); ok && m != d.model {
			d.logger.Warn("panel reports a different model than configured", "reported", m.String(), "configured", d.model.String())
		}
		d.store.SetIdentity(id)
	case protocol.ClassInitComm:
		d.logger.Debug("panel acknowledged initialize communication")
	case protocol.ClassSetTime:
		d.logger.Info("panel date and time updated")
	case protocol.ClassAction:
		d.action(payload)
	case protocol.ClassStatus:
		d.status(payload)
	case protocol.ClassError:
		d.logger.Error("panel sent an error message or disconnected")
	case protocol.ClassLiveEvent:
		d.liveEvent(protocol.ParseLiveEvent(payload))
	default:
		metrics.FrameErrors.WithLabelValues("class").Inc()
		d.logger.Error("could not process message", "class", class.String(), "frame", fmt.Sprintf("%X", frame))
		d.flush()
	}
}

func (d *Dispatcher) flush() {
	if err := d.link.FlushInput(); err != nil {
		d.logger.Error("flush input failed", "err", err)
	}
}

func (d *Dispatcher) action(p []byte) {
	if p[2] != protocol.ActionBypass {
		d.logger.Error("unknown action response", "action", p[2])
		return
	}
	zone := int(p[3]) + 1
	d.logger.Debug("bypass acknowledged", "zone", zone)
	d.rejected(d.store.ToggleZone(zone, state.ZoneBypass), "bypass", "zone", zone)
}

// rejected records a frame the store refused, usually one naming an entity
// beyond the configured counts.
func (d *Dispatcher) rejected(err error, frame string, args ...any) {
	if err == nil {
		return
	}
	metrics.FrameErrors.WithLabelValues("range").Inc()
	d.logger.Warn("frame not applied", append([]any{"frame", frame, "err", err}, args...)...)
}

func (d *Dispatcher) status(p []byte) {
	switch {
	case p[2] == protocol.StatusRAMRead:
		d.statusSequence(p[3], p)
	case p[2] == protocol.StatusFinalMarker && p[3] == protocol.StatusFinalSub:
		d.logger.Debug("final keep-alive response")
	default:
		d.logger.Error("can't process keep-alive response", "payload", fmt.Sprintf("%X", p))
	}
}

func (d *Dispatcher) statusSequence(seq byte, p []byte) {
	var errs []error
	switch seq {
	case 0:
		st := protocol.ParsePanelStatus(p)
		d.store.SetPanelTime(st.Time, st.TimeValid)
		d.checkTime(st.Time, st.TimeValid)
		d.store.SetVoltages(state.Voltages{InputDC: st.InputDC, PowerSupplyDC: st.PowerDC, BatteryDC: st.BatteryDC})
		zones := d.store.Config().Zones
		if zones > protocol.MaxStatusZones {
			zones = protocol.MaxStatusZones
		}
		for i := 0; i < zones; i++ {
			errs = append(errs, d.store.SetZone(i+1, state.ZoneOpen, st.OpenZones[i]))
		}
	case 1:
		for i, mode := range protocol.ParsePartitionStatus(p) {
			errs = append(errs, d.store.SetArmMode(i+1, mode))
		}
	case 2:
		for i, bypass := range protocol.ParseBypassStatus(p, d.store.Config().Zones) {
			errs = append(errs, d.store.SetZone(i+1, state.ZoneBypass, bypass))
		}
	case 3, 4, 5, 6:
	default:
		d.logger.Error("invalid status sequence on keep-alive", "sequence", seq)
	}
	d.rejected(errors.Join(errs...), "status", "sequence", seq)
}

// checkTime issues a set-time when the panel clock is unknown or skewed.
func (d *Dispatcher) checkTime(panel time.Time, ok bool) {
	now := d.now()
	diff := d.timeDiff
	if ok {
		diff = now.Sub(panel)
		if diff < 0 {
			diff = -diff
		}
	}
	if diff < d.timeDiff {
		d.logger.Debug("panel clock close enough", "skew", diff.Round(time.Second))
		return
	}
	d.logger.Info("panel clock out, updating", "skew", diff.Round(time.Second), "known", ok)
	if err := d.sender.SendMessage(protocol.SetTime(now)); err != nil {
		d.logger.Error("set time failed", "err", err)
	}
}
