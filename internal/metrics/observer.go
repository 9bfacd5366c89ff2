package metrics

import (
	"strconv"
	"sync"

	"paradox-go-home/internal/state"
)

// Observer mirrors state changes into the panel gauges.
type Observer struct {
	mu   sync.Mutex
	open map[int]bool
}

func NewObserver() *Observer {
	return &Observer{open: make(map[int]bool)}
}

// Handle is a state.EventHandler.
func (o *Observer) Handle(ev state.Event) {
	switch ev.Type {
	case state.EventConnection:
		cs, ok := ev.Data.(state.ConnectionState)
		if !ok {
			return
		}
		Connected.Set(boolGauge(cs.State == "connected"))
	case state.EventChange:
		c, ok := ev.Data.(state.Change)
		if !ok {
			return
		}
		o.change(c)
	}
}

func (o *Observer) change(c state.Change) {
	switch c.Kind {
	case state.KindPanel:
		switch c.Property {
		case state.InputDCVoltage.String(), state.PowerSupplyDCVoltage.String(), state.BatteryDCVoltage.String():
			if v, ok := c.Value.(float64); ok {
				Voltage.WithLabelValues(c.Property).Set(v)
			}
		case state.PanelAlarm.String():
			if v, ok := c.Value.(bool); ok {
				Alarm.Set(boolGauge(v))
			}
		}
	case state.KindPartition:
		if c.Property == state.PartitionArmState.String() {
			if v, ok := c.Value.(int); ok {
				PartitionArmState.WithLabelValues(strconv.Itoa(c.ID)).Set(float64(v))
			}
		}
	case state.KindZone:
		if c.Property != state.ZoneOpen.String() {
			return
		}
		v, ok := c.Value.(bool)
		if !ok {
			return
		}
		o.mu.Lock()
		if v {
			o.open[c.ID] = true
		} else {
			delete(o.open, c.ID)
		}
		n := len(o.open)
		o.mu.Unlock()
		OpenZones.Set(float64(n))
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
