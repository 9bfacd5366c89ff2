package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"paradox-go-home/internal/state"
)

func change(kind state.Kind, id int, prop string, v interface{}) state.Event {
	return state.Event{Type: state.EventChange, Data: state.Change{Kind: kind, ID: id, Property: prop, Value: v}}
}

func TestObserverOpenZones(t *testing.T) {
	o := NewObserver()
	o.Handle(change(state.KindZone, 1, "open", true))
	o.Handle(change(state.KindZone, 3, "open", true))
	o.Handle(change(state.KindZone, 3, "bypass", true))
	assert.Equal(t, 2.0, testutil.ToFloat64(OpenZones))

	o.Handle(change(state.KindZone, 1, "open", false))
	assert.Equal(t, 1.0, testutil.ToFloat64(OpenZones))
}

func TestObserverPanelGauges(t *testing.T) {
	o := NewObserver()
	o.Handle(change(state.KindPanel, 0, "inputdcvoltage", 20.3))
	o.Handle(change(state.KindPanel, 0, "alarm", true))
	o.Handle(change(state.KindPartition, 2, "armstate", 3))
	o.Handle(state.Event{Type: state.EventConnection, Data: state.ConnectionState{State: "connected"}})

	assert.Equal(t, 20.3, testutil.ToFloat64(Voltage.WithLabelValues("inputdcvoltage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(Alarm))
	assert.Equal(t, 3.0, testutil.ToFloat64(PartitionArmState.WithLabelValues("2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(Connected))
}
