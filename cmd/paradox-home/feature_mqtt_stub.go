//go:build no_mqtt

package main

import (
	"context"
	"log/slog"

	"paradox-go-home/internal/panel"
	"paradox-go-home/internal/state"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ context.Context, _ *panel.Session, _ *state.Store, _ *state.EventBus, _ *Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
