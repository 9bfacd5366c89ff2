//go:build !no_mqtt

package main

import (
	"context"
	"log/slog"

	mqttbridge "paradox-go-home/internal/mqtt"

	"paradox-go-home/internal/panel"
	"paradox-go-home/internal/state"
)

type mqttStopper struct {
	bridge *mqttbridge.Bridge
}

func (m *mqttStopper) Stop() {
	if m.bridge != nil {
		m.bridge.Stop()
	}
}

func initMQTT(ctx context.Context, sess *panel.Session, st *state.Store, bus *state.EventBus, cfg *Config, logger *slog.Logger) *mqttStopper {
	if !*cfg.MQTT.Enabled {
		return &mqttStopper{}
	}
	bridge, err := mqttbridge.NewBridge(ctx, mqttbridge.Config{
		Broker:         cfg.MQTT.Broker,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		ClientID:       cfg.MQTT.ClientID,
		BaseTopic:      cfg.Homie.BaseTopic,
		DeviceID:       cfg.Homie.DeviceID,
		DeviceName:     cfg.Homie.DeviceName,
		QoS:            byte(*cfg.Homie.QoS),
		Retain:         *cfg.Homie.Retain,
		Model:          cfg.Panel.Model,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		HASS: mqttbridge.HASSConfig{
			Enabled:             *cfg.HASS.Enabled,
			BaseTopic:           cfg.HASS.BaseTopic,
			DeviceID:            cfg.HASS.DeviceID,
			AlarmCode:           cfg.HASS.AlarmCode,
			CodeArmRequired:     cfg.HASS.CodeArmRequired,
			CodeDisarmRequired:  cfg.HASS.CodeDisarmRequired,
			CodeTriggerRequired: cfg.HASS.CodeTriggerRequired,
		},
	}, st, bus, sess, logger)
	if err != nil {
		logger.Error("mqtt bridge", "err", err)
		return &mqttStopper{}
	}
	bridge.Start()
	return &mqttStopper{bridge: bridge}
}
