package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.validate())

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, "MG5050", cfg.Panel.Model)
	assert.Equal(t, 32, cfg.Panel.Zones)
	assert.Equal(t, 16, cfg.Panel.Outputs)
	assert.Equal(t, 9*time.Second, cfg.Panel.KeepAlive)
	assert.Equal(t, 2*time.Minute, cfg.Panel.TimeDiff)
	assert.True(t, *cfg.MQTT.Enabled)
	assert.Equal(t, "paradox_mqtt", cfg.MQTT.ClientID)
	assert.Equal(t, 1, *cfg.Homie.QoS)
	assert.True(t, *cfg.Homie.Retain)
	assert.Equal(t, time.Minute, cfg.Homie.PublishAll)
	assert.True(t, *cfg.HASS.Enabled)
	assert.Equal(t, "0000", cfg.HASS.AlarmCode)
	assert.Equal(t, "127.0.0.1:8080", cfg.Web.Listen)
	assert.Equal(t, "paradox-home.db", cfg.Store.Path)
	assert.Equal(t, "scripts", cfg.ScriptsDir)
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyS3
panel:
  model: sp6000
  zones: 16
  keep_alive: 5s
  time_diff: 30s
mqtt:
  enabled: false
homie:
  qos: 0
  retain: false
hass:
  enabled: false
web:
  allowed_origins: ["http://a", "http://b"]
`)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.validate())

	assert.Equal(t, "/dev/ttyS3", cfg.Serial.Port)
	assert.Equal(t, 16, cfg.Panel.Zones)
	assert.Equal(t, 5*time.Second, cfg.Panel.KeepAlive)
	// Clamped to the minimum skew.
	assert.Equal(t, 2*time.Minute, cfg.Panel.TimeDiff)
	assert.False(t, *cfg.MQTT.Enabled)
	assert.Equal(t, 0, *cfg.Homie.QoS)
	assert.False(t, *cfg.Homie.Retain)
	assert.False(t, *cfg.HASS.Enabled)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Web.AllowedOrigins)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "serial:\n  port: /dev/ttyS3\npanel:\n  zones: 16\n")
	t.Setenv("PARADOX_SERIAL_PORT", "/dev/ttyAMA0")
	t.Setenv("PARADOX_PANEL_ZONES", "48")
	t.Setenv("PARADOX_MQTT_ENABLED", "false")
	t.Setenv("PARADOX_HOMIE_QOS", "2")
	t.Setenv("PARADOX_WEB_API_KEY", "secret")
	t.Setenv("PARADOX_TELEGRAM_CHAT_IDS", "1,2")
	t.Setenv("PARADOX_PANEL_READ_LABELS", "1h")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.validate())

	assert.Equal(t, "/dev/ttyAMA0", cfg.Serial.Port)
	assert.Equal(t, 48, cfg.Panel.Zones)
	assert.False(t, *cfg.MQTT.Enabled)
	assert.Equal(t, 2, *cfg.Homie.QoS)
	assert.Equal(t, "secret", cfg.Web.APIKey)
	assert.Equal(t, []string{"1", "2"}, cfg.Telegram.ChatIDs)
	assert.Equal(t, time.Hour, cfg.Panel.ReadLabels)
}

func TestLoadConfigBadYAML(t *testing.T) {
	_, err := loadConfig(writeConfig(t, "serial: [unterminated"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty port", func(c *Config) { c.Serial.Port = "" }, "serial.port"},
		{"unknown model", func(c *Config) { c.Panel.Model = "EVO192" }, "panel.model"},
		{"odd zones", func(c *Config) { c.Panel.Zones = 31 }, "panel.zones"},
		{"too many zones", func(c *Config) { c.Panel.Zones = 194 }, "panel.zones"},
		{"zero users", func(c *Config) { c.Panel.Users = 0 }, "panel.users"},
		{"too many outputs", func(c *Config) { c.Panel.Outputs = 33 }, "panel.outputs"},
		{"negative interval", func(c *Config) { c.Panel.KeepAlive = -time.Second }, "panel.keep_alive"},
		{"zero publish", func(c *Config) { c.Homie.PublishAll = 0 }, "homie.publish_all"},
		{"bad qos", func(c *Config) { c.Homie.QoS = intPtr(3) }, "homie.qos"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.applyDefaults()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
