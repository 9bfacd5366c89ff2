package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"paradox-go-home/internal/panel"
	"paradox-go-home/internal/protocol"
)

// Config is the YAML configuration. Every key can be overridden from the
// environment with a PARADOX_ prefix, e.g. PARADOX_SERIAL_PORT.
type Config struct {
	Serial struct {
		Port        string        `yaml:"port" env:"PORT"`
		Baud        int           `yaml:"baud" env:"BAUD"`
		OpenTimeout time.Duration `yaml:"open_timeout" env:"OPEN_TIMEOUT"`
	} `yaml:"serial" envPrefix:"SERIAL_"`
	Panel struct {
		Model        string        `yaml:"model" env:"MODEL"`
		Zones        int           `yaml:"zones" env:"ZONES"`
		Users        int           `yaml:"users" env:"USERS"`
		Outputs      int           `yaml:"outputs" env:"OUTPUTS"`
		KeepAlive    time.Duration `yaml:"keep_alive" env:"KEEP_ALIVE"`
		ReadLabels   time.Duration `yaml:"read_labels" env:"READ_LABELS"`
		OutputPulse  time.Duration `yaml:"output_pulse" env:"OUTPUT_PULSE"`
		TimeDiff     time.Duration `yaml:"time_diff" env:"TIME_DIFF"`
		ReplyTimeout time.Duration `yaml:"reply_timeout" env:"REPLY_TIMEOUT"`
		MaxTries     int           `yaml:"max_tries" env:"MAX_TRIES"`
	} `yaml:"panel" envPrefix:"PANEL_"`
	MQTT struct {
		Enabled        *bool         `yaml:"enabled" env:"ENABLED"`
		Broker         string        `yaml:"broker" env:"BROKER"`
		Username       string        `yaml:"username" env:"USERNAME"`
		Password       string        `yaml:"password" env:"PASSWORD"`
		ClientID       string        `yaml:"client_id" env:"CLIENT_ID"`
		ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	} `yaml:"mqtt" envPrefix:"MQTT_"`
	Homie struct {
		BaseTopic    string        `yaml:"base_topic" env:"BASE_TOPIC"`
		DeviceID     string        `yaml:"device_id" env:"DEVICE_ID"`
		DeviceName   string        `yaml:"device_name" env:"DEVICE_NAME"`
		QoS          *int          `yaml:"qos" env:"QOS"`
		Retain       *bool         `yaml:"retain" env:"RETAIN"`
		InitInterval time.Duration `yaml:"init_interval" env:"INIT_INTERVAL"`
		PublishAll   time.Duration `yaml:"publish_all" env:"PUBLISH_ALL"`
	} `yaml:"homie" envPrefix:"HOMIE_"`
	HASS struct {
		Enabled             *bool  `yaml:"enabled" env:"ENABLED"`
		BaseTopic           string `yaml:"base_topic" env:"BASE_TOPIC"`
		DeviceID            string `yaml:"device_id" env:"DEVICE_ID"`
		AlarmCode           string `yaml:"alarm_code" env:"ALARM_CODE"`
		CodeArmRequired     bool   `yaml:"code_arm_required" env:"CODE_ARM_REQUIRED"`
		CodeDisarmRequired  bool   `yaml:"code_disarm_required" env:"CODE_DISARM_REQUIRED"`
		CodeTriggerRequired bool   `yaml:"code_trigger_required" env:"CODE_TRIGGER_REQUIRED"`
	} `yaml:"hass" envPrefix:"HASS_"`
	Web struct {
		Listen         string   `yaml:"listen" env:"LISTEN"`
		APIKey         string   `yaml:"api_key" env:"API_KEY"`
		AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	} `yaml:"web" envPrefix:"WEB_"`
	Store struct {
		Path string `yaml:"path" env:"PATH"`
	} `yaml:"store" envPrefix:"STORE_"`
	Telegram struct {
		BotToken string   `yaml:"bot_token" env:"BOT_TOKEN"`
		ChatIDs  []string `yaml:"chat_ids" env:"CHAT_IDS"`
		APIBase  string   `yaml:"api_base" env:"API_BASE"`
	} `yaml:"telegram" envPrefix:"TELEGRAM_"`
	Log struct {
		Level  string `yaml:"level" env:"LEVEL"`
		Format string `yaml:"format" env:"FORMAT"`
	} `yaml:"log" envPrefix:"LOG_"`
	ScriptsDir string `yaml:"scripts_dir" env:"SCRIPTS_DIR"`
}

const envPrefix = "PARADOX_"

// loadConfig reads path (a missing file is allowed), applies defaults and
// then environment overrides. The result is not validated.
func loadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg.applyDefaults()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

func (c *Config) applyDefaults() {
	if c.Serial.Port == "" {
		c.Serial.Port = "/dev/ttyUSB0"
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = 9600
	}
	if c.Serial.OpenTimeout == 0 {
		c.Serial.OpenTimeout = time.Minute
	}

	if c.Panel.Model == "" {
		c.Panel.Model = "MG5050"
	}
	if c.Panel.Zones == 0 {
		c.Panel.Zones = 32
	}
	if c.Panel.Users == 0 {
		c.Panel.Users = 32
	}
	if c.Panel.Outputs == 0 {
		c.Panel.Outputs = 16
	}
	if c.Panel.KeepAlive == 0 {
		c.Panel.KeepAlive = 9 * time.Second
	}
	if c.Panel.ReadLabels == 0 {
		c.Panel.ReadLabels = 15 * time.Minute
	}
	if c.Panel.OutputPulse == 0 {
		c.Panel.OutputPulse = time.Second
	}
	if c.Panel.TimeDiff < panel.MinTimeDiff {
		c.Panel.TimeDiff = panel.MinTimeDiff
	}
	if c.Panel.ReplyTimeout == 0 {
		c.Panel.ReplyTimeout = time.Second
	}
	if c.Panel.MaxTries == 0 {
		c.Panel.MaxTries = 3
	}

	if c.MQTT.Enabled == nil {
		c.MQTT.Enabled = boolPtr(true)
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "paradox_mqtt"
	}
	if c.MQTT.ConnectTimeout == 0 {
		c.MQTT.ConnectTimeout = time.Minute
	}

	if c.Homie.BaseTopic == "" {
		c.Homie.BaseTopic = "homie"
	}
	if c.Homie.DeviceID == "" {
		c.Homie.DeviceID = "alarm"
	}
	if c.Homie.DeviceName == "" {
		c.Homie.DeviceName = "Alarm"
	}
	if c.Homie.QoS == nil {
		c.Homie.QoS = intPtr(1)
	}
	if c.Homie.Retain == nil {
		c.Homie.Retain = boolPtr(true)
	}
	if c.Homie.InitInterval == 0 {
		c.Homie.InitInterval = 24 * time.Hour
	}
	if c.Homie.PublishAll == 0 {
		c.Homie.PublishAll = time.Minute
	}

	if c.HASS.Enabled == nil {
		c.HASS.Enabled = boolPtr(true)
	}
	if c.HASS.BaseTopic == "" {
		c.HASS.BaseTopic = "homeassistant"
	}
	if c.HASS.DeviceID == "" {
		c.HASS.DeviceID = "paradox"
	}
	if c.HASS.AlarmCode == "" {
		c.HASS.AlarmCode = "0000"
	}

	if c.Web.Listen == "" {
		c.Web.Listen = "127.0.0.1:8080"
	}
	if c.Store.Path == "" {
		c.Store.Path = "paradox-home.db"
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = "scripts"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Serial.Port == "" {
		errs = append(errs, errors.New("serial.port is required"))
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud))
	}
	if _, err := protocol.ParseModel(c.Panel.Model); err != nil {
		errs = append(errs, fmt.Errorf("panel.model: %w", err))
	}
	if c.Panel.Zones < 1 || c.Panel.Zones > 192 || c.Panel.Zones%2 != 0 {
		errs = append(errs, fmt.Errorf("panel.zones must be an even number in 1..192, got %d", c.Panel.Zones))
	}
	if c.Panel.Users < 1 || c.Panel.Users > 255 {
		errs = append(errs, fmt.Errorf("panel.users must be 1..255, got %d", c.Panel.Users))
	}
	if c.Panel.Outputs < 1 || c.Panel.Outputs > 32 {
		errs = append(errs, fmt.Errorf("panel.outputs must be 1..32, got %d", c.Panel.Outputs))
	}
	for name, d := range map[string]time.Duration{
		"panel.keep_alive":    c.Panel.KeepAlive,
		"panel.read_labels":   c.Panel.ReadLabels,
		"panel.output_pulse":  c.Panel.OutputPulse,
		"panel.reply_timeout": c.Panel.ReplyTimeout,
		"homie.init_interval": c.Homie.InitInterval,
		"homie.publish_all":   c.Homie.PublishAll,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Panel.MaxTries < 1 {
		errs = append(errs, fmt.Errorf("panel.max_tries must be at least 1, got %d", c.Panel.MaxTries))
	}
	if q := *c.Homie.QoS; q < 0 || q > 2 {
		errs = append(errs, fmt.Errorf("homie.qos must be 0..2, got %d", q))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text, json or pretty, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
