// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the emulator configuration from YAML, a .env file and
// CN105_* environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/Thermoquad/cn105emu/pkg/emulator"
	"github.com/Thermoquad/cn105emu/pkg/heatpump"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given
const DefaultPath = "cn105emu.yaml"

// Engine types
const (
	EngineSim  = "sim"
	EngineMQTT = "mqtt"
)

// Config holds all emulator configuration
type Config struct {
	Link      LinkConfig        `yaml:"link"`
	Engine    EngineConfig      `yaml:"engine"`
	Reconcile ReconcileConfig   `yaml:"reconcile"`
	State     heatpump.Settings `yaml:"state"`
	Status    StatusConfig      `yaml:"status"`
	Log       LogConfig         `yaml:"log"`

	path string
}

// LinkConfig describes the connection to the wired remote
type LinkConfig struct {
	Port        string        `yaml:"port"`      // serial device, e.g. /dev/ttyUSB0
	Baud        int           `yaml:"baud"`      // CN105 runs at 2400
	DataBits    int           `yaml:"data_bits"` // 8
	Parity      string        `yaml:"parity"`    // "even", "odd" or "none"
	StopBits    int           `yaml:"stop_bits"` // 1 or 2
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WebSocket UART bridge, used instead of Port when set
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// EngineConfig selects and configures the external control engine
type EngineConfig struct {
	Type string     `yaml:"type"` // "sim" or "mqtt"
	Sim  SimConfig  `yaml:"sim"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

// SimConfig configures the in-memory engine
type SimConfig struct {
	Warmup     time.Duration `yaml:"warmup"`      // delay before the first report
	ApplyDelay time.Duration `yaml:"apply_delay"` // delay before wanted settings apply
}

// MQTTConfig configures the MQTT engine bridge
type MQTTConfig struct {
	Broker       string        `yaml:"broker"` // tcp://host:1883
	ClientID     string        `yaml:"client_id"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	TopicPrefix  string        `yaml:"topic_prefix"` // <prefix>/state, <prefix>/set
	QoS          byte          `yaml:"qos"`
	ApplyTimeout time.Duration `yaml:"apply_timeout"`
}

// ReconcileConfig holds the reconciliation timings
type ReconcileConfig struct {
	GracePeriod    time.Duration `yaml:"grace_period"`
	TakeoverWindow time.Duration `yaml:"takeover_window"`
	SyncInterval   time.Duration `yaml:"sync_interval"`
}

// Timings converts to the emulator's reconcile settings
func (r ReconcileConfig) Timings() emulator.ReconcileConfig {
	return emulator.ReconcileConfig{
		GracePeriod:    r.GracePeriod,
		TakeoverWindow: r.TakeoverWindow,
		SyncInterval:   r.SyncInterval,
	}
}

// StatusConfig configures the HTTP status view
type StatusConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig configures logrus
type LogConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns a config with the standard CN105 settings
func DefaultConfig() *Config {
	return &Config{
		Link: LinkConfig{
			Port:        "/dev/ttyUSB0",
			Baud:        2400,
			DataBits:    8,
			Parity:      "even",
			StopBits:    1,
			ReadTimeout: 20 * time.Millisecond,
		},
		Engine: EngineConfig{
			Type: EngineSim,
			Sim: SimConfig{
				Warmup:     0,
				ApplyDelay: 2 * time.Second,
			},
			MQTT: MQTTConfig{
				Broker:       "tcp://localhost:1883",
				ClientID:     "cn105emu",
				TopicPrefix:  "cn105emu",
				QoS:          1,
				ApplyTimeout: 10 * time.Second,
			},
		},
		Reconcile: ReconcileConfig{
			GracePeriod:    15 * time.Second,
			TakeoverWindow: 30 * time.Second,
			SyncInterval:   time.Second,
		},
		State: heatpump.Settings{
			Power:           "ON",
			Mode:            "DRY",
			Fan:             "2",
			Vane:            "3",
			WideVane:        "<<",
			Temperature:     heatpump.DefaultSetTemp,
			RoomTemperature: heatpump.DefaultActualTemp,
		},
		Status: StatusConfig{
			Enabled:    true,
			ListenAddr: ":8105",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logrus.WithField("path", path).Info("no config file, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		logrus.WithField("path", path).Info("config loaded")
	}

	for _, ep := range []string{filepath.Join(filepath.Dir(path), ".env"), ".env"} {
		loadEnvFile(ep)
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile reads a KEY=VALUE file into the environment without
// overriding variables that are already set
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	logrus.WithField("path", path).Debug("loading .env")
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads CN105_* variables:
// PORT, BAUD, URL, USERNAME, ENGINE, MQTT_BROKER, MQTT_USERNAME,
// MQTT_PASSWORD, MQTT_PREFIX, STATUS_ADDR, LOG_LEVEL
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CN105_PORT"); v != "" {
		c.Link.Port = v
	}
	if v := os.Getenv("CN105_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Link.Baud = n
		}
	}
	if v := os.Getenv("CN105_URL"); v != "" {
		c.Link.URL = v
	}
	if v := os.Getenv("CN105_USERNAME"); v != "" {
		c.Link.Username = v
	}
	if v := os.Getenv("CN105_ENGINE"); v != "" {
		c.Engine.Type = v
	}
	if v := os.Getenv("CN105_MQTT_BROKER"); v != "" {
		c.Engine.MQTT.Broker = v
	}
	if v := os.Getenv("CN105_MQTT_USERNAME"); v != "" {
		c.Engine.MQTT.Username = v
	}
	if v := os.Getenv("CN105_MQTT_PASSWORD"); v != "" {
		c.Engine.MQTT.Password = v
	}
	if v := os.Getenv("CN105_MQTT_PREFIX"); v != "" {
		c.Engine.MQTT.TopicPrefix = v
	}
	if v := os.Getenv("CN105_STATUS_ADDR"); v != "" {
		c.Status.ListenAddr = v
	}
	if v := os.Getenv("CN105_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate rejects configurations the emulator cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.Link.Baud <= 0 {
		errs = append(errs, fmt.Errorf("link.baud must be positive, got %d", c.Link.Baud))
	}
	if c.Link.DataBits < 5 || c.Link.DataBits > 8 {
		errs = append(errs, fmt.Errorf("link.data_bits must be 5-8, got %d", c.Link.DataBits))
	}
	switch strings.ToLower(c.Link.Parity) {
	case "none", "even", "odd":
	default:
		errs = append(errs, fmt.Errorf("link.parity %q unknown", c.Link.Parity))
	}
	if c.Link.StopBits != 1 && c.Link.StopBits != 2 {
		errs = append(errs, fmt.Errorf("link.stop_bits must be 1 or 2, got %d", c.Link.StopBits))
	}
	// the run loop relies on reads returning to tick the reconciler
	if c.Link.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("link.read_timeout must be positive, got %s", c.Link.ReadTimeout))
	}

	switch c.Engine.Type {
	case EngineSim:
	case EngineMQTT:
		if c.Engine.MQTT.Broker == "" {
			errs = append(errs, errors.New("engine.mqtt.broker is required"))
		}
		if c.Engine.MQTT.TopicPrefix == "" {
			errs = append(errs, errors.New("engine.mqtt.topic_prefix is required"))
		}
		if c.Engine.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("engine.mqtt.qos must be 0-2, got %d", c.Engine.MQTT.QoS))
		}
	default:
		errs = append(errs, fmt.Errorf("engine.type %q unknown", c.Engine.Type))
	}

	for name, d := range map[string]time.Duration{
		"reconcile.grace_period":    c.Reconcile.GracePeriod,
		"reconcile.takeover_window": c.Reconcile.TakeoverWindow,
		"reconcile.sync_interval":   c.Reconcile.SyncInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	errs = append(errs, validateSettings(c.State)...)

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q unknown", c.Log.Format))
	}

	return errors.Join(errs...)
}

func validateSettings(s heatpump.Settings) []error {
	var errs []error
	check := func(name, token string, t *cn105.Table) {
		if t.Index(token) < 0 {
			errs = append(errs, fmt.Errorf("state.%s %q is not one of %v", name, token, t.Tokens()))
		}
	}
	check("power", s.Power, cn105.PowerTable)
	check("mode", s.Mode, cn105.ModeTable)
	check("fan", s.Fan, cn105.FanTable)
	check("vane", s.Vane, cn105.VaneTable)
	check("wide_vane", s.WideVane, cn105.WideVaneTable)
	if s.Temperature < heatpump.MinTemp || s.Temperature > heatpump.MaxTemp {
		errs = append(errs, fmt.Errorf("state.temperature %.1f out of range", s.Temperature))
	}
	return errs
}

// Path returns the file the config was loaded from
func (c *Config) Path() string { return c.path }

// Save writes the config to its YAML file
func (c *Config) Save() error {
	if c.path == "" {
		c.path = DefaultPath
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", c.path, err)
	}
	return nil
}

// Apply configures a logrus logger from the log section
func (l LogConfig) Apply(logger *logrus.Logger) error {
	lvl, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)
	if l.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
