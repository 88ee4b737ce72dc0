package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DeviceConfig identifies the one device this daemon supervises.
type DeviceConfig struct {
	Address string `yaml:"address"` // colon-hex MAC, e.g. "AA:BB:CC:DD:EE:FF"
	Sink    string `yaml:"sink"`    // sink name the audio server assigns to it
}

// TimingConfig holds the loop delays, in seconds.
type TimingConfig struct {
	RetryDelay    int `yaml:"retry_delay"`    // pacing floor between attempts
	PollInterval  int `yaml:"poll_interval"`  // liveness polling while connected
	ConnectSettle int `yaml:"connect_settle"` // grace after connect before re-verifying
}

// LogConfig holds the event log destination.
type LogConfig struct {
	Path string `yaml:"path"`
}

// Config is read once at startup and never mutated afterwards.
type Config struct {
	Device DeviceConfig `yaml:"device"`
	Timing TimingConfig `yaml:"timing"`
	Log    LogConfig    `yaml:"log"`
}

// timing is TimingConfig converted to concrete delays.
type timing struct {
	retryDelay    time.Duration
	pollInterval  time.Duration
	connectSettle time.Duration
}

func (t TimingConfig) durations() timing {
	return timing{
		retryDelay:    time.Duration(t.RetryDelay) * time.Second,
		pollInterval:  time.Duration(t.PollInterval) * time.Second,
		connectSettle: time.Duration(t.ConnectSettle) * time.Second,
	}
}

// configPath resolves the config file location: explicit flag, then
// $BTSINKD_CONFIG, then the XDG config directory.
func configPath(override string) string {
	if override != "" {
		return override
	}
	if p := os.Getenv("BTSINKD_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "btsinkd", "config.yaml")
}

func defaultLogPath() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".local", "state")
	}
	return filepath.Join(dir, "btsinkd", "events.log")
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	if c.Timing.RetryDelay == 0 {
		c.Timing.RetryDelay = 5
	}
	if c.Timing.PollInterval == 0 {
		c.Timing.PollInterval = 10
	}
	if c.Timing.ConnectSettle == 0 {
		c.Timing.ConnectSettle = 5
	}
	if c.Log.Path == "" {
		c.Log.Path = defaultLogPath()
	}
}

var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)

func (c *Config) validate() error {
	if c.Device.Address == "" {
		return fmt.Errorf("device address is required")
	}
	if !macPattern.MatchString(c.Device.Address) {
		return fmt.Errorf("invalid device address %q", c.Device.Address)
	}
	if c.Device.Sink == "" {
		return fmt.Errorf("device sink name is required")
	}
	if c.Timing.RetryDelay < 0 || c.Timing.PollInterval < 0 || c.Timing.ConnectSettle < 0 {
		return fmt.Errorf("timing values must not be negative")
	}
	return nil
}
