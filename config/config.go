// Package config holds the YAML configuration for the example programs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	iotterminal "github.com/KishorMore-2005/iot-terminal"
)

// Config holds all settings shared by the central and device programs.
type Config struct {
	DeviceName          string       `yaml:"device_name"`
	TelemetryIntervalMS int          `yaml:"telemetry_interval_ms"`
	DebounceMS          int          `yaml:"debounce_ms"`
	NewlineTerminated   bool         `yaml:"newline_terminated"`
	Serial              SerialConfig `yaml:"serial"`
	LogLevel            string       `yaml:"log_level"`
}

// SerialConfig holds the UART settings for the serial transport.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DeviceName:          iotterminal.DeviceName,
		TelemetryIntervalMS: 2000,
		DebounceMS:          1000,
		Serial: SerialConfig{
			Baud: 115200,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("device_name must not be empty")
	}

	if c.TelemetryIntervalMS <= 0 {
		return fmt.Errorf("telemetry_interval_ms must be > 0")
	}

	if c.DebounceMS < 0 {
		return fmt.Errorf("debounce_ms must be >= 0")
	}

	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be > 0")
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level %q is not a valid level", c.LogLevel)
	}

	return nil
}

func (c *Config) TelemetryInterval() time.Duration {
	return time.Duration(c.TelemetryIntervalMS) * time.Millisecond
}

func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Level returns the parsed logrus level; Validate must have passed.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
