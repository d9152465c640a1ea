// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// maxPorts mirrors the number of port slots of the bus registry.
const maxPorts = 2

// Config is the root configuration structure.
type Config struct {
	Ports    []PortConfig    `yaml:"ports"`
	Displays []DisplayConfig `yaml:"displays"`
	Logging  LoggingConfig   `yaml:"logging"`
	// Simulate replaces the hardware with emulated displays.
	Simulate bool `yaml:"simulate"`
}

// PortConfig describes one I²C controller.
type PortConfig struct {
	ID int `yaml:"id"`
	// Bus is the periph bus name or number. Empty selects the first bus.
	Bus         string `yaml:"bus"`
	SDA         string `yaml:"sda"`
	SCL         string `yaml:"scl"`
	FrequencyHz int64  `yaml:"frequency_hz"`
	PullUp      bool   `yaml:"pullup"`
}

// Frequency returns the bus clock.
func (p PortConfig) Frequency() physic.Frequency {
	return physic.Frequency(p.FrequencyHz) * physic.Hertz
}

// DisplayConfig describes one LCD.
type DisplayConfig struct {
	Name    string `yaml:"name"`
	Port    int    `yaml:"port"`
	Address uint16 `yaml:"address"`
	// Family is "1602" or "2004".
	Family    string `yaml:"family"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// Timeout returns the lock timeout of the display.
func (d DisplayConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMS) * time.Millisecond
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file, applies environment overrides
// and validates the result.
//
// Values missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration of the reference board: one port with
// an LCD1602 at 0x27 and an LCD2004 at 0x3f.
func Default() *Config {
	return &Config{
		Ports: []PortConfig{
			{ID: 0, SDA: "GPIO21", SCL: "GPIO22", FrequencyHz: 100000},
		},
		Displays: []DisplayConfig{
			{Name: "lcd1602", Port: 0, Address: 0x27, Family: "1602", TimeoutMS: 1000},
			{Name: "lcd2004", Port: 0, Address: 0x3f, Family: "2004", TimeoutMS: 1000},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("I2CLCD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("I2CLCD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("I2CLCD_LOGGING_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}
	if v := os.Getenv("I2CLCD_PORT_BUS"); v != "" && len(cfg.Ports) > 0 {
		cfg.Ports[0].Bus = v
	}
	if v := os.Getenv("I2CLCD_SIMULATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("I2CLCD_SIMULATE: %w", err)
		}
		cfg.Simulate = b
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	ports := map[int]bool{}
	if len(c.Ports) == 0 {
		errs = append(errs, "at least one port is required")
	}
	for i, p := range c.Ports {
		if p.ID < 0 || p.ID >= maxPorts {
			errs = append(errs, fmt.Sprintf("ports[%d].id must be between 0 and %d", i, maxPorts-1))
		}
		if ports[p.ID] {
			errs = append(errs, fmt.Sprintf("ports[%d].id %d is duplicated", i, p.ID))
		}
		ports[p.ID] = true
		if p.FrequencyHz < 0 {
			errs = append(errs, fmt.Sprintf("ports[%d].frequency_hz must not be negative", i))
		}
	}

	names := map[string]bool{}
	addrs := map[[2]int]bool{}
	for i, d := range c.Displays {
		if d.Name == "" {
			errs = append(errs, fmt.Sprintf("displays[%d].name is required", i))
		} else if names[d.Name] {
			errs = append(errs, fmt.Sprintf("displays[%d].name %q is duplicated", i, d.Name))
		}
		names[d.Name] = true
		if !ports[d.Port] {
			errs = append(errs, fmt.Sprintf("displays[%d].port %d is not configured", i, d.Port))
		}
		if d.Address > 0x7f {
			errs = append(errs, fmt.Sprintf("displays[%d].address 0x%x is not a 7-bit address", i, d.Address))
		}
		key := [2]int{d.Port, int(d.Address)}
		if addrs[key] {
			errs = append(errs, fmt.Sprintf("displays[%d].address 0x%02x is already used on port %d", i, d.Address, d.Port))
		}
		addrs[key] = true
		if d.Family != "1602" && d.Family != "2004" {
			errs = append(errs, fmt.Sprintf("displays[%d].family must be 1602 or 2004", i))
		}
		if d.TimeoutMS < 0 {
			errs = append(errs, fmt.Sprintf("displays[%d].timeout_ms must not be negative", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Display returns the display called name.
func (c *Config) Display(name string) (DisplayConfig, bool) {
	for _, d := range c.Displays {
		if d.Name == name {
			return d, true
		}
	}
	return DisplayConfig{}, false
}
