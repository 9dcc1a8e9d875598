package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/john/chitu_uploader/printer"
	"github.com/john/chitu_uploader/sdcp"
)

const defaultConfigPath = "chitu.yaml"

type Config struct {
	Environment string          `yaml:"environment"`
	Printer     PrinterConfig   `yaml:"printer"`
	Discovery   DiscoveryConfig `yaml:"discovery"`
	Timeouts    TimeoutsConfig  `yaml:"timeouts"`
	Simulator   SimulatorConfig `yaml:"simulator"`
}

// PrinterConfig pins a printer. When IP and MainboardID are both set,
// discovery is skipped.
type PrinterConfig struct {
	IP          string `yaml:"ip"`
	MainboardID string `yaml:"mainboard_id"`
	HTTPPort    int    `yaml:"http_port"`
}

type DiscoveryConfig struct {
	// Broadcast is an address, "auto" for every local subnet, or empty for
	// 255.255.255.255.
	Broadcast string        `yaml:"broadcast"`
	Port      int           `yaml:"port"`
	Timeout   time.Duration `yaml:"timeout"`
}

type TimeoutsConfig struct {
	Upload  time.Duration `yaml:"upload"`
	Command time.Duration `yaml:"command"`
}

// SimulatorConfig is used by the emulate command.
type SimulatorConfig struct {
	Dir         string `yaml:"dir"`
	IP          string `yaml:"ip"`
	MainboardID string `yaml:"mainboard_id"`
	MachineName string `yaml:"machine_name"`
}

func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Printer: PrinterConfig{
			HTTPPort: sdcp.HTTPPort,
		},
		Discovery: DiscoveryConfig{
			Broadcast: sdcp.LimitedBroadcast,
			Port:      sdcp.DiscoveryPort,
			Timeout:   sdcp.DefaultDiscoveryTimeout,
		},
		Timeouts: TimeoutsConfig{
			Upload:  printer.DefaultUploadTimeout,
			Command: printer.DefaultCommandTimeout,
		},
		Simulator: SimulatorConfig{
			Dir:         "sim-storage",
			IP:          "127.0.0.1",
			MainboardID: "000000000001d354",
			MachineName: "ELEGOO Saturn 3 Ultra",
		},
	}
}

// LoadConfig reads path over the defaults. A missing file at the default
// path is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Printer.HTTPPort <= 0 || c.Printer.HTTPPort > 65535 {
		return fmt.Errorf("invalid printer.http_port %d", c.Printer.HTTPPort)
	}
	if c.Discovery.Port <= 0 || c.Discovery.Port > 65535 {
		return fmt.Errorf("invalid discovery.port %d", c.Discovery.Port)
	}
	if c.Discovery.Timeout <= 0 {
		return fmt.Errorf("discovery.timeout must be positive")
	}
	if c.Timeouts.Upload <= 0 || c.Timeouts.Command <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

// PinnedDevice returns the configured printer, if fully specified.
func (c *Config) PinnedDevice() (sdcp.Device, bool) {
	if c.Printer.IP == "" || c.Printer.MainboardID == "" {
		return sdcp.Device{}, false
	}
	return sdcp.Device{IP: c.Printer.IP, MainboardID: c.Printer.MainboardID}, true
}
