// Package config loads the server configuration from YAML
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thereceipt/ticketprint/internal/layout"
)

// Transport kinds
const (
	TransportUSB     = "usb"
	TransportSerial  = "serial"
	TransportNetwork = "network"
)

// EnvConfig names the config file when --config is not given
const EnvConfig = "TICKETPRINT_CONFIG"

// Config is the full server configuration
type Config struct {
	Port            string        `yaml:"port"`
	VendorID        uint16        `yaml:"vendor_id"`
	Transport       string        `yaml:"transport"`
	Serial          SerialConfig  `yaml:"serial"`
	Network         NetworkConfig `yaml:"network"`
	RegistryPath    string        `yaml:"registry_path"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	PaperWidth      string        `yaml:"paper_width"`
	Layout          layout.Config `yaml:"layout"`
}

// SerialConfig selects a serial printer
type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// NetworkConfig selects a raw TCP printer
type NetworkConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Port:            "12212",
		VendorID:        1208,
		Transport:       TransportUSB,
		Serial:          SerialConfig{Baud: 9600},
		Network:         NetworkConfig{Port: 9100},
		RegistryPath:    "device_registry.json",
		MonitorInterval: 2 * time.Second,
		PaperWidth:      "80mm",
		Layout:          layout.DefaultConfig(),
	}
}

// Load reads path over the defaults. An empty path falls back to
// $TICKETPRINT_CONFIG; with neither set the defaults are returned.
// SERVER_PORT overrides the port either way.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the values Load cannot default
func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}

	switch c.Transport {
	case TransportUSB:
	case TransportSerial:
		if c.Serial.Device == "" {
			return errors.New("serial transport requires serial.device")
		}
	case TransportNetwork:
		if c.Network.Host == "" {
			return errors.New("network transport requires network.host")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	if c.MonitorInterval <= 0 {
		return fmt.Errorf("invalid monitor_interval %s", c.MonitorInterval)
	}
	return nil
}
