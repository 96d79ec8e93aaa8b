// Package config loads pulsenet's server/client configuration from a YAML
// file with command-line overrides, replacing the teacher's hardcoded
// Config struct (core/main.go's loadConfig) with a layered load grounded on
// tinyrange-cc's yaml.v3 metadata files (internal/bundle/bundle.go). No
// pack repo uses a third-party flag-parsing library, so overrides use the
// standard library's flag package; see DESIGN.md for that justification.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pulsenet/pkg/netcore"
)

// Config holds every tunable pulsenet needs at startup.
type Config struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	PacketTimeoutMS     int `yaml:"packet_timeout_ms"`
	ConnectionTimeoutMS int `yaml:"connection_timeout_ms"`
	LatencyThresholdMS  int `yaml:"latency_threshold_ms"`
}

// Default returns pulsenet's built-in configuration, used when no file is
// given and as the base that a file and flags layer on top of.
func Default() Config {
	return Config{
		Host:                "0.0.0.0",
		Port:                7777,
		LogLevel:            "info",
		MetricsAddr:         ":9090",
		PacketTimeoutMS:     1000,
		ConnectionTimeoutMS: 5000,
		LatencyThresholdMS:  250,
	}
}

// Load reads a YAML config file (if path is non-empty) over Default(), then
// applies command-line flags from args on top of the result. Flags take
// precedence over the file, which takes precedence over the defaults.
func Load(path string, args []string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	fs := flag.NewFlagSet("pulsenet", flag.ContinueOnError)
	host := fs.String("host", cfg.Host, "bind/dial host")
	port := fs.Int("port", cfg.Port, "bind/dial port")
	logLevel := fs.String("log-level", cfg.LogLevel, "debug, info, warn, or error")
	metricsAddr := fs.String("metrics-addr", cfg.MetricsAddr, "address to serve /metrics on, empty to disable")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Host = *host
	cfg.Port = *port
	cfg.LogLevel = *logLevel
	cfg.MetricsAddr = *metricsAddr
	return cfg, nil
}

// Tunables converts the millisecond-granularity config fields into the
// netcore.Tunables a Server or ClientConnection consumes (spec.md §6
// "Configurable constants").
func (c Config) Tunables() netcore.Tunables {
	return netcore.Tunables{
		PacketTimeout:     time.Duration(c.PacketTimeoutMS) * time.Millisecond,
		ConnectionTimeout: time.Duration(c.ConnectionTimeoutMS) * time.Millisecond,
		LatencyThreshold:  time.Duration(c.LatencyThresholdMS) * time.Millisecond,
	}
}
