// Package config is the single configuration surface. It is built once in
// main from defaults, an optional YAML file, and environment overrides,
// then passed down to constructors; the core holds no global state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is everything the process needs, grouped per component.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Transport string          `yaml:"transport"` // "zmq" or "nats"
	Bridge    BridgeConfig    `yaml:"bridge"`
	NATS      NATSConfig      `yaml:"nats"`
	HTTP      HTTPConfig      `yaml:"http"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
}

// BridgeConfig addresses the pipeline socket pair.
type BridgeConfig struct {
	BindAddr    string        `yaml:"bind_addr"`
	ConnectAddr string        `yaml:"connect_addr"`
	SendHWM     int           `yaml:"send_hwm"`
	RecvTimeout time.Duration `yaml:"recv_timeout"`
}

// NATSConfig applies when transport is "nats".
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// HTTPConfig is the metrics/health listen address.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BenchmarkConfig holds harness defaults and the self-monitor cadence.
type BenchmarkConfig struct {
	BurstCount      int           `yaml:"burst_count"`
	SustainedRate   int           `yaml:"sustained_rate"`
	SustainedFor    time.Duration `yaml:"sustained_for"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
}

// AnalyzerConfig bounds the rolling trade window.
type AnalyzerConfig struct {
	Window int `yaml:"window"`
}

// Default returns the stock local-process configuration.
func Default() Config {
	return Config{
		LogLevel:  "info",
		Transport: "zmq",
		Bridge: BridgeConfig{
			BindAddr:    "tcp://*:5555",
			ConnectAddr: "tcp://127.0.0.1:5555",
			SendHWM:     100,
			RecvTimeout: time.Second,
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "tradewire.events",
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Benchmark: BenchmarkConfig{
			BurstCount:      1000,
			SustainedRate:   100,
			SustainedFor:    10 * time.Second,
			MonitorInterval: 10 * time.Second,
		},
		Analyzer: AnalyzerConfig{Window: 100},
	}
}

// Load merges defaults, the YAML file at path (skipped when path is empty),
// and environment overrides, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers TRADEWIRE_* overrides on top of the file values.
func (c *Config) applyEnv() {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr("TRADEWIRE_LOG_LEVEL", &c.LogLevel)
	setStr("TRADEWIRE_TRANSPORT", &c.Transport)
	setStr("TRADEWIRE_BRIDGE_BIND", &c.Bridge.BindAddr)
	setStr("TRADEWIRE_BRIDGE_CONNECT", &c.Bridge.ConnectAddr)
	setStr("TRADEWIRE_NATS_URL", &c.NATS.URL)
	setStr("TRADEWIRE_NATS_SUBJECT", &c.NATS.Subject)
	setStr("TRADEWIRE_HTTP_HOST", &c.HTTP.Host)

	if v := os.Getenv("TRADEWIRE_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
}

func (c *Config) validate() error {
	switch c.Transport {
	case "zmq", "nats":
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: http port %d out of range", c.HTTP.Port)
	}
	if c.Bridge.RecvTimeout <= 0 {
		c.Bridge.RecvTimeout = time.Second
	}
	return nil
}

// HTTPAddr renders the listen address.
func (c Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
