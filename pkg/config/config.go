package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level labdeck.yaml structure
type Config struct {
	Listen    string          `yaml:"listen"`
	DataDir   string          `yaml:"dataDir"`
	SecretKey string          `yaml:"secretKey"`
	Log       LogConfig       `yaml:"log"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Poll      PollConfig      `yaml:"poll"`
	Health    HealthConfig    `yaml:"health"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type WebSocketConfig struct {
	SendBuffer     int      `yaml:"sendBuffer"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type PollConfig struct {
	MetricsInterval time.Duration `yaml:"metricsInterval"`
	TorrentInterval time.Duration `yaml:"torrentInterval"`
	HealthInterval  time.Duration `yaml:"healthInterval"`
	Timeout         time.Duration `yaml:"timeout"`
}

type HealthConfig struct {
	Retries int `yaml:"retries"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Listen:  ":8080",
		DataDir: "./labdeck-data",
		Log: LogConfig{
			Level: "info",
		},
		WebSocket: WebSocketConfig{
			SendBuffer: 64,
		},
		Poll: PollConfig{
			MetricsInterval: 5 * time.Second,
			TorrentInterval: 2 * time.Second,
			HealthInterval:  30 * time.Second,
			Timeout:         10 * time.Second,
		},
		Health: HealthConfig{
			Retries: 3,
		},
	}
}

// Load reads path on top of the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidationError holds all validation failures for a config
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: %s", strings.Join(e.Errors, "; "))
}

// Validate checks the config for correctness
func (c *Config) Validate() error {
	var errs []string

	if c.Listen == "" {
		errs = append(errs, "listen is required")
	}
	if c.DataDir == "" {
		errs = append(errs, "dataDir is required")
	}
	if c.WebSocket.SendBuffer <= 0 {
		errs = append(errs, "websocket.sendBuffer must be positive")
	}
	intervals := []struct {
		name string
		d    time.Duration
	}{
		{"poll.metricsInterval", c.Poll.MetricsInterval},
		{"poll.torrentInterval", c.Poll.TorrentInterval},
		{"poll.healthInterval", c.Poll.HealthInterval},
		{"poll.timeout", c.Poll.Timeout},
	}
	for _, iv := range intervals {
		if iv.d <= 0 {
			errs = append(errs, iv.name+" must be positive")
		}
	}
	if c.Health.Retries <= 0 {
		errs = append(errs, "health.retries must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// IsValidationError reports whether err came from Validate
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
