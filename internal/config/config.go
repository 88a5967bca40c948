package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults for the numeric pipeline. Alpha and Horizon drive exponential
// smoothing, Window bounds the trailing anomaly window.
const (
	DefaultAlpha   = 0.3
	DefaultHorizon = 12
	DefaultWindow  = 20
)

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	AnomalyStream string `yaml:"anomaly_stream"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

type IngestConfig struct {
	DeviceSecret string `yaml:"device_secret"`
}

type ForecastConfig struct {
	Alpha   float64 `yaml:"alpha"`
	Horizon int     `yaml:"horizon"`
}

type AnomalyConfig struct {
	Window int `yaml:"window"`
}

// Config is the full process configuration. It is loaded once in main and
// handed to constructors; packages never read it ad hoc.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Forecast ForecastConfig `yaml:"forecast"`
	Anomaly  AnomalyConfig  `yaml:"anomaly"`
}

// Load reads and validates the YAML config at configPath. Missing optional
// values are filled with defaults; secrets may be overridden from the
// environment (JWT_SECRET, DEVICE_SECRET).
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.AnomalyStream == "" {
		c.Redis.AnomalyStream = "anomaly_events"
	}
	if c.Auth.TokenTTLHours == 0 {
		c.Auth.TokenTTLHours = 24 * 7
	}
	if c.Forecast.Alpha == 0 {
		c.Forecast.Alpha = DefaultAlpha
	}
	if c.Forecast.Horizon == 0 {
		c.Forecast.Horizon = DefaultHorizon
	}
	if c.Anomaly.Window == 0 {
		c.Anomaly.Window = DefaultWindow
	}
}

func (c *Config) applyEnvOverrides() {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if secret := os.Getenv("DEVICE_SECRET"); secret != "" {
		c.Ingest.DeviceSecret = secret
	}
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or set JWT_SECRET)")
	}
	if c.Ingest.DeviceSecret == "" {
		return fmt.Errorf("ingest.device_secret is required (or set DEVICE_SECRET)")
	}
	if c.Forecast.Alpha <= 0 || c.Forecast.Alpha > 1 {
		return fmt.Errorf("forecast.alpha must be in (0,1], got %v", c.Forecast.Alpha)
	}
	if c.Forecast.Horizon < 1 {
		return fmt.Errorf("forecast.horizon must be a positive integer, got %d", c.Forecast.Horizon)
	}
	if c.Anomaly.Window < 2 {
		return fmt.Errorf("anomaly.window must be at least 2, got %d", c.Anomaly.Window)
	}
	return nil
}
