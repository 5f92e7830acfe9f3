package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
)

// ClientConfig configures the heartbeat-ping client.
//
//	endpoint: https://telemetry.example.com/p
//	app_id: com.example.app
//	app_version: 1.4.2
//	environment: prod
//	state_path: /var/lib/example/heartbeat.db
//	interval: 4h
type ClientConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	AppID       string        `yaml:"app_id"`
	AppVersion  string        `yaml:"app_version"`
	Environment string        `yaml:"environment"`
	StatePath   string        `yaml:"state_path"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	StartDelay  time.Duration `yaml:"start_delay"`
	LogLevel    string        `yaml:"log_level"`
}

// MinInterval is the shortest accepted periodic interval.
const MinInterval = time.Minute

// DefaultClientConfig returns the client defaults. The state file lives in
// the user config directory.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		StatePath: defaultStatePath(),
		Interval:  4 * time.Hour,
		Timeout:   10 * time.Second,
		LogLevel:  "warn",
	}
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "heartbeat", "state.db")
}

// LoadClientConfig reads path (optional, empty skips the file), applies
// HEARTBEAT_* overrides and validates the result.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *ClientConfig) applyEnv() {
	c.Endpoint = getEnv("HEARTBEAT_ENDPOINT", c.Endpoint)
	c.AppID = getEnv("HEARTBEAT_APP_ID", c.AppID)
	c.AppVersion = getEnv("HEARTBEAT_APP_VERSION", c.AppVersion)
	c.Environment = getEnv("HEARTBEAT_ENVIRONMENT", c.Environment)
	c.StatePath = getEnv("HEARTBEAT_STATE_PATH", c.StatePath)
	c.Interval = getEnvDuration("HEARTBEAT_INTERVAL", c.Interval)
	c.Timeout = getEnvDuration("HEARTBEAT_TIMEOUT", c.Timeout)
	c.LogLevel = getEnv("HEARTBEAT_LOG_LEVEL", c.LogLevel)
}

// Validate checks if the client configuration is valid
func (c *ClientConfig) Validate() error {
	if strings.TrimSpace(c.AppID) == "" {
		return fmt.Errorf("app_id is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be an http(s) URL: %q", c.Endpoint)
	}
	if c.StatePath == "" {
		return fmt.Errorf("state_path is required")
	}
	if c.Interval < MinInterval {
		return fmt.Errorf("interval must be at least %s", MinInterval)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	switch c.Environment {
	case "", string(heartbeat.EnvDev), string(heartbeat.EnvProd):
	default:
		return fmt.Errorf("environment must be dev or prod, got %q", c.Environment)
	}
	return nil
}

// Env returns the configured environment, empty when the build default
// applies.
func (c *ClientConfig) Env() heartbeat.Environment {
	if c.Environment == "" {
		return ""
	}
	return heartbeat.ParseEnvironment(c.Environment)
}
