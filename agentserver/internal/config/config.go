// Package config provides configuration for the agent server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/couchrishi/sahabat/agentserver/internal/adapter/llm"
	"github.com/couchrishi/sahabat/agentserver/internal/pipeline"
	"github.com/couchrishi/sahabat/agentserver/internal/tracer"
	"github.com/couchrishi/sahabat/internal/logger"
)

// EnvConfigPath names the optional YAML file loaded before the environment.
const EnvConfigPath = "SAHABAT_CONFIG"

// Config holds the agent server configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port"`

	// Database
	DatabasePath     string `yaml:"database_path"`
	SessionCacheSize int    `yaml:"session_cache_size"`
	HistoryLimit     int    `yaml:"history_limit"`

	// Model provider
	GoogleAPIKey string            `yaml:"-"`
	Mode         string            `yaml:"mode"`
	Models       pipeline.Models   `yaml:"models"`
	Breaker      llm.BreakerConfig `yaml:"breaker"`

	// Routing
	RoutingPolicyPath string `yaml:"routing_policy_path"`

	// Gateway notifications
	GatewayURL string `yaml:"gateway_url"`

	// Timeouts
	RunTimeout time.Duration `yaml:"run_timeout"`

	Trace tracer.Config `yaml:"trace"`
	Log   logger.Config `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:         8001,
		DatabasePath:     "sahabat.db",
		SessionCacheSize: 1024,
		HistoryLimit:     20,
		Models:           pipeline.DefaultModels(),
		Breaker: llm.BreakerConfig{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    60 * time.Second,
		},
		RunTimeout: 5 * time.Minute,
		Trace:      tracer.Config{Exporter: "noop"},
		Log:        logger.Config{Level: "info", Format: "text", Output: "stdout"},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// SAHABAT_CONFIG, and finally environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.HTTPPort = getEnvInt("AGENT_PORT", cfg.HTTPPort)
	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.SessionCacheSize = getEnvInt("SESSION_CACHE_SIZE", cfg.SessionCacheSize)
	cfg.HistoryLimit = getEnvInt("HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.GoogleAPIKey = getEnv("GOOGLE_API_KEY", cfg.GoogleAPIKey)
	cfg.Mode = getEnv(llm.EnvMode, cfg.Mode)
	cfg.Models.Orchestrator = getEnv("ORCHESTRATOR_MODEL", cfg.Models.Orchestrator)
	cfg.Models.Text = getEnv("TEXT_MODEL", cfg.Models.Text)
	cfg.Models.TextPro = getEnv("TEXT_PRO_MODEL", cfg.Models.TextPro)
	cfg.Models.Image = getEnv("IMAGE_MODEL", cfg.Models.Image)
	cfg.Models.Video = getEnv("VIDEO_MODEL", cfg.Models.Video)
	cfg.Breaker.MaxFailures = uint32(getEnvInt("BREAKER_MAX_FAILURES", int(cfg.Breaker.MaxFailures)))
	cfg.Breaker.Timeout = getEnvDuration("BREAKER_TIMEOUT", cfg.Breaker.Timeout)
	cfg.RoutingPolicyPath = getEnv("ROUTING_POLICY_PATH", cfg.RoutingPolicyPath)
	cfg.GatewayURL = getEnv("GATEWAY_URL", cfg.GatewayURL)
	cfg.RunTimeout = getEnvDuration("RUN_TIMEOUT", cfg.RunTimeout)
	cfg.Trace.Exporter = getEnv("TRACE_EXPORTER", cfg.Trace.Exporter)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Output = getEnv("LOG_OUTPUT", cfg.Log.Output)

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// MockMode reports whether the mock model client is selected.
func (c *Config) MockMode() bool {
	return c.Mode == llm.ModeMock
}

// Validate checks the configuration for required values.
func (c *Config) Validate() error {
	var errs []error
	if !c.MockMode() && c.GoogleAPIKey == "" {
		errs = append(errs, fmt.Errorf("GOOGLE_API_KEY is required unless %s=%s", llm.EnvMode, llm.ModeMock))
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.HTTPPort))
	}
	if c.SessionCacheSize <= 0 {
		errs = append(errs, errors.New("SESSION_CACHE_SIZE must be positive"))
	}
	if c.Models.Orchestrator == "" || c.Models.Text == "" || c.Models.Image == "" || c.Models.Video == "" {
		errs = append(errs, errors.New("every agent needs a model"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
