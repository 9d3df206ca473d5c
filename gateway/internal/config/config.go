// Package config provides configuration for the gateway.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchrishi/sahabat/internal/logger"
)

// Config holds the gateway configuration.
type Config struct {
	// Server settings
	HTTPPort     int
	InternalPort int

	// Agent server settings
	AgentServerURL string
	RequestTimeout time.Duration

	// Browser access
	CORSAllowOrigins []string
	RateLimitRPS     float64
	RateLimitBurst   int

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	Log logger.Config
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:         getEnvInt("GATEWAY_PORT", 8000),
		InternalPort:     getEnvInt("GATEWAY_INTERNAL_PORT", 8002),
		AgentServerURL:   strings.TrimSuffix(getEnv("AGENT_SERVER_URL", "http://localhost:8001"), "/"),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),
		CORSAllowOrigins: splitList(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:8080")),
		RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 20),
		PingInterval:     time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WriteTimeout:     time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReadTimeout:      time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxMessageSize:   int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 65536)),
		Log: logger.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}
}

// Validate checks the configuration for required values.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.AgentServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("AGENT_SERVER_URL %q is not an absolute URL", c.AgentServerURL))
	}
	for _, port := range []int{c.HTTPPort, c.InternalPort} {
		if port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("invalid port %d", port))
		}
	}
	if c.HTTPPort == c.InternalPort {
		errs = append(errs, errors.New("GATEWAY_INTERNAL_PORT must differ from GATEWAY_PORT"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.PingInterval >= c.ReadTimeout {
		errs = append(errs, errors.New("WS_PING_INTERVAL_MS must be shorter than WS_READ_TIMEOUT_MS"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
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

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
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
