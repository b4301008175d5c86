package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
)

// Config holds the realtime server configuration, loaded from the
// environment with defaults suitable for local development.
type Config struct {
	Host string `env:"RT_HOST"`
	Port int    `env:"RT_PORT"`

	// SessionSecret signs the session cookie token. It must match the
	// secret used by the application that issues the cookie.
	SessionSecret string `env:"RT_SESSION_SECRET"`
	SessionCookie string `env:"RT_SESSION_COOKIE"`

	HeartbeatInterval time.Duration `env:"RT_HEARTBEAT_INTERVAL"`
	SendBuffer        int           `env:"RT_SEND_BUFFER"`
	ReadBufferSize    int           `env:"RT_READ_BUFFER_SIZE"`
	WriteBufferSize   int           `env:"RT_WRITE_BUFFER_SIZE"`

	RedisAddr     string `env:"RT_REDIS_ADDR"`
	RedisPassword string `env:"RT_REDIS_PASSWORD"`
	RedisDB       int    `env:"RT_REDIS_DB"`
	RedisPrefix   string `env:"RT_REDIS_PREFIX"`

	LogLevel string `env:"RT_LOG_LEVEL"`
}

// Default returns a Config with development defaults.
func Default() *Config {
	return &Config{
		Host:              "0.0.0.0",
		Port:              8090,
		SessionCookie:     "nicehr_session",
		HeartbeatInterval: 30 * time.Second,
		SendBuffer:        256,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		RedisAddr:         "localhost:6379",
		RedisPrefix:       "nicehr:",
		LogLevel:          "info",
	}
}

// FromEnv loads configuration from the environment on top of defaults.
func FromEnv() (*Config, error) {
	cfg := Default()
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("RT_SESSION_SECRET is required")
	}
	return cfg, nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
