package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full coordinator configuration, read from the
// environment (godotenv is loaded by main before this runs).
type Config struct {
	Port string

	// Store
	RedisAddr     string
	StoreDegraded bool // explicit availability-over-durability mode
	DeviceTTL     time.Duration
	SessionTTL    time.Duration // absolute ceiling, never refreshed

	// Sweeper
	SweepInterval  time.Duration
	SessionCeiling time.Duration

	// Conversation provider
	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderAgentID string
	ProviderTimeout time.Duration

	// Auth
	DeviceTokenSecret string // when set, credentials must be HS256 tokens
	AuthDeadline      time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getenvDefault("PORT", "8080"),
		RedisAddr:         firstEnv("REDIS_ADDR", "REDIS_URI", "REDIS_URL"),
		StoreDegraded:     getenvBool("STORE_DEGRADED_MODE"),
		DeviceTTL:         getenvDuration("DEVICE_SESSION_TTL", 24*time.Hour),
		SessionTTL:        getenvDuration("STREAMING_SESSION_TTL", time.Hour),
		SweepInterval:     getenvDuration("SWEEP_INTERVAL", 5*time.Minute),
		SessionCeiling:    getenvDuration("SESSION_MAX_DURATION", 10*time.Minute),
		ProviderBaseURL:   os.Getenv("CONVERSATION_PROVIDER_URL"),
		ProviderAPIKey:    os.Getenv("CONVERSATION_PROVIDER_API_KEY"),
		ProviderAgentID:   os.Getenv("CONVERSATION_PROVIDER_AGENT_ID"),
		ProviderTimeout:   getenvDuration("CONVERSATION_PROVIDER_TIMEOUT", 8*time.Second),
		DeviceTokenSecret: os.Getenv("DEVICE_TOKEN_SECRET"),
		AuthDeadline:      getenvDuration("CONNECT_AUTH_DEADLINE", 10*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.RedisAddr == "" && !c.StoreDegraded {
		return errors.New("REDIS_ADDR (or REDIS_URI/REDIS_URL) is not set; set STORE_DEGRADED_MODE=true to run without a store")
	}
	if c.DeviceTTL <= 0 || c.SessionTTL <= 0 {
		return errors.New("session TTLs must be positive")
	}
	if c.SweepInterval <= 0 || c.SessionCeiling <= 0 {
		return errors.New("sweeper interval and ceiling must be positive")
	}
	// The sweeper must always reap before the store's absolute TTL can
	// evict a session the state machine still tracks.
	if c.SessionCeiling >= c.SessionTTL {
		return fmt.Errorf("SESSION_MAX_DURATION (%s) must be below STREAMING_SESSION_TTL (%s)", c.SessionCeiling, c.SessionTTL)
	}
	if c.ProviderTimeout <= 0 {
		return errors.New("CONVERSATION_PROVIDER_TIMEOUT must be positive")
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getenvBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}

func getenvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	// bare integers are seconds
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
