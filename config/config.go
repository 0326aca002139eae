// Package config loads broadcaster agent configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds agent configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Registry  RegistryConfig
	Signaling SignalingConfig
	Session   SessionConfig
	Redis     RedisConfig
}

// ServerConfig holds the local control API settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins []string // "*" admits any origin
	ControlToken       string   // empty disables auth on the control API
}

// RegistryConfig holds the session registry endpoint settings.
type RegistryConfig struct {
	BaseURL    string
	Token      string // platform bearer token
	TimeoutSec int
}

// SignalingConfig holds the gateway WebSocket settings. When JWTSecret is
// set, a per-session token is minted locally instead of reusing the
// platform token.
type SignalingConfig struct {
	URL          string
	Purpose      string
	JWTSecret    string
	TokenTTLMin  int
	TokenSubject string
}

// SessionConfig holds state-machine timing knobs.
type SessionConfig struct {
	GiftOverlaySec   int
	AnalyticsPollSec int
}

// RedisConfig holds the optional session-mirror settings. Empty Addr
// disables the mirror.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// GiftOverlayDuration returns the overlay auto-clear duration.
func (c SessionConfig) GiftOverlayDuration() time.Duration {
	return time.Duration(c.GiftOverlaySec) * time.Second
}

// AnalyticsPollInterval returns the analytics polling interval.
func (c SessionConfig) AnalyticsPollInterval() time.Duration {
	return time.Duration(c.AnalyticsPollSec) * time.Second
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8787"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
			ControlToken:       getEnv("CONTROL_TOKEN", ""),
		},
		Registry: RegistryConfig{
			BaseURL:    getEnv("REGISTRY_BASE_URL", "http://localhost:8080"),
			Token:      getEnv("REGISTRY_TOKEN", ""),
			TimeoutSec: getEnvInt("REGISTRY_TIMEOUT_SEC", 10),
		},
		Signaling: SignalingConfig{
			URL:          getEnv("SIGNALING_URL", "ws://localhost:8080/ws"),
			Purpose:      getEnv("SIGNALING_PURPOSE", "stream"),
			JWTSecret:    getEnv("SIGNALING_JWT_SECRET", ""),
			TokenTTLMin:  getEnvInt("SIGNALING_TOKEN_TTL_MIN", 240),
			TokenSubject: getEnv("SIGNALING_TOKEN_SUBJECT", "broadcaster"),
		},
		Session: SessionConfig{
			GiftOverlaySec:   getEnvInt("GIFT_OVERLAY_SEC", 5),
			AnalyticsPollSec: getEnvInt("ANALYTICS_POLL_SEC", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}
	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
