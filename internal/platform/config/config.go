package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	PostgresDSN string

	DefaultGracePeriod time.Duration
	ReaperInterval     time.Duration
	OutboxInterval     time.Duration
	DeltaCutInterval   time.Duration

	EnableGraceReaper     bool
	EnableOutboxRelay     bool
	EnableConfirmConsumer bool
	EnableDeltaCutter     bool
	TallyConsumerGroup    string
}

func Load() (Config, error) {
	// Missing .env files are fine; deployed environments inject variables
	// directly.
	_ = godotenv.Load()

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "quorum"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		ServiceName: service,
		HTTPPort:    port,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		DefaultGracePeriod: envDuration("DEFAULT_GRACE_PERIOD", 20*time.Second),
		ReaperInterval:     envDuration("REAPER_INTERVAL", time.Second),
		OutboxInterval:     envDuration("OUTBOX_INTERVAL", time.Second),
		DeltaCutInterval:   envDuration("DELTA_CUT_INTERVAL", 30*time.Second),

		EnableGraceReaper:     envBool("ENABLE_GRACE_REAPER", true),
		EnableOutboxRelay:     envBool("ENABLE_OUTBOX_RELAY", true),
		EnableConfirmConsumer: envBool("ENABLE_CONFIRM_CONSUMER", true),
		EnableDeltaCutter:     envBool("ENABLE_DELTA_CUTTER", true),
		TallyConsumerGroup:    os.Getenv("TALLY_CONSUMER_GROUP"),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
