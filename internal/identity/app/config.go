package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer     string // Issuer claim for emergency admin tokens (default: poolworks-identity)
	AdminEmail string // Required: where recovery/registration/emergency alerts go

	DatabaseFile string // Optional: path to SQLite database file (default: ./identity.db)
	PepperFile   string // Optional: path to file containing pepper for password hashing

	EmergencyCode string // Required in prod: initial emergency access code

	RecoveryTTL          time.Duration // Recovery request lifetime (default: 30m)
	RecoveryMaxAttempts  int           // Failed attempts before a request is locked (default: 5)
	HousekeepingInterval time.Duration // Sweep interval for expired in-memory state (default: 15m)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)

	// SMTP delivery. When Host is empty outbound mail is logged instead.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	NotifyQueueSize int // Outbound notification queue depth (default: 64)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:     getEnvOrDefault("IDENTITY_ISSUER", "poolworks-identity"),
		AdminEmail: os.Getenv("IDENTITY_ADMIN_EMAIL"),

		DatabaseFile: getEnvOrDefault("IDENTITY_DATABASE_FILE", "identity.db"),
		PepperFile:   os.Getenv("IDENTITY_PEPPER_FILE"),

		EmergencyCode: os.Getenv("IDENTITY_EMERGENCY_CODE"),

		RecoveryTTL:          getEnvDurationOrDefault("IDENTITY_RECOVERY_TTL", 30*time.Minute),
		RecoveryMaxAttempts:  getEnvIntOrDefault("IDENTITY_RECOVERY_MAX_ATTEMPTS", 5),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 15*time.Minute),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvIntOrDefault("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getEnvOrDefault("SMTP_FROM", "identity@pool.local"),

		NotifyQueueSize: getEnvIntOrDefault("IDENTITY_NOTIFY_QUEUE_SIZE", 64),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
