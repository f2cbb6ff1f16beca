package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer string // Required: issuer claim for credentials

	SigningKeyFile string // Optional: path to Ed25519 private key PEM (default: ./ident.key, generated when missing)
	DatabaseFile   string // Optional: path to SQLite database file (default: ./ident.db)
	PepperFile     string // Optional: path to file containing pepper for password hashing (default: ./pepper)

	AccessTTL       time.Duration // Access credential lifetime (default: 15m)
	RefreshTTL      time.Duration // Refresh credential lifetime (default: 168h)
	VerificationTTL time.Duration // Email verification token lifetime (default: 24h)
	ProfileTTL      time.Duration // Profile completion token lifetime (default: 1h)
	ResetTTL        time.Duration // Password reset token lifetime (default: 30m)
	StateTTL        time.Duration // OAuth state lifetime (default: 10m)
	ChallengeTTL    time.Duration // 2FA challenge lifetime (default: 5m)

	LockoutThreshold int           // Failures before lockout (default: 5)
	LockoutWindow    time.Duration // Lockout duration (default: 15m)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:         getEnvOrDefault("IDENT_ISSUER", "ident"),
		SigningKeyFile: getEnvOrDefault("IDENT_SIGNING_KEY_FILE", "ident.key"),
		DatabaseFile:   getEnvOrDefault("IDENT_DATABASE_FILE", "ident.db"),
		PepperFile:     getEnvOrDefault("IDENT_PEPPER_FILE", "pepper"),

		AccessTTL:       getEnvDurationOrDefault("IDENT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:      getEnvDurationOrDefault("IDENT_REFRESH_TTL", 7*24*time.Hour),
		VerificationTTL: getEnvDurationOrDefault("IDENT_VERIFICATION_TTL", 24*time.Hour),
		ProfileTTL:      getEnvDurationOrDefault("IDENT_PROFILE_TTL", time.Hour),
		ResetTTL:        getEnvDurationOrDefault("IDENT_RESET_TTL", 30*time.Minute),
		StateTTL:        getEnvDurationOrDefault("IDENT_STATE_TTL", 10*time.Minute),
		ChallengeTTL:    getEnvDurationOrDefault("IDENT_CHALLENGE_TTL", 5*time.Minute),

		LockoutThreshold: getEnvIntOrDefault("IDENT_LOCKOUT_THRESHOLD", 5),
		LockoutWindow:    getEnvDurationOrDefault("IDENT_LOCKOUT_WINDOW", 15*time.Minute),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
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

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
