package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the simulator process
type Config struct {
	// Network
	NetworkFile string

	// Simulation
	TimeScale int
	Seed      int64

	// Report store. DatabaseURL selects PostgreSQL when set.
	DatabasePath string
	DatabaseURL  string

	// Reporting
	SnapshotInterval  time.Duration
	RetentionDuration time.Duration

	// API
	Port           string
	AllowedOrigins []string

	Debug bool
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	return &Config{
		NetworkFile: getEnv("NETWORK_FILE", "network.yml"),

		TimeScale: getEnvInt("TIME_SCALE", 1),
		Seed:      int64(getEnvInt("SIM_SEED", 1)),

		DatabasePath: getEnv("SQLITE_DATABASE", "/data/transitsim.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		SnapshotInterval:  time.Duration(getEnvInt("SNAPSHOT_INTERVAL", 10)) * time.Second,
		RetentionDuration: time.Duration(getEnvInt("RETENTION_HOURS", 1)) * time.Hour,

		Port:           getEnv("PORT", "8081"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

		Debug: getEnvBool("DEBUG", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, ignoring empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
