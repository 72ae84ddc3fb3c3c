// Package config loads server settings from the environment, an optional
// .env file and command-line flags, in increasing order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Addr                string
	StoreDriver         string
	SQLitePath          string
	DatabaseURL         string
	SeedFile            string
	EventBuffer         int
	ExpiryCheckInterval time.Duration
	LogLevel            string
	CORSOrigins         []string
	StrictWorkingDays   bool
	ShutdownTimeout     time.Duration
}

// Load reads envFile (when it exists) into the process environment and
// builds a Config from it. Variables already set win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from environment variables only.
func FromEnv() Config {
	return Config{
		Addr:                getEnv("APP_ADDR", ":8080"),
		StoreDriver:         strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		SQLitePath:          getEnv("SQLITE_PATH", "ledger.db"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		SeedFile:            getEnv("SEED_FILE", ""),
		EventBuffer:         getEnvInt("EVENT_BUFFER", 256),
		ExpiryCheckInterval: getEnvDuration("EXPIRY_CHECK_INTERVAL", time.Hour),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		CORSOrigins:         splitList(getEnv("CORS_ORIGINS", "*")),
		StrictWorkingDays:   getEnvBool("ATTENDANCE_STRICT_WORKING_DAYS", false),
		ShutdownTimeout:     getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// BindFlags registers flags that override the loaded values. Call
// fs.Parse afterwards.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "HTTP listen address")
	fs.StringVar(&c.StoreDriver, "store", c.StoreDriver, "storage driver: sqlite, postgres or memory")
	fs.StringVar(&c.SQLitePath, "db", c.SQLitePath, `SQLite database path (":memory:" for in-memory)`)
	fs.StringVar(&c.DatabaseURL, "database-url", c.DatabaseURL, "PostgreSQL connection string")
	fs.StringVar(&c.SeedFile, "seed", c.SeedFile, "YAML file with tenants, employees and leave catalogue to upsert at startup")
	fs.IntVar(&c.EventBuffer, "event-buffer", c.EventBuffer, "capacity of the post-commit event queue")
	fs.DurationVar(&c.ExpiryCheckInterval, "expiry-interval", c.ExpiryCheckInterval, "how often carry-over expiry runs (0 disables)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringSliceVar(&c.CORSOrigins, "cors-origins", c.CORSOrigins, "allowed CORS origins")
	fs.BoolVar(&c.StrictWorkingDays, "strict-working-days", c.StrictWorkingDays, "refuse check-in on non-working days")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "grace period for in-flight requests")
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("EVENT_BUFFER must be positive")
	}
	if c.ExpiryCheckInterval < 0 {
		return fmt.Errorf("EXPIRY_CHECK_INTERVAL must not be negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
