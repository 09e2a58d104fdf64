// Package config reads service settings from the environment, with
// command-line flags taking precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageMySQL  = "mysql"
)

var (
	ErrUnknownStorage = errors.New("unknown storage backend")
	ErrMissingDSN     = errors.New("mysql storage requires MYSQL_DSN")
	ErrInvalidEnv     = errors.New("invalid environment value")
)

type Config struct {
	HTTPAddr        string
	LogLevel        slog.Level
	Storage         string
	SQLitePath      string
	MySQLDSN        string
	RateLimitRPS    float64
	RateLimitBurst  int
	TraceExporter   string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// Load parses args (without the program name) on top of environment defaults.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("taskledger", flag.ContinueOnError)

	rps, rpsErr := getfloat("RATE_LIMIT_RPS", 0)
	burst, burstErr := getint("RATE_LIMIT_BURST", 20)
	shutdown, shutdownErr := getdur("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err := errors.Join(rpsErr, burstErr, shutdownErr); err != nil {
		return Config{}, err
	}

	var (
		cfg     Config
		level   string
		origins string
	)
	fs.StringVar(&cfg.HTTPAddr, "http", getenv("HTTP_ADDR", ":8080"), "listen address")
	fs.StringVar(&level, "log-level", getenv("LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&cfg.Storage, "storage", getenv("STORAGE", StorageMemory), "memory, sqlite or mysql")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", getenv("SQLITE_PATH", "data/tasks.db"), "sqlite database file")
	fs.StringVar(&cfg.MySQLDSN, "mysql-dsn", getenv("MYSQL_DSN", ""), "mysql DSN")
	fs.Float64Var(&cfg.RateLimitRPS, "rate-rps", rps, "requests per second, 0 disables limiting")
	fs.IntVar(&cfg.RateLimitBurst, "rate-burst", burst, "rate limiter burst")
	fs.StringVar(&cfg.TraceExporter, "trace-exporter", getenv("TRACE_EXPORTER", "none"), "none, stdout or otlp")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", shutdown, "graceful shutdown timeout")
	fs.StringVar(&origins, "cors-origins", getenv("CORS_ALLOWED_ORIGINS", "*"), "comma separated allowed origins")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.LogLevel = ParseLevel(level)
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	cfg.TraceExporter = strings.ToLower(strings.TrimSpace(cfg.TraceExporter))
	cfg.CORSOrigins = splitList(origins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageSQLite:
	case StorageMySQL:
		if c.MySQLDSN == "" {
			return ErrMissingDSN
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorage, c.Storage)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit rps must be >= 0, got %v", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit burst must be >= 1, got %d", c.RateLimitBurst)
	}
	return nil
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getint, getfloat and getdur return def for an unset variable and an
// ErrInvalidEnv error for one that does not parse.
func getint(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, envErr(key, v, err)
	}
	return i, nil
}

func getfloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, envErr(key, v, err)
	}
	return f, nil
}

func getdur(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, envErr(key, v, err)
	}
	return d, nil
}

func envErr(key, value string, err error) error {
	return fmt.Errorf("%w: %s=%q: %w", ErrInvalidEnv, key, value, err)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
