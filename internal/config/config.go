package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds runtime settings read from the environment.
type Config struct {
	Port string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LockTTL      time.Duration
	TxMaxRetries int

	LogLevel  logrus.Level
	LogFormat string

	AllowedOrigins []string
	AuthWindow     time.Duration
	FaucetEnabled  bool
	GinMode        string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBDriver:      strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "5432"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        getEnv("DB_NAME", "aether_staking"),
		DBSSLMode:     getEnv("DB_SSLMODE", "disable"),
		SQLitePath:    getEnv("SQLITE_PATH", "staking.db"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "json")),
		GinMode:       getEnv("GIN_MODE", "release"),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.TxMaxRetries, err = getInt("TX_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.LockTTL, err = getDuration("LOCK_TTL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.AuthWindow, err = getDuration("AUTH_WINDOW", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.FaucetEnabled, err = getBool("FAUCET_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = logrus.ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,https://aetherdex.io")
	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.TxMaxRetries < 1 {
		return fmt.Errorf("TX_MAX_RETRIES must be at least 1")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("unsupported LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

// PostgresDSN returns the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost,
		c.DBUser,
		c.DBPassword,
		c.DBName,
		c.DBPort,
		c.DBSSLMode,
	)
}

// ConfigureLogger applies level and formatter to the standard logrus logger.
func (c *Config) ConfigureLogger() {
	if c.LogFormat == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	logrus.SetLevel(c.LogLevel)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
