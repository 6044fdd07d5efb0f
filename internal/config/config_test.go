package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 3, cfg.TxMaxRetries)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, 5*time.Minute, cfg.AuthWindow)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.False(t, cfg.FaucetEnabled)
	assert.Equal(t, []string{"http://localhost:3000", "https://aetherdex.io"}, cfg.AllowedOrigins)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("LOCK_TTL", "3s")
	t.Setenv("TX_MAX_RETRIES", "5")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("FAUCET_ENABLED", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "/tmp/x.db", cfg.SQLitePath)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 3*time.Second, cfg.LockTTL)
	assert.Equal(t, 5, cfg.TxMaxRetries)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.FaucetEnabled)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"driver":  {"DB_DRIVER", "mysql"},
		"retries": {"TX_MAX_RETRIES", "0"},
		"ttl":     {"LOCK_TTL", "soon"},
		"level":   {"LOG_LEVEL", "loud"},
		"faucet":  {"FAUCET_ENABLED", "maybe"},
		"format":  {"LOG_FORMAT", "xml"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "db",
		DBUser:     "u",
		DBPassword: "p",
		DBName:     "n",
		DBPort:     "5432",
		DBSSLMode:  "disable",
	}
	assert.Equal(t, "host=db user=u password=p dbname=n port=5432 sslmode=disable", cfg.PostgresDSN())
}
