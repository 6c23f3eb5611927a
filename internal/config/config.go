package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/chorechart/internal/avatar"
	"github.com/dukerupert/chorechart/internal/storage"
)

type Config struct {
	Port     string
	DBPath   string
	LogLevel string

	// Household time zone; assignment dates are calendar days in this zone.
	Timezone string
	Location *time.Location

	BatchConcurrency int

	Avatar avatar.Config
	S3     storage.S3Config
}

// Load reads configuration from the environment, after applying a .env file if one exists.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() *Config {
	cfg := &Config{
		Port:             envString("CHORECHART_PORT", "8080"),
		DBPath:           envString("CHORECHART_DB_PATH", "chorechart.db"),
		LogLevel:         envString("CHORECHART_LOG_LEVEL", "info"),
		Timezone:         envString("CHORECHART_TIMEZONE", "Local"),
		BatchConcurrency: envInt("CHORECHART_BATCH_CONCURRENCY", 8),

		Avatar: avatar.Config{
			Prefix:   envString("CHORECHART_AVATAR_PREFIX", avatar.DefaultPrefix),
			Fallback: envString("CHORECHART_AVATAR_FALLBACK", avatar.DefaultFallback),
		},

		S3: storage.S3Config{
			Endpoint:      envString("CHORECHART_S3_ENDPOINT", ""),
			Bucket:        envString("CHORECHART_S3_BUCKET", ""),
			Region:        envString("CHORECHART_S3_REGION", "us-east-1"),
			AccessKey:     envString("CHORECHART_S3_ACCESS_KEY", ""),
			SecretKey:     envString("CHORECHART_S3_SECRET_KEY", ""),
			PresignExpiry: envDuration("CHORECHART_S3_PRESIGN_EXPIRY", time.Hour),
		},
	}
	cfg.SetTimezone(cfg.Timezone)
	return cfg
}

// SetTimezone resolves name into Location. Unknown zones fall back to the
// server's local zone.
func (c *Config) SetTimezone(name string) {
	c.Timezone = name
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("config invalid timezone, using local", "timezone", name, "error", err)
		loc = time.Local
	}
	c.Location = loc
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("config invalid integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
