// Package config reads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"fieldops/internal/lifecycle"
)

type Config struct {
	Port        string
	DatabaseURL string
	// DBDriver is "postgres", "sqlite" or "" for the in-memory store.
	DBDriver  string
	DBMigrate bool
	RedisURL  string

	AuthMode       string
	AuthHMACSecret string
	AuthJWKSURL    string

	AllowOrigins []string
	RateRPS      float64
	RateBurst    int

	WebhookMaxAttempts int

	EnforceConflicts    bool
	StartHorizonDays    int
	DeleteRetentionDays int
	MaxShiftHours       float64
	SideEffectAttempts  int
	MaintenanceRules    string
}

// Load reads .env (if present) and then the process environment. Variables
// already set in the environment win over .env entries.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	c := Config{
		Port:                getenv("PORT", "8080"),
		DatabaseURL:         getenv("DATABASE_URL", ""),
		DBDriver:            strings.ToLower(getenv("DB_DRIVER", "")),
		DBMigrate:           getbool("DB_MIGRATE", true),
		RedisURL:            getenv("REDIS_URL", ""),
		AuthMode:            strings.ToLower(getenv("AUTH_MODE", "dev")),
		AuthHMACSecret:      getenv("AUTH_HMAC_SECRET", ""),
		AuthJWKSURL:         getenv("AUTH_JWKS_URL", ""),
		AllowOrigins:        splitList(getenv("ALLOW_ORIGINS", "*")),
		RateRPS:             getfloat("RATE_RPS", 0),
		RateBurst:           getint("RATE_BURST", 20),
		WebhookMaxAttempts:  getint("WEBHOOK_MAX_ATTEMPTS", 10),
		EnforceConflicts:    getbool("ENFORCE_CONFLICTS", false),
		StartHorizonDays:    getint("START_HORIZON_DAYS", 7),
		DeleteRetentionDays: getint("DELETE_RETENTION_DAYS", 30),
		MaxShiftHours:       getfloat("MAX_SHIFT_HOURS", lifecycle.MaxShiftHours),
		SideEffectAttempts:  getint("SIDE_EFFECT_ATTEMPTS", 3),
		MaintenanceRules:    getenv("MAINTENANCE_RULES", ""),
	}
	if c.DBDriver == "" && c.DatabaseURL != "" {
		c.DBDriver = driverFor(c.DatabaseURL)
	}
	return c
}

// Lifecycle returns the engine rules carried by c.
func (c Config) Lifecycle() lifecycle.Config {
	return lifecycle.Config{
		StartHorizonDays:    c.StartHorizonDays,
		DeleteRetentionDays: c.DeleteRetentionDays,
		MaxShiftHours:       c.MaxShiftHours,
		EnforceConflicts:    c.EnforceConflicts,
	}
}

// driverFor guesses the driver from a DSN: URLs are postgres, anything else is a sqlite path.
func driverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if n, err := strconv.Atoi(getenv(k, "")); err == nil && n > 0 {
		return n
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if f, err := strconv.ParseFloat(getenv(k, ""), 64); err == nil && f > 0 {
		return f
	}
	return def
}

func getbool(k string, def bool) bool {
	if b, err := strconv.ParseBool(getenv(k, "")); err == nil {
		return b
	}
	return def
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
