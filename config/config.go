// Package config reads runtime configuration from the environment. main
// loads a local .env first via godotenv, so a plain checkout runs with the
// defaults below.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is everything main needs to wire the system.
type Config struct {
	Addr       string
	Backend    string // "json" or "mysql"
	DataDir    string
	MySQLDSN   string
	JWTSecret  string
	AdminPIN   string
	SessionTTL time.Duration

	DefaultDailyLimit  int64
	DefaultPerTxnLimit int64
	MaxPINAttempts     int
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	return int(getenvInt64(key, int64(fallback)))
}

// Load builds a Config from environment variables with sane defaults.
func Load() Config {
	return Config{
		Addr:       getenv("LISTEN_ADDR", ":8000"),
		Backend:    getenv("STORAGE_BACKEND", "json"),
		DataDir:    getenv("DATA_DIR", "data"),
		MySQLDSN:   getenv("MYSQL_DSN", "root:@tcp(localhost:3306)/atm_db"),
		JWTSecret:  getenv("JWT_SECRET", "dev-insecure-secret-change"),
		AdminPIN:   getenv("ADMIN_PIN", "0000"),
		SessionTTL: time.Duration(getenvInt("SESSION_TTL_MINUTES", 30)) * time.Minute,

		DefaultDailyLimit:  getenvInt64("DEFAULT_DAILY_LIMIT", 200000),
		DefaultPerTxnLimit: getenvInt64("DEFAULT_PER_TXN_LIMIT", 50000),
		MaxPINAttempts:     getenvInt("MAX_PIN_ATTEMPTS", 3),
	}
}
