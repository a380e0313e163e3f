package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	LogLevel               string
	LogFormat              string
	SummaryCacheTTLSeconds int
	LockTTLSeconds         int
	Timezone               string
}

// Load reads the process environment. A .env file in the working directory,
// when present, fills keys that are not already set.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigin:          getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                getInt("REDIS_DB", 0, 0),
		AuthSecret:             strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:  getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "json"),
		SummaryCacheTTLSeconds: getInt("SUMMARY_CACHE_TTL_SECONDS", 30, 1),
		LockTTLSeconds:         getInt("LOCK_TTL_SECONDS", 10, 1),
		Timezone:               getEnv("TIMEZONE", "UTC"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) SummaryTTL() time.Duration {
	return time.Duration(c.SummaryCacheTTLSeconds) * time.Second
}

func (c Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// Location resolves TIMEZONE, which decides the calendar day "today" falls on.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

// getInt falls back when the value is unset, malformed or below min.
func getInt(key string, fallback int, min int) int {
	parsed, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || parsed < min {
		return fallback
	}
	return parsed
}
