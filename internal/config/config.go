package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the process needs. It is loaded once in main and
// passed into constructors; nothing reads the environment after startup.
type Config struct {
	HTTPAddr     string
	DatabaseDSN  string
	JWTSecret    string
	TokenTTL     time.Duration
	TemplateDir  string
	StaticDir    string
	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
}

const (
	minSecretLen    = 32
	defaultTokenTTL = 8 * time.Hour
)

// Load reads configuration from the environment (and an optional .env file).
// It fails rather than fall back to an insecure default secret.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		DatabaseDSN:  os.Getenv("DATABASE_URL"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		TokenTTL:     defaultTokenTTL,
		TemplateDir:  getEnv("TEMPLATE_DIR", "web/templates"),
		StaticDir:    getEnv("STATIC_DIR", "web/static"),
		RateBurst:    getEnvInt("RATE_BURST", 20),
		RatePerSec:   getEnvInt("RATE_PER_SEC", 10),
		MaxBodyBytes: 1 << 20,
	}

	if raw := os.Getenv("TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("config: parse TOKEN_TTL: %w", err)
		}
		cfg.TokenTTL = ttl
	}

	if cfg.DatabaseDSN == "" {
		return nil, errors.New("config: DATABASE_URL is not set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET is not set")
	}
	if len(cfg.JWTSecret) < minSecretLen {
		return nil, fmt.Errorf("config: JWT_SECRET must be at least %d characters", minSecretLen)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
