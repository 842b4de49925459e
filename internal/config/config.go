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
	StrategyCounter  = "counter"
	StrategyRedis    = "redis"
	StrategyMax      = "max"
	StrategySequence = "sequence"
)

type Config struct {
	Port                    string
	AllowedOrigin           string
	DatabaseURL             string
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int
	AuthSecret              string
	AccessTokenTTLMinutes   int
	LogLevel                string
	DefaultRestockThreshold int
	StrictOverdraft         bool
	StrictReceive           bool
	PONumberStrategy        string
	ListingCacheTTLSeconds  int
	EventBufferSize         int
	NotificationChannel     string
	LockTTLSeconds          int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first; variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:                    getEnv("PORT", "8080"),
		AllowedOrigin:           getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 getInt("REDIS_DB", 0, 0),
		AuthSecret:              strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:   getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		DefaultRestockThreshold: getInt("DEFAULT_RESTOCK_THRESHOLD", 20, 0),
		StrictOverdraft:         getBool("STRICT_OVERDRAFT"),
		StrictReceive:           getBool("STRICT_RECEIVE"),
		PONumberStrategy:        strings.ToLower(getEnv("PO_NUMBER_STRATEGY", StrategyCounter)),
		ListingCacheTTLSeconds:  getInt("LISTING_CACHE_TTL_SECONDS", 15, 0),
		EventBufferSize:         getInt("EVENT_BUFFER_SIZE", 256, 1),
		NotificationChannel:     getEnv("NOTIFICATION_CHANNEL", "stockroom:notifications"),
		LockTTLSeconds:          getInt("LOCK_TTL_SECONDS", 10, 1),
	}

	switch cfg.PONumberStrategy {
	case StrategyCounter, StrategyRedis, StrategyMax, StrategySequence:
	default:
		cfg.PONumberStrategy = StrategyCounter
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) ListingCacheTTL() time.Duration {
	return time.Duration(c.ListingCacheTTLSeconds) * time.Second
}

func (c Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logger.SetOutput(os.Stdout)

	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getInt(key string, fallback int, min int) int {
	parsed, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || parsed < min {
		return fallback
	}
	return parsed
}

func getBool(key string) bool {
	parsed, err := strconv.ParseBool(getEnv(key, "false"))
	return err == nil && parsed
}
