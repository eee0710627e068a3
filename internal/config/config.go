package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backoff policies for failed deliveries.
const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

// Snapshot cache backends.
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	NumWorkers  int

	// Delivery retry policy.
	MaxRetries      int
	BackoffPolicy   string
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	DeliveryTimeout time.Duration

	// Grouping sweep cadence.
	SweepInterval time.Duration

	// Stock quantity at or below which a critical_stock event fires.
	CriticalStockThreshold int

	// Snapshot/idempotence cache backend: redis or memory.
	CacheBackend string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisURL:               getEnv("REDIS_URL", ""),
		NumWorkers:             getEnvInt("NUM_WORKERS", 50),
		MaxRetries:             getEnvInt("DELIVERY_MAX_RETRIES", 5),
		BackoffPolicy:          getEnv("DELIVERY_BACKOFF", BackoffExponential),
		BackoffBase:            getEnvDuration("DELIVERY_BACKOFF_BASE", 2*time.Second),
		BackoffMax:             getEnvDuration("DELIVERY_BACKOFF_MAX", 5*time.Minute),
		DeliveryTimeout:        getEnvDuration("DELIVERY_TIMEOUT", 30*time.Second),
		SweepInterval:          getEnvDuration("GROUP_SWEEP_INTERVAL", time.Second),
		CriticalStockThreshold: getEnvInt("CRITICAL_STOCK_THRESHOLD", 0),
		CacheBackend:           getEnv("CACHE_BACKEND", CacheRedis),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.BackoffPolicy != BackoffExponential && cfg.BackoffPolicy != BackoffFixed {
		return nil, fmt.Errorf("DELIVERY_BACKOFF must be %q or %q", BackoffExponential, BackoffFixed)
	}
	if cfg.CacheBackend != CacheRedis && cfg.CacheBackend != CacheMemory {
		return nil, fmt.Errorf("CACHE_BACKEND must be %q or %q", CacheRedis, CacheMemory)
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("DELIVERY_MAX_RETRIES must be at least 1")
	}

	return cfg, nil
}

// Backoff returns the delay before the given retry attempt (1-based).
func (c *Config) Backoff(attempt int) time.Duration {
	if c.BackoffPolicy == BackoffFixed {
		return c.BackoffBase
	}

	d := c.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.BackoffMax {
			return c.BackoffMax
		}
	}
	if d > c.BackoffMax {
		return c.BackoffMax
	}
	return d
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
