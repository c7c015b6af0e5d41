package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zelara/weather-service/internal/proximity"
)

// Config holds service configuration loaded from environment (with optional
// .env file for local development).
type Config struct {
	ServerPort string

	// Record store.
	StoreBackend        string // "mongo" or "memory"
	MongoURL            string
	MongoDatabase       string
	MongoCollection     string
	MongoConnectTimeout time.Duration

	// Provider.
	ProviderAPIKey  string // server-held key; empty means forward caller tokens only
	ProviderDataURL string
	ProviderGeoURL  string
	ProviderTimeout time.Duration

	// Outbound rate limit toward the provider (requests/sec, 0 = unlimited).
	ProviderRateLimitRPS   float64
	ProviderRateLimitBurst int

	// Circuit breaker around provider calls.
	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold uint32
	CircuitBreakerTimeout          time.Duration

	// Proximity tolerance in decimal degrees.
	Epsilon float64

	// Hot cache for pass-through endpoints.
	CacheBackend          string // "in_memory" or "memcached"
	CacheTTL              time.Duration
	CoalesceTimeout       time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	// Inbound rate limit.
	RateLimitRPS   int
	RateLimitBurst int

	RequestTimeout time.Duration

	// Stale sweep.
	RefreshInterval    time.Duration
	RefreshConcurrency int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

// Load reads configuration from the environment with sensible defaults.
// A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort: getenvDefault("PORT", "8080"),

		StoreBackend:    strings.ToLower(getenvDefault("STORE_BACKEND", "mongo")),
		MongoURL:        getenvDefault("MONGO_URL", "mongodb://localhost:27017"),
		MongoDatabase:   getenvDefault("MONGO_DATABASE", "zelara_db"),
		MongoCollection: getenvDefault("MONGO_COLLECTION", "mycollection"),

		ProviderAPIKey:  os.Getenv("OPENWEATHER_API_KEY"),
		ProviderDataURL: getenvDefault("OPENWEATHER_DATA_URL", "https://api.openweathermap.org/data/2.5"),
		ProviderGeoURL:  getenvDefault("OPENWEATHER_GEO_URL", "http://api.openweathermap.org/geo/1.0"),

		CacheBackend:   strings.ToLower(getenvDefault("CACHE_BACKEND", "in_memory")),
		MemcachedAddrs: getenvDefault("MEMCACHED_ADDRS", "localhost:11211"),
	}

	var err error
	if cfg.MongoConnectTimeout, err = getenvDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ProviderTimeout, err = getenvDuration("PROVIDER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CoalesceTimeout, err = getenvDuration("COALESCE_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.MemcachedTimeout, err = getenvDuration("MEMCACHED_TIMEOUT", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getenvDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getenvDuration("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownInFlightTimeout, err = getenvDuration("SHUTDOWN_INFLIGHT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownInFlightCheckInterval, err = getenvDuration("SHUTDOWN_INFLIGHT_CHECK_INTERVAL", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.CircuitBreakerTimeout, err = getenvDuration("CIRCUIT_BREAKER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	cfg.MemcachedMaxIdleConns = getenvInt("MEMCACHED_MAX_IDLE_CONNS", 2)
	cfg.RateLimitRPS = getenvInt("RATE_LIMIT_RPS", 50)
	cfg.RateLimitBurst = getenvInt("RATE_LIMIT_BURST", 100)
	cfg.ProviderRateLimitBurst = getenvInt("PROVIDER_RATE_LIMIT_BURST", 10)
	cfg.RefreshConcurrency = getenvInt("REFRESH_CONCURRENCY", 4)
	cfg.CircuitBreakerFailureThreshold = uint32(getenvInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5))

	cfg.ProviderRateLimitRPS = getenvFloat("PROVIDER_RATE_LIMIT_RPS", 5)
	cfg.Epsilon = getenvFloat("COORDINATE_EPSILON", proximity.DefaultEpsilon)

	cfg.CircuitBreakerEnabled = getenvBool("CIRCUIT_BREAKER_ENABLED", false)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.StoreBackend {
	case "mongo", "memory":
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q (want mongo or memory)", cfg.StoreBackend)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q (want in_memory or memcached)", cfg.CacheBackend)
	}
	if cfg.Epsilon <= 0 {
		return fmt.Errorf("COORDINATE_EPSILON must be positive, got %v", cfg.Epsilon)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
