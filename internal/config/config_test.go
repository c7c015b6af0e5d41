package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %s, want 8080", cfg.ServerPort)
	}
	if cfg.StoreBackend != "mongo" {
		t.Errorf("StoreBackend = %s, want mongo", cfg.StoreBackend)
	}
	if cfg.MongoDatabase != "zelara_db" {
		t.Errorf("MongoDatabase = %s, want zelara_db", cfg.MongoDatabase)
	}
	if cfg.MongoCollection != "mycollection" {
		t.Errorf("MongoCollection = %s, want mycollection", cfg.MongoCollection)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %s, want in_memory", cfg.CacheBackend)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("CacheTTL = %v, want 10m", cfg.CacheTTL)
	}
	if cfg.Epsilon != 1e-4 {
		t.Errorf("Epsilon = %v, want 1e-4", cfg.Epsilon)
	}
	if cfg.RefreshConcurrency != 4 {
		t.Errorf("RefreshConcurrency = %d, want 4", cfg.RefreshConcurrency)
	}
	if cfg.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = true, want false by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("CACHE_BACKEND", "memcached")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("COORDINATE_EPSILON", "0.001")
	t.Setenv("OPENWEATHER_API_KEY", "server-key")
	t.Setenv("CIRCUIT_BREAKER_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %s, want 9090", cfg.ServerPort)
	}
	if cfg.StoreBackend != "memory" {
		t.Errorf("StoreBackend = %s, want memory (lowercased)", cfg.StoreBackend)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %s, want memcached", cfg.CacheBackend)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s", cfg.CacheTTL)
	}
	if cfg.Epsilon != 0.001 {
		t.Errorf("Epsilon = %v, want 0.001", cfg.Epsilon)
	}
	if cfg.ProviderAPIKey != "server-key" {
		t.Errorf("ProviderAPIKey = %s, want server-key", cfg.ProviderAPIKey)
	}
	if !cfg.CircuitBreakerEnabled {
		t.Error("CircuitBreakerEnabled = false, want true")
	}
}

func TestLoad_InvalidStoreBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	if _, err := Load(); err == nil {
		t.Error("Load() expected error for unsupported store backend")
	}
}

func TestLoad_InvalidCacheBackend(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "redis")
	if _, err := Load(); err == nil {
		t.Error("Load() expected error for unsupported cache backend")
	}
}

func TestLoad_InvalidEpsilon(t *testing.T) {
	t.Setenv("COORDINATE_EPSILON", "-0.5")
	if _, err := Load(); err == nil {
		t.Error("Load() expected error for non-positive epsilon")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("CACHE_TTL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Error("Load() expected error for malformed duration")
	}
}
