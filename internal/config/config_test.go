package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend.RequestTimeout != 30*time.Second {
		t.Errorf("Expected 30s request timeout, got %v", cfg.Backend.RequestTimeout)
	}
	if cfg.Cache.Backend != "sqlite" {
		t.Errorf("Expected sqlite cache backend, got %s", cfg.Cache.Backend)
	}
	if cfg.Party.MinRequestPrice != 100 {
		t.Errorf("Expected min request price 100, got %d", cfg.Party.MinRequestPrice)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://api.example.com/")
	t.Setenv("AUTH_RETRY_DELAY", "2s")
	t.Setenv("BACKEND_RATE_LIMIT", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend.BaseURL != "https://api.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.RetryDelay != 2*time.Second {
		t.Errorf("Expected 2s retry delay, got %v", cfg.Backend.RetryDelay)
	}
	if cfg.Backend.RateLimit != 2.5 {
		t.Errorf("Expected rate limit 2.5, got %v", cfg.Backend.RateLimit)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SESSION_TOKEN_TTL", "forever"},
		{"CACHE_BACKEND", "memcached"},
		{"PARTY_MIN_REQUEST_PRICE", "50"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestRedisBackendRequiresURL(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "redis")
	if _, err := Load(); err == nil {
		t.Fatal("Expected error when CACHE_REDIS_URL is missing")
	}

	t.Setenv("CACHE_REDIS_URL", "redis://localhost:6379/0")
	if _, err := Load(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}
