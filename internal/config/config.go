/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"party-request-go/internal/models"
)

func Load() (*models.Config, error) {
	requestTimeout, err := getEnvDuration("BACKEND_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	retryDelay, err := getEnvDuration("AUTH_RETRY_DELAY", 750*time.Millisecond)
	if err != nil {
		return nil, err
	}

	retryWindow, err := getEnvDuration("AUTH_RETRY_WINDOW", 15*time.Second)
	if err != nil {
		return nil, err
	}

	tokenTTL, err := getEnvDuration("SESSION_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("CACHE_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("CACHE_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("CACHE_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	unconfirmedGrace, err := getEnvDuration("WALLET_UNCONFIRMED_GRACE", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	pollingInterval, err := getEnvDuration("LISTENER_POLLING_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}

	cleanupInterval, err := getEnvDuration("LISTENER_CLEANUP_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	seenWindow, err := getEnvDuration("LISTENER_SEEN_WINDOW", 6*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Backend: models.BackendConfig{
			BaseURL:        strings.TrimRight(getEnvString("BACKEND_BASE_URL", "http://localhost:8000"), "/"),
			RequestTimeout: requestTimeout,
			RetryDelay:     retryDelay,
			RetryWindow:    retryWindow,
			RateLimit:      getEnvFloat("BACKEND_RATE_LIMIT", 10),
			RateBurst:      getEnvInt("BACKEND_RATE_BURST", 5),
		},
		Session: models.SessionConfig{
			TokenTTL: tokenTTL,
		},
		Cache: models.CacheConfig{
			Backend:         getEnvString("CACHE_BACKEND", "sqlite"),
			Prefix:          getEnvString("CACHE_PREFIX", "partyq"),
			Path:            getEnvString("CACHE_PATH", "party-cache.db"),
			MaxOpenConns:    getEnvInt("CACHE_MAX_OPEN_CONNS", 4),
			MaxIdleConns:    getEnvInt("CACHE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			RedisURL:        getEnvString("CACHE_REDIS_URL", ""),
		},
		Party: models.PartyConfig{
			MinRequestPrice: int64(getEnvInt("PARTY_MIN_REQUEST_PRICE", 100)),
			JoinBaseURL:     strings.TrimRight(getEnvString("PARTY_JOIN_BASE_URL", "https://app.partyq.ng"), "/"),
		},
		Wallet: models.WalletConfig{
			UnconfirmedGrace: unconfirmedGrace,
			BanksFile:        getEnvString("BANKS_FILE", "banks.yaml"),
		},
		Listener: models.ListenerConfig{
			PollingInterval: pollingInterval,
			CleanupInterval: cleanupInterval,
			SeenWindow:      seenWindow,
			MetricsAddr:     getEnvString("METRICS_ADDR", ""),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	switch cfg.Cache.Backend {
	case "sqlite", "memory":
	case "redis":
		if cfg.Cache.RedisURL == "" {
			return fmt.Errorf("CACHE_REDIS_URL is required when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", cfg.Cache.Backend)
	}
	if cfg.Party.MinRequestPrice < 100 {
		return fmt.Errorf("PARTY_MIN_REQUEST_PRICE must be at least 100, got %d", cfg.Party.MinRequestPrice)
	}
	if cfg.Backend.RequestTimeout <= 0 {
		return fmt.Errorf("BACKEND_REQUEST_TIMEOUT must be positive")
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
