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

package common

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/auth"
	"party-request-go/internal/backend"
	"party-request-go/internal/database"
	"party-request-go/internal/metrics"
	"party-request-go/internal/models"
	"party-request-go/internal/party"
	"party-request-go/internal/redisstore"
	"party-request-go/internal/store"
	"party-request-go/internal/wallet"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	Cache     store.CacheStore
	Client    *backend.Client
	Auth      *auth.Manager
	Wallet    *wallet.Engine
	Parties   *party.Engine
	Directory *wallet.Directory
	Metrics   *metrics.SyncMetrics
	Registry  *prometheus.Registry
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// OpenCache opens the cache backend selected by cfg.Backend
func OpenCache(ctx context.Context, cfg models.CacheConfig) (store.CacheStore, error) {
	switch cfg.Backend {
	case "", "sqlite":
		svc, err := database.NewService(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case "redis":
		rs, err := redisstore.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return rs, nil
	case "memory":
		zap.L().Warn("Using in-memory cache, state is lost on exit")
		return store.NewMemory(cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}

// InitializeServices wires the client, the session manager and both engines
// over one cache, then restores the last session of this device if any.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	cache, err := OpenCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	services, err := wire(ctx, cfg, cache)
	if err != nil {
		cache.Close()
		return nil, err
	}
	return services, nil
}

func wire(ctx context.Context, cfg *models.Config, cache store.CacheStore) (*Services, error) {
	registry := prometheus.NewRegistry()
	syncMetrics := metrics.NewSyncMetrics(registry)

	client, err := backend.NewClient(cfg.Backend, syncMetrics)
	if err != nil {
		return nil, err
	}

	manager, err := auth.NewManager(client, cache, cfg.Session)
	if err != nil {
		return nil, err
	}
	client.UseAuthorizer(manager)

	banks, err := LoadBankConfig(cfg.Wallet.BanksFile)
	if err != nil {
		zap.L().Warn("Bank fallback list unavailable", zap.String("file", cfg.Wallet.BanksFile), zap.Error(err))
	}

	directory := wallet.NewDirectory()
	walletEngine, err := wallet.NewEngine(client, cache, manager, cfg.Wallet,
		wallet.WithMetrics(syncMetrics),
		wallet.WithFallbackBanks(banks),
		wallet.WithDirectory(directory))
	if err != nil {
		return nil, err
	}

	partyEngine, err := party.NewEngine(client, cache, manager, walletEngine, cfg.Party,
		party.WithMetrics(syncMetrics),
		party.WithRefunder(directory))
	if err != nil {
		return nil, err
	}

	manager.Subscribe(walletEngine.OnSessionChange)
	manager.Subscribe(partyEngine.OnSessionChange)

	session, err := manager.Hydrate(ctx)
	switch {
	case err == nil:
		zap.L().Info("Restored session",
			zap.String("user_id", session.UserId),
			zap.String("role", string(session.Role)))
	case apperrors.IsReauthRequired(err):
		zap.L().Info("No stored session, sign in to continue")
	default:
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	return &Services{
		Cache:     cache,
		Client:    client,
		Auth:      manager,
		Wallet:    walletEngine,
		Parties:   partyEngine,
		Directory: directory,
		Metrics:   syncMetrics,
		Registry:  registry,
	}, nil
}

func (cs *Services) Close() {
	if cs.Cache != nil {
		cs.Cache.Close()
	}
}

// RequireSession returns the live session or a hint to sign in
func (cs *Services) RequireSession(ctx context.Context) (*models.Session, error) {
	session, err := cs.Auth.Session(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrAuthentication) {
			return nil, fmt.Errorf("not signed in, run login first: %w", err)
		}
		return nil, err
	}
	return session, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
