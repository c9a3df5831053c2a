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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"party-request-go/internal/models"
	"party-request-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.CacheStore.
var _ store.CacheStore = (*Service)(nil)

// Service is the SQLite-backed persistent local cache.
type Service struct {
	db     *sql.DB
	prefix string
}

func NewService(ctx context.Context, cfg models.CacheConfig) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("cache path cannot be empty")
	}
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("cache prefix cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite cache", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open cache database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close cache database", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to ping cache database: %w", err)
	}

	service := newServiceWithDB(db, cfg.Prefix)
	if err := service.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close cache database", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Cache service initialized successfully", zap.String("prefix", cfg.Prefix))
	return service, nil
}

func newServiceWithDB(db *sql.DB, prefix string) *Service {
	return &Service{db: db, prefix: prefix}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close cache connection", zap.Error(err))
	}
}

func (s *Service) initSchema() error {
	schema := `
	-- Tagged snapshots, one row per (entity, user)
	CREATE TABLE IF NOT EXISTS cache_entries (
		storage_key TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		entity TEXT NOT NULL,
		payload BLOB NOT NULL,
		source TEXT NOT NULL,
		revision INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cache_entries_user_id ON cache_entries(user_id);
	CREATE INDEX IF NOT EXISTS idx_cache_entries_entity ON cache_entries(entity);
	`

	_, err := s.db.Exec(schema)
	return err
}
