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
	"errors"
	"fmt"
	"time"

	"party-request-go/internal/store"

	"go.uber.org/zap"
)

// Put writes a tagged snapshot, bumping its revision under optimistic locking.
func (s *Service) Put(ctx context.Context, userId string, key store.Key, entry store.Entry, expectedRevision int64) (int64, error) {
	if userId == "" {
		return 0, fmt.Errorf("user id cannot be empty")
	}
	storageKey := store.StorageKey(s.prefix, key, userId)
	updatedAt := entry.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx, queryGetRevision, storageKey).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		if expectedRevision != 0 {
			return 0, fmt.Errorf("%s vanished before write - %w", storageKey, store.ErrConcurrentModification)
		}
		if _, err := tx.ExecContext(ctx, queryInsertEntry,
			storageKey, userId, string(key), entry.Payload, string(entry.Source), updatedAt); err != nil {
			return 0, fmt.Errorf("failed to insert cache entry: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return 1, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to read cache revision: %w", err)
	}

	if expectedRevision != 0 && expectedRevision != current {
		zap.L().Warn("Stale cache write rejected",
			zap.String("key", storageKey),
			zap.Int64("expected_revision", expectedRevision),
			zap.Int64("stored_revision", current))
		return 0, fmt.Errorf("%s at revision %d - %w", storageKey, current, store.ErrConcurrentModification)
	}

	result, err := tx.ExecContext(ctx, queryUpdateEntry, entry.Payload, string(entry.Source), updatedAt, storageKey, current)
	if err != nil {
		return 0, fmt.Errorf("failed to update cache entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, fmt.Errorf("cache update failed - %w", store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	zap.L().Debug("Cache entry written",
		zap.String("key", storageKey),
		zap.String("source", string(entry.Source)),
		zap.Int64("revision", current+1))

	return current + 1, nil
}

func (s *Service) Get(ctx context.Context, userId string, key store.Key) (*store.Entry, error) {
	storageKey := store.StorageKey(s.prefix, key, userId)

	var entry store.Entry
	var source string
	err := s.db.QueryRowContext(ctx, queryGetEntry, storageKey).
		Scan(&entry.Payload, &source, &entry.Revision, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %s: %w", storageKey, err)
	}
	entry.Source = store.Source(source)
	return &entry, nil
}

func (s *Service) Delete(ctx context.Context, userId string, keys ...store.Key) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, queryDeleteEntry, store.StorageKey(s.prefix, key, userId)); err != nil {
			return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Purge removes every entry stored for the user.
func (s *Service) Purge(ctx context.Context, userId string) error {
	result, err := s.db.ExecContext(ctx, queryPurgeUser, userId)
	if err != nil {
		return fmt.Errorf("failed to purge cache for user %s: %w", userId, err)
	}
	removed, _ := result.RowsAffected()

	zap.L().Info("Purged cached state",
		zap.String("user_id", userId),
		zap.Int64("entries", removed))
	return nil
}

// CountEntries reports how many snapshots are held for a user.
func (s *Service) CountEntries(ctx context.Context, userId string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountUserEntries, userId).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return count, nil
}
