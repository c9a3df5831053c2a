package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PutJSON serializes v and writes it as a tagged snapshot.
func PutJSON[T any](ctx context.Context, s CacheStore, userId string, key Key, v T, source Source, expectedRevision int64) (int64, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("unable to encode %s: %w", key, err)
	}
	return s.Put(ctx, userId, key, Entry{
		Payload:   payload,
		Source:    source,
		UpdatedAt: time.Now().UTC(),
	}, expectedRevision)
}

// GetJSON reads and decodes a snapshot. ErrCacheMiss is returned untouched.
func GetJSON[T any](ctx context.Context, s CacheStore, userId string, key Key) (T, *Entry, error) {
	var v T
	entry, err := s.Get(ctx, userId, key)
	if err != nil {
		return v, nil, err
	}
	if err := json.Unmarshal(entry.Payload, &v); err != nil {
		return v, nil, fmt.Errorf("unable to decode %s: %w", key, err)
	}
	return v, entry, nil
}

// WriteThrough writes v expecting the given revision. If another writer got
// there first the entry is overwritten anyway: across processes the last
// writer wins.
func WriteThrough[T any](ctx context.Context, s CacheStore, userId string, key Key, v T, source Source, expectedRevision int64) (int64, error) {
	rev, err := PutJSON(ctx, s, userId, key, v, source, expectedRevision)
	if errors.Is(err, ErrConcurrentModification) {
		zap.L().Warn("Cache entry changed by another writer, overwriting",
			zap.String("user_id", userId),
			zap.String("key", string(key)),
			zap.Int64("expected_revision", expectedRevision))
		return PutJSON(ctx, s, userId, key, v, source, 0)
	}
	return rev, err
}
