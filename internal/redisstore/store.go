package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"party-request-go/internal/models"
	"party-request-go/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ store.CacheStore = (*Store)(nil)

const indexEntity = "_keys"

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Del(context.Context, ...string) *redis.IntCmd
	SAdd(context.Context, string, ...any) *redis.IntCmd
	SRem(context.Context, string, ...any) *redis.IntCmd
	SMembers(context.Context, string) *redis.StringSliceCmd
}

// Store keeps tagged snapshots in Redis so several processes on one host
// share the same cache. Revision checks are only enforced within a process;
// across processes the last writer wins.
type Store struct {
	rdb    cmdable
	raw    *redis.Client
	prefix string
	mu     sync.Mutex
}

type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Source    store.Source    `json:"source"`
	Revision  int64           `json:"revision"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New connects to Redis and verifies connectivity.
func New(ctx context.Context, cfg models.CacheConfig) (*Store, error) {
	if cfg.RedisURL == "" {
		return nil, errors.New("redis url is required")
	}
	if cfg.Prefix == "" {
		return nil, errors.New("cache prefix cannot be empty")
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.MaxOpenConns
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MaxIdleConns
	}
	if opts.ConnMaxIdleTime == 0 {
		opts.ConnMaxIdleTime = cfg.ConnMaxIdleTime
	}
	raw := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := raw.Ping(pingCtx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	zap.L().Info("Redis cache connected", zap.String("addr", opts.Addr), zap.String("prefix", cfg.Prefix))
	return &Store{rdb: raw, raw: raw, prefix: cfg.Prefix}, nil
}

func newWithCmdable(rdb cmdable, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) indexKey(userId string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, indexEntity, userId)
}

func (s *Store) load(ctx context.Context, storageKey string) (*envelope, error) {
	raw, err := s.rdb.Get(ctx, storageKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", storageKey, err)
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", storageKey, err)
	}
	return &env, nil
}

func (s *Store) Put(ctx context.Context, userId string, key store.Key, entry store.Entry, expectedRevision int64) (int64, error) {
	if userId == "" {
		return 0, errors.New("user id cannot be empty")
	}
	storageKey := store.StorageKey(s.prefix, key, userId)

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	existing, err := s.load(ctx, storageKey)
	switch {
	case errors.Is(err, store.ErrCacheMiss):
	case err != nil:
		return 0, err
	default:
		current = existing.Revision
	}
	if expectedRevision != 0 && expectedRevision != current {
		return 0, fmt.Errorf("%s at revision %d - %w", storageKey, current, store.ErrConcurrentModification)
	}

	updatedAt := entry.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	encoded, err := json.Marshal(envelope{
		Payload:   payload,
		Source:    entry.Source,
		Revision:  current + 1,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		return 0, fmt.Errorf("encoding %s: %w", storageKey, err)
	}

	if err := s.rdb.Set(ctx, storageKey, encoded, 0).Err(); err != nil {
		return 0, fmt.Errorf("redis set %s: %w", storageKey, err)
	}
	if err := s.rdb.SAdd(ctx, s.indexKey(userId), string(key)).Err(); err != nil {
		return 0, fmt.Errorf("redis index %s: %w", storageKey, err)
	}
	return current + 1, nil
}

func (s *Store) Get(ctx context.Context, userId string, key store.Key) (*store.Entry, error) {
	env, err := s.load(ctx, store.StorageKey(s.prefix, key, userId))
	if err != nil {
		return nil, err
	}
	return &store.Entry{
		Payload:   []byte(env.Payload),
		Source:    env.Source,
		Revision:  env.Revision,
		UpdatedAt: env.UpdatedAt,
	}, nil
}

func (s *Store) Delete(ctx context.Context, userId string, keys ...store.Key) error {
	if len(keys) == 0 {
		return nil
	}
	storageKeys := make([]string, 0, len(keys))
	members := make([]any, 0, len(keys))
	for _, key := range keys {
		storageKeys = append(storageKeys, store.StorageKey(s.prefix, key, userId))
		members = append(members, string(key))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rdb.Del(ctx, storageKeys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if err := s.rdb.SRem(ctx, s.indexKey(userId), members...).Err(); err != nil {
		return fmt.Errorf("redis unindex: %w", err)
	}
	return nil
}

// Purge removes every entry indexed for the user, then the index itself.
func (s *Store) Purge(ctx context.Context, userId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	indexKey := s.indexKey(userId)
	members, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("redis members %s: %w", indexKey, err)
	}
	storageKeys := make([]string, 0, len(members)+1)
	for _, member := range members {
		storageKeys = append(storageKeys, store.StorageKey(s.prefix, store.Key(member), userId))
	}
	storageKeys = append(storageKeys, indexKey)

	if err := s.rdb.Del(ctx, storageKeys...).Err(); err != nil {
		return fmt.Errorf("redis purge %s: %w", userId, err)
	}

	zap.L().Info("Purged cached state", zap.String("user_id", userId), zap.Int("entries", len(members)))
	return nil
}

func (s *Store) Close() {
	if s.raw == nil {
		return
	}
	if err := s.raw.Close(); err != nil {
		zap.L().Warn("Failed to close redis connection", zap.Error(err))
	}
}
