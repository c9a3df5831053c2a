package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ CacheStore = (*Memory)(nil)

// Memory is a process-local CacheStore. Nothing survives a restart, which
// suits guest sessions and tests.
type Memory struct {
	mu      sync.Mutex
	prefix  string
	entries map[string]Entry
	owners  map[string]map[string]struct{}
}

func NewMemory(prefix string) *Memory {
	return &Memory{
		prefix:  prefix,
		entries: make(map[string]Entry),
		owners:  make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Put(ctx context.Context, userId string, key Key, entry Entry, expectedRevision int64) (int64, error) {
	if userId == "" {
		return 0, fmt.Errorf("user id cannot be empty")
	}
	storageKey := StorageKey(m.prefix, key, userId)

	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.entries[storageKey]
	if expectedRevision != 0 && (!exists || current.Revision != expectedRevision) {
		return 0, fmt.Errorf("%s at revision %d - %w", storageKey, current.Revision, ErrConcurrentModification)
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	entry.Payload = append([]byte(nil), entry.Payload...)
	entry.Revision = current.Revision + 1
	m.entries[storageKey] = entry

	if m.owners[userId] == nil {
		m.owners[userId] = make(map[string]struct{})
	}
	m.owners[userId][storageKey] = struct{}{}
	return entry.Revision, nil
}

func (m *Memory) Get(ctx context.Context, userId string, key Key) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[StorageKey(m.prefix, key, userId)]
	if !ok {
		return nil, ErrCacheMiss
	}
	entry.Payload = append([]byte(nil), entry.Payload...)
	return &entry, nil
}

func (m *Memory) Delete(ctx context.Context, userId string, keys ...Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		storageKey := StorageKey(m.prefix, key, userId)
		delete(m.entries, storageKey)
		delete(m.owners[userId], storageKey)
	}
	return nil
}

func (m *Memory) Purge(ctx context.Context, userId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for storageKey := range m.owners[userId] {
		delete(m.entries, storageKey)
	}
	delete(m.owners, userId)
	return nil
}

func (m *Memory) Close() {}
