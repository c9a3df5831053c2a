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

package listener

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"party-request-go/internal/party"
	"party-request-go/internal/wallet"

	"go.uber.org/zap"
)

// WalletSync is the wallet engine as seen by the listener
type WalletSync interface {
	Refresh(ctx context.Context) (*wallet.View, error)
	ReconcileWithdrawals(ctx context.Context) (int, error)
}

// PartySync is the party engine as seen by the listener
type PartySync interface {
	Refresh(ctx context.Context) (*party.View, error)
	HandleExpiry(ctx context.Context) (int, error)
}

// SyncListenerConfig contains configuration for SyncListener
type SyncListenerConfig struct {
	Wallet          WalletSync
	Parties         PartySync
	PollingInterval time.Duration
	CleanupInterval time.Duration
	SeenWindow      time.Duration
	Output          io.Writer
}

// SyncListener keeps wallet and party state in step with the backend and
// reports what changed since the last pass
type SyncListener struct {
	wallet  WalletSync
	parties PartySync
	out     io.Writer

	// Entries already reported, keyed by id and status
	seen            map[string]time.Time
	mutex           sync.RWMutex
	seenWindow      time.Duration
	pollingInterval time.Duration
	cleanupInterval time.Duration

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSyncListener creates a new sync listener
func NewSyncListener(cfg SyncListenerConfig) *SyncListener {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	polling := cfg.PollingInterval
	if polling <= 0 {
		polling = 15 * time.Second
	}
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = 15 * time.Minute
	}
	window := cfg.SeenWindow
	if window <= 0 {
		window = 6 * time.Hour
	}
	return &SyncListener{
		wallet:          cfg.Wallet,
		parties:         cfg.Parties,
		out:             out,
		seen:            make(map[string]time.Time),
		seenWindow:      window,
		pollingInterval: polling,
		cleanupInterval: cleanup,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// isSeen checks if an entry was already reported
func (l *SyncListener) isSeen(key string) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	_, exists := l.seen[key]
	return exists
}

// markSeen records an entry as reported
func (l *SyncListener) markSeen(key string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.seen[key] = time.Now()
}

// cleanupLoop periodically forgets old reported entries
func (l *SyncListener) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanupSeen(time.Now())
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cleanupSeen removes entries reported before the seen window
func (l *SyncListener) cleanupSeen(now time.Time) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cutoff := now.Add(-l.seenWindow)
	cleaned := 0

	for key, seenAt := range l.seen {
		if seenAt.Before(cutoff) {
			delete(l.seen, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up reported entries",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(l.seen)))
	}
}
