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
	"fmt"
	"time"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/models"
	"party-request-go/internal/store"

	"go.uber.org/zap"
)

// ANSI color helpers for console output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Start runs a first pass that records the current state without reporting
// it, then polls in the background
func (l *SyncListener) Start(ctx context.Context) error {
	zap.L().Info("Starting sync listener")

	if l.wallet == nil && l.parties == nil {
		return fmt.Errorf("nothing to sync: wallet and party engines are both missing")
	}

	if err := l.prime(ctx); err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}

	go l.pollLoop(ctx)
	go l.cleanupLoop(ctx)

	zap.L().Info("Sync listener started successfully",
		zap.Duration("polling_interval", l.pollingInterval),
		zap.Duration("seen_window", l.seenWindow))

	return nil
}

// Stop gracefully stops the sync listener
func (l *SyncListener) Stop() {
	zap.L().Info("Stopping sync listener")
	close(l.stopChan)
	<-l.doneChan
	zap.L().Info("Sync listener stopped")
}

// pollLoop runs the main polling loop
func (l *SyncListener) pollLoop(ctx context.Context) {
	defer close(l.doneChan)

	ticker := time.NewTicker(l.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.poll(ctx)
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// prime marks everything already known as reported. Only a signed-out
// session is tolerated.
func (l *SyncListener) prime(ctx context.Context) error {
	if l.wallet != nil {
		view, err := l.wallet.Refresh(ctx)
		switch {
		case err == nil:
			for _, tx := range view.Wallet.Transactions {
				l.markSeen(transactionKey(tx))
			}
		case !signedOut(err):
			return fmt.Errorf("wallet: %w", err)
		}
	}
	if l.parties != nil {
		view, err := l.parties.Refresh(ctx)
		switch {
		case err == nil:
			if view.Current != nil {
				for _, song := range view.Current.Songs {
					l.markSeen(songKey(view.Current.Id, song))
				}
			}
		case !signedOut(err):
			return fmt.Errorf("parties: %w", err)
		}
	}
	return nil
}

// poll runs one sync pass
func (l *SyncListener) poll(ctx context.Context) {
	fmt.Fprintf(l.out, "\n%s[%s] Syncing%s\n", colorCyan, time.Now().Format("15:04:05"), colorReset)

	if l.wallet != nil {
		l.syncWallet(ctx)
	}
	if l.parties != nil {
		l.syncParties(ctx)
	}
}

func (l *SyncListener) syncWallet(ctx context.Context) {
	settled, err := l.wallet.ReconcileWithdrawals(ctx)
	if err != nil {
		l.report("wallet", err)
		return
	}
	if settled > 0 {
		fmt.Fprintf(l.out, "  %s✓ settled %d withdrawal(s)%s\n", colorGreen, settled, colorReset)
	}

	view, err := l.wallet.Refresh(ctx)
	if err != nil {
		l.report("wallet", err)
		return
	}
	for _, tx := range view.Wallet.Transactions {
		key := transactionKey(tx)
		if l.isSeen(key) {
			continue
		}
		l.markSeen(key)

		color := colorGreen
		symbol := "✓"
		switch tx.Status {
		case models.StatusFailed:
			color, symbol = colorRed, "✗"
		case models.StatusPending, models.StatusProcessing:
			color, symbol = colorYellow, "~"
		}
		fmt.Fprintf(l.out, "  %s%s %s %s %s | %s%s\n",
			color, symbol, tx.Kind, tx.Status, tx.Amount.StringFixed(0), shortId(tx.Id), colorReset)
	}
	if view.Source == store.SourceCached {
		fmt.Fprintf(l.out, "  %s~ wallet offline, showing cached balance %s%s\n", colorGray, view.Wallet.Balance.StringFixed(0), colorReset)
	}
}

func (l *SyncListener) syncParties(ctx context.Context) {
	expired, err := l.parties.HandleExpiry(ctx)
	if err != nil {
		l.report("parties", err)
		return
	}
	if expired > 0 {
		fmt.Fprintf(l.out, "  %s~ closed %d expired part(ies)%s\n", colorYellow, expired, colorReset)
	}

	view, err := l.parties.Refresh(ctx)
	if err != nil {
		l.report("parties", err)
		return
	}
	if view.Current == nil {
		return
	}
	for _, song := range view.Current.Songs {
		key := songKey(view.Current.Id, song)
		if l.isSeen(key) {
			continue
		}
		l.markSeen(key)

		color := colorGreen
		if song.Status == models.SongDeclined {
			color = colorRed
		} else if song.Status == models.SongPending {
			color = colorYellow
		}
		fmt.Fprintf(l.out, "  %s♪ %s - %s %s %s | %s%s\n",
			color, song.Title, song.Artist, song.Status, song.Price.StringFixed(0), song.RequestedBy, colorReset)
	}
}

func (l *SyncListener) report(engine string, err error) {
	if signedOut(err) {
		zap.L().Debug("No active session, skipping sync", zap.String("engine", engine))
		return
	}
	fmt.Fprintf(l.out, "  %s✗ %s: %s%s\n", colorRed, engine, err, colorReset)
	zap.L().Error("Sync pass failed", zap.String("engine", engine), zap.Error(err))
}

func signedOut(err error) bool {
	code, ok := apperrors.CodeOf(err)
	return ok && code == apperrors.CodeAuthentication
}

// transactionKey changes with the status so a settled withdrawal is
// reported again.
func transactionKey(tx models.Transaction) string {
	return "tx:" + tx.Id + ":" + string(tx.Status)
}

func songKey(partyId string, song models.Song) string {
	return "song:" + partyId + ":" + song.Id + ":" + string(song.Status)
}

func shortId(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}
