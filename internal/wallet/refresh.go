package wallet

import (
	"context"
	"time"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/metrics"
	"party-request-go/internal/models"
	"party-request-go/internal/reconcile"

	"go.uber.org/zap"
)

// Refresh replaces balance and history with the server's copy. Local
// placeholder deposits and processing withdrawals the server does not list
// yet move to the unconfirmed overlay, outside the balance, until they show
// up or the grace period runs out. When the backend is unreachable the
// cached snapshot is served instead. Concurrent calls share one fetch.
func (e *Engine) Refresh(ctx context.Context) (*View, error) {
	session, err := e.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}
	v, err, shared := e.group.Do(session.UserId, func() (any, error) {
		return e.refresh(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		zap.L().Debug("Wallet refresh shared with concurrent caller", zap.String("user_id", session.UserId))
	}
	view := v.(*View)
	return &View{Wallet: cloneWallet(view.Wallet), Source: view.Source}, nil
}

func (e *Engine) refresh(ctx context.Context, session *models.Session) (*View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadLocked(ctx, session.UserId)

	gen := e.generation.Load()
	fetchedAt := e.now().UTC()

	balance, err := e.remote.Balance(ctx, session.Role)
	var history []models.Transaction
	if err == nil {
		history, err = e.remote.TransactionHistory(ctx, session.Role)
	}
	if e.generation.Load() != gen {
		e.metrics.IncSync("wallet", metrics.OutcomeAborted)
		return nil, ErrSessionChanged
	}
	if err != nil {
		if !apperrors.CanFallBackToCache(err) {
			e.metrics.IncSync("wallet", metrics.OutcomeError)
			return nil, err
		}
		cached, ok := e.readCache(ctx, session.UserId)
		if !ok {
			e.metrics.IncSync("wallet", metrics.OutcomeError)
			return nil, err
		}
		e.wallet = reconcile.Merge(e.wallet, cached)
		e.metrics.IncSync("wallet", metrics.OutcomeFallback)
		zap.L().Warn("Wallet refresh failed, serving cached state",
			zap.String("user_id", session.UserId),
			zap.String("source", string(e.wallet.Source)),
			zap.Error(err))
		return e.viewLocked(), nil
	}

	current := e.wallet.Value
	local := make([]models.Transaction, 0, len(current.Transactions)+len(current.Unconfirmed))
	local = append(local, current.Transactions...)
	local = append(local, current.Unconfirmed...)
	unconfirmed := reconcile.Overlay(history, local, ledgerKey, func(tx models.Transaction) bool {
		return e.awaitingServer(tx, fetchedAt)
	})
	e.logSettlements(current.Transactions, history)

	fresh := models.Wallet{
		UserId:       session.UserId,
		Balance:      balance,
		Transactions: history,
		Unconfirmed:  unconfirmed,
		UpdatedAt:    fetchedAt,
	}
	e.wallet = reconcile.Merge(e.wallet, reconcile.Server(fresh, fetchedAt))
	e.persistLocked(ctx)
	e.metrics.IncSync("wallet", metrics.OutcomeOK)

	zap.L().Debug("Wallet refreshed",
		zap.String("user_id", session.UserId),
		zap.String("balance", balance.String()),
		zap.Int("transactions", len(history)),
		zap.Int("unconfirmed", len(unconfirmed)))
	return e.viewLocked(), nil
}

// awaitingServer keeps local entries the server may still be settling.
func (e *Engine) awaitingServer(tx models.Transaction, now time.Time) bool {
	if !isLocal(tx) {
		return false
	}
	if !tx.Placeholder && !reserved(tx) {
		return false
	}
	return now.Sub(tx.Timestamp) < e.grace
}

func (e *Engine) logSettlements(before, after []models.Transaction) {
	for _, tx := range before {
		if !reserved(tx) || tx.Reference == "" {
			continue
		}
		j := indexOfReference(after, tx.Reference)
		if j < 0 || after[j].Status == tx.Status {
			continue
		}
		zap.L().Info("Withdrawal settled by server",
			zap.String("reference", tx.Reference),
			zap.String("status", string(after[j].Status)))
	}
}
