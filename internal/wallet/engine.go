package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/metrics"
	"party-request-go/internal/models"
	"party-request-go/internal/reconcile"
	"party-request-go/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrSessionChanged reports a response that arrived after the signed-in
// user changed. It was discarded.
var ErrSessionChanged = apperrors.New(apperrors.CodeAuthentication, "session changed while the request was in flight")

type SessionProvider interface {
	Session(ctx context.Context) (*models.Session, error)
}

// Remote is the subset of the backend client the wallet calls.
type Remote interface {
	Balance(ctx context.Context, role models.Role) (decimal.Decimal, error)
	TransactionHistory(ctx context.Context, role models.Role) ([]models.Transaction, error)
	TransferOut(ctx context.Context, role models.Role, params models.TransferParams) (*models.TransferResult, error)
	VerifyAccount(ctx context.Context, accountNumber, bankCode string) (*models.AccountVerification, error)
	ListBanks(ctx context.Context) ([]models.Bank, error)
}

// View is a copy of the wallet and where it was last sourced from.
type View struct {
	Wallet models.Wallet
	Source store.Source
}

type balanceRecord struct {
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ledgerRecord struct {
	Transactions []models.Transaction `json:"transactions"`
	Unconfirmed  []models.Transaction `json:"unconfirmed,omitempty"`
}

// Engine owns the signed-in user's wallet. Every mutation holds the wallet
// lock from the local change through the remote call to the final state.
type Engine struct {
	remote    Remote
	cache     store.CacheStore
	sessions  SessionProvider
	grace     time.Duration
	now       func() time.Time
	metrics   *metrics.SyncMetrics
	banks     []models.Bank
	directory *Directory
	validate  *validator.Validate
	group     singleflight.Group

	generation atomic.Uint64

	ownerMu sync.Mutex
	owner   string

	mu           sync.Mutex
	wallet       reconcile.Snapshot[models.Wallet]
	loadedGen    uint64
	revisions    map[store.Key]int64
	verification *models.AccountVerification
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithFallbackBanks sets the bank list served when the backend is unreachable.
func WithFallbackBanks(banks []models.Bank) Option {
	return func(e *Engine) { e.banks = append([]models.Bank(nil), banks...) }
}

// WithDirectory publishes the wallet in d while its user is signed in.
func WithDirectory(d *Directory) Option {
	return func(e *Engine) { e.directory = d }
}

func NewEngine(remote Remote, cache store.CacheStore, sessions SessionProvider, cfg models.WalletConfig, opts ...Option) (*Engine, error) {
	if remote == nil || cache == nil || sessions == nil {
		return nil, fmt.Errorf("remote, cache and session provider are required")
	}
	grace := cfg.UnconfirmedGrace
	if grace <= 0 {
		grace = 10 * time.Minute
	}
	e := &Engine{
		remote:    remote,
		cache:     cache,
		sessions:  sessions,
		grace:     grace,
		now:       time.Now,
		validate:  validator.New(),
		revisions: make(map[store.Key]int64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// OnSessionChange drops in-memory state when the signed-in user changes.
// It never takes the wallet lock, so it is safe to call from an auth
// listener while a wallet operation is in flight.
func (e *Engine) OnSessionChange(session *models.Session) {
	e.generation.Add(1)

	userId := ""
	if session != nil {
		userId = session.UserId
	}

	e.ownerMu.Lock()
	previous := e.owner
	e.owner = userId
	e.ownerMu.Unlock()

	if e.directory == nil || previous == userId {
		return
	}
	if previous != "" {
		e.directory.Remove(previous, e)
	}
	if userId != "" {
		e.directory.Add(userId, e)
	}
}

// lock takes the wallet lock with the live session's state loaded.
func (e *Engine) lock(ctx context.Context) (*models.Session, error) {
	session, err := e.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.loadLocked(ctx, session.UserId)
	return session, nil
}

func (e *Engine) loadLocked(ctx context.Context, userId string) {
	gen := e.generation.Load()
	if e.wallet.Present() && e.wallet.Value.UserId == userId && e.loadedGen == gen {
		return
	}

	e.wallet = reconcile.Snapshot[models.Wallet]{}
	e.revisions = make(map[store.Key]int64)
	e.verification = nil
	e.loadedGen = gen

	if cached, ok := e.readCache(ctx, userId); ok {
		e.wallet = cached
	} else {
		e.wallet = reconcile.Local(models.Wallet{UserId: userId, Balance: decimal.Zero}, e.now())
	}

	verification, entry, err := store.GetJSON[models.AccountVerification](ctx, e.cache, userId, store.KeyVerification)
	if err == nil {
		e.verification = &verification
		e.revisions[store.KeyVerification] = entry.Revision
	}
}

func (e *Engine) readCache(ctx context.Context, userId string) (reconcile.Snapshot[models.Wallet], bool) {
	balance, balanceEntry, err := store.GetJSON[balanceRecord](ctx, e.cache, userId, store.KeyWalletBalance)
	if err != nil {
		if !errors.Is(err, store.ErrCacheMiss) {
			zap.L().Warn("Failed to read cached balance", zap.String("user_id", userId), zap.Error(err))
		}
		return reconcile.Snapshot[models.Wallet]{}, false
	}
	ledger, ledgerEntry, err := store.GetJSON[ledgerRecord](ctx, e.cache, userId, store.KeyTransactions)
	if err != nil {
		if !errors.Is(err, store.ErrCacheMiss) {
			zap.L().Warn("Failed to read cached transactions", zap.String("user_id", userId), zap.Error(err))
		}
		return reconcile.Snapshot[models.Wallet]{}, false
	}

	e.revisions[store.KeyWalletBalance] = balanceEntry.Revision
	e.revisions[store.KeyTransactions] = ledgerEntry.Revision
	return reconcile.Cached(models.Wallet{
		UserId:       userId,
		Balance:      balance.Balance,
		Transactions: ledger.Transactions,
		Unconfirmed:  ledger.Unconfirmed,
		UpdatedAt:    balance.UpdatedAt,
	}, balanceEntry), true
}

// persistLocked mirrors the wallet into the cache. A failed write is logged;
// memory stays authoritative for this process.
func (e *Engine) persistLocked(ctx context.Context) {
	w := e.wallet.Value
	source := e.wallet.Source

	rev, err := store.WriteThrough(ctx, e.cache, w.UserId, store.KeyWalletBalance,
		balanceRecord{Balance: w.Balance, UpdatedAt: w.UpdatedAt}, source, e.revisions[store.KeyWalletBalance])
	if err != nil {
		zap.L().Error("Failed to cache wallet balance", zap.String("user_id", w.UserId), zap.Error(err))
		return
	}
	e.revisions[store.KeyWalletBalance] = rev

	rev, err = store.WriteThrough(ctx, e.cache, w.UserId, store.KeyTransactions,
		ledgerRecord{Transactions: w.Transactions, Unconfirmed: w.Unconfirmed}, source, e.revisions[store.KeyTransactions])
	if err != nil {
		zap.L().Error("Failed to cache transactions", zap.String("user_id", w.UserId), zap.Error(err))
		return
	}
	e.revisions[store.KeyTransactions] = rev
}

// applyLocked runs mutate on a copy of the wallet, installs the copy as the
// newest local state and mirrors it to the cache.
func (e *Engine) applyLocked(ctx context.Context, mutate func(w *models.Wallet)) {
	w := cloneWallet(e.wallet.Value)
	mutate(&w)
	w.UpdatedAt = e.now().UTC()
	e.wallet = reconcile.Merge(e.wallet, reconcile.Local(w, w.UpdatedAt))
	e.persistLocked(ctx)
}

func (e *Engine) viewLocked() *View {
	return &View{Wallet: cloneWallet(e.wallet.Value), Source: e.wallet.Source}
}

func (e *Engine) newTransaction(kind models.TransactionKind, amount decimal.Decimal, description string, status models.TransactionStatus) models.Transaction {
	return models.Transaction{
		Id:          localIdPrefix + uuid.NewString(),
		Amount:      amount,
		Kind:        kind,
		Description: description,
		Timestamp:   e.now().UTC(),
		Status:      status,
	}
}

// Snapshot returns the current wallet without contacting the backend.
func (e *Engine) Snapshot(ctx context.Context) (*View, error) {
	if _, err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()
	return e.viewLocked(), nil
}

// Fund credits the wallet with a placeholder deposit. The real credit is
// settled by the payment gateway and arrives with the next refresh.
func (e *Engine) Fund(ctx context.Context, amount decimal.Decimal) (*models.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	session, err := e.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	tx := e.newTransaction(models.KindDeposit, amount, "Wallet funding (awaiting gateway confirmation)", models.StatusCompleted)
	tx.Placeholder = true
	e.applyLocked(ctx, func(w *models.Wallet) {
		w.Balance = w.Balance.Add(amount)
		w.Transactions = append(w.Transactions, tx)
	})

	zap.L().Info("Placeholder deposit recorded",
		zap.String("user_id", session.UserId),
		zap.String("amount", amount.String()),
		zap.String("transaction_id", tx.Id))
	return &tx, nil
}

// PayForItem debits the wallet locally. The matching server-side debit is
// made by the call that bought the item.
func (e *Engine) PayForItem(ctx context.Context, amount decimal.Decimal, description string) (*models.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if _, err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if amount.GreaterThan(e.wallet.Value.Balance) {
		return nil, apperrors.Newf(apperrors.CodeInsufficientFunds,
			"balance %s is less than %s", e.wallet.Value.Balance, amount)
	}

	tx := e.newTransaction(models.KindPayment, amount.Neg(), description, models.StatusCompleted)
	e.applyLocked(ctx, func(w *models.Wallet) {
		w.Balance = w.Balance.Sub(amount)
		w.Transactions = append(w.Transactions, tx)
	})
	return &tx, nil
}

// VoidPayment reverses a local payment whose purchase was rejected. The
// entry stays in the ledger marked failed.
func (e *Engine) VoidPayment(ctx context.Context, transactionId string) error {
	if _, err := e.lock(ctx); err != nil {
		return err
	}
	defer e.mu.Unlock()

	i := indexOf(e.wallet.Value.Transactions, transactionId)
	if i < 0 {
		return apperrors.Newf(apperrors.CodeNotFound, "transaction %s not found", transactionId)
	}
	tx := e.wallet.Value.Transactions[i]
	if tx.Kind != models.KindPayment || tx.Status != models.StatusCompleted {
		return apperrors.Newf(apperrors.CodeConflict, "transaction %s cannot be voided", transactionId)
	}

	e.applyLocked(ctx, func(w *models.Wallet) {
		w.Transactions[i].Status = models.StatusFailed
		w.Balance = w.Balance.Add(tx.Amount.Abs())
	})
	zap.L().Info("Payment voided", zap.String("transaction_id", transactionId), zap.String("amount", tx.Amount.Abs().String()))
	return nil
}

// ReceivePayment credits a DJ for a played song.
func (e *Engine) ReceivePayment(ctx context.Context, amount decimal.Decimal, description string) (*models.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	session, err := e.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if session.Role != models.RoleDJ {
		return nil, apperrors.New(apperrors.CodeAuthorization, "only DJs receive song payments")
	}

	tx := e.newTransaction(models.KindSongPayment, amount, description, models.StatusCompleted)
	e.applyLocked(ctx, func(w *models.Wallet) {
		w.Balance = w.Balance.Add(amount)
		w.Transactions = append(w.Transactions, tx)
	})
	return &tx, nil
}

// IssueRefund debits a DJ to refund an attendee. A DJ cannot refund more
// than they hold.
func (e *Engine) IssueRefund(ctx context.Context, amount decimal.Decimal, description string) (*models.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	session, err := e.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if session.Role != models.RoleDJ {
		return nil, apperrors.New(apperrors.CodeAuthorization, "only DJs issue refunds")
	}
	if amount.GreaterThan(e.wallet.Value.Balance) {
		return nil, apperrors.Newf(apperrors.CodeInsufficientFunds,
			"refund of %s exceeds balance %s", amount, e.wallet.Value.Balance)
	}

	tx := e.newTransaction(models.KindRefund, amount.Neg(), description, models.StatusCompleted)
	e.applyLocked(ctx, func(w *models.Wallet) {
		w.Balance = w.Balance.Sub(amount)
		w.Transactions = append(w.Transactions, tx)
	})
	return &tx, nil
}

// CreditRefund credits a requester whose song was declined. Crediting the
// same reference twice returns the first credit.
func (e *Engine) CreditRefund(ctx context.Context, amount decimal.Decimal, reference, description string) (*models.Transaction, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if _, err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	if reference != "" {
		for _, tx := range e.wallet.Value.Transactions {
			if tx.Kind == models.KindRefund && tx.Reference == reference {
				existing := tx
				return &existing, nil
			}
		}
	}

	tx := e.newTransaction(models.KindRefund, amount, description, models.StatusCompleted)
	tx.Reference = reference
	e.applyLocked(ctx, func(w *models.Wallet) {
		w.Balance = w.Balance.Add(amount)
		w.Transactions = append(w.Transactions, tx)
	})
	return &tx, nil
}

// Reconcile checks that the balance equals the fold of the ledger.
func (e *Engine) Reconcile(ctx context.Context) error {
	session, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	w := e.wallet.Value
	expected := Fold(w.Transactions)
	if !expected.Equal(w.Balance) {
		zap.L().Error("Wallet balance does not match ledger",
			zap.String("user_id", session.UserId),
			zap.String("balance", w.Balance.String()),
			zap.String("ledger", expected.String()),
			zap.Int("transactions", len(w.Transactions)))
		return apperrors.Newf(apperrors.CodeConflict, "balance %s does not match ledger %s", w.Balance, expected)
	}
	zap.L().Debug("Wallet reconciled", zap.String("user_id", session.UserId), zap.String("balance", w.Balance.String()))
	return nil
}
