package wallet_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/models"
	"party-request-go/internal/store"
	"party-request-go/internal/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubSessions struct {
	mu      sync.Mutex
	session *models.Session
}

func (s *stubSessions) Session(ctx context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, apperrors.New(apperrors.CodeAuthentication, "not signed in").ReauthRequired()
	}
	copied := *s.session
	return &copied, nil
}

func (s *stubSessions) set(session *models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

type stubRemote struct {
	mu sync.Mutex

	balance     decimal.Decimal
	history     []models.Transaction
	fetchErr    error
	transfer    *models.TransferResult
	transferErr error
	verifyErr   error
	banks       []models.Bank
	banksErr    error

	transfers []models.TransferParams
}

func (r *stubRemote) Balance(ctx context.Context, role models.Role) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return decimal.Zero, r.fetchErr
	}
	return r.balance, nil
}

func (r *stubRemote) TransactionHistory(ctx context.Context, role models.Role) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	return append([]models.Transaction(nil), r.history...), nil
}

func (r *stubRemote) TransferOut(ctx context.Context, role models.Role, params models.TransferParams) (*models.TransferResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers = append(r.transfers, params)
	if r.transferErr != nil {
		return nil, r.transferErr
	}
	if r.transfer != nil {
		return r.transfer, nil
	}
	return &models.TransferResult{Reference: params.Reference, Status: models.StatusProcessing}, nil
}

func (r *stubRemote) VerifyAccount(ctx context.Context, accountNumber, bankCode string) (*models.AccountVerification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.verifyErr != nil {
		return nil, r.verifyErr
	}
	return &models.AccountVerification{AccountNumber: accountNumber, BankCode: bankCode, AccountName: "ADA OBI"}, nil
}

func (r *stubRemote) ListBanks(ctx context.Context) ([]models.Bank, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.banks, r.banksErr
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine   *wallet.Engine
	remote   *stubRemote
	sessions *stubSessions
	cache    *store.Memory
	clock    *clock
}

func session(userId string, role models.Role) *models.Session {
	return &models.Session{
		UserId:      userId,
		Username:    "user-" + userId,
		Role:        role,
		AuthToken:   "token-" + userId,
		TokenExpiry: time.Now().Add(time.Hour),
	}
}

func newHarness(t testing.TB, role models.Role, opts ...wallet.Option) *harness {
	h := &harness{
		remote:   &stubRemote{},
		sessions: &stubSessions{session: session("u1", role)},
		cache:    store.NewMemory("partyq"),
		clock:    &clock{now: time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)},
	}
	h.engine = h.newEngine(t, opts...)
	return h
}

func (h *harness) newEngine(t testing.TB, opts ...wallet.Option) *wallet.Engine {
	opts = append([]wallet.Option{wallet.WithClock(h.clock.Now)}, opts...)
	e, err := wallet.NewEngine(h.remote, h.cache, h.sessions, models.WalletConfig{UnconfirmedGrace: 10 * time.Minute}, opts...)
	require.NoError(t, err)
	return e
}

func naira(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func balanceOf(t require.TestingT, e *wallet.Engine) decimal.Decimal {
	view, err := e.Snapshot(context.Background())
	require.NoError(t, err)
	return view.Wallet.Balance
}
