package party_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/models"
	"party-request-go/internal/party"
	"party-request-go/internal/store"

	"github.com/shopspring/decimal"
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

func newSession(userId string, role models.Role) *models.Session {
	return &models.Session{
		UserId:      userId,
		Username:    "user-" + userId,
		Role:        role,
		AuthToken:   "token-" + userId,
		TokenExpiry: time.Now().Add(time.Hour),
	}
}

// stubRemote answers from a fixed party and records what it was asked.
type stubRemote struct {
	mu sync.Mutex

	party      models.Party
	listed     []models.Party
	listErr    error
	updateErr  error
	requestErr error
	closeErr   error
	nextSong   int

	statusUpdates []models.SongStatus
	closes        int
}

func (r *stubRemote) CreateParty(ctx context.Context, params models.CreatePartyParams) (*models.Party, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.party.Clone(), nil
}

func (r *stubRemote) JoinParty(ctx context.Context, passcode string) (*models.Party, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if passcode != r.party.Passcode {
		return nil, apperrors.New(apperrors.CodeNotFound, "Hub not found")
	}
	return r.party.Clone(), nil
}

func (r *stubRemote) PartyDetails(ctx context.Context, passcode string) (*models.Party, error) {
	return r.JoinParty(ctx, passcode)
}

func (r *stubRemote) SongList(ctx context.Context, partyId string) ([]models.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Song(nil), r.party.Songs...), nil
}

func (r *stubRemote) NowPlaying(ctx context.Context, role models.Role, partyId string) (*models.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.party.PlayingIndex(); i >= 0 {
		song := r.party.Songs[i]
		return &song, nil
	}
	return nil, nil
}

func (r *stubRemote) ListParties(ctx context.Context, role models.Role) ([]models.Party, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	if r.listed != nil {
		return append([]models.Party(nil), r.listed...), nil
	}
	return []models.Party{*r.party.Clone()}, nil
}

func (r *stubRemote) CloseParty(ctx context.Context, partyId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return r.closeErr
}

func (r *stubRemote) UpdateParty(ctx context.Context, partyId string, settings models.PartySettings) (*models.Party, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	return nil, nil
}

func (r *stubRemote) RequestSong(ctx context.Context, partyId string, params models.SongRequestParams) (*models.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.requestErr != nil {
		return nil, r.requestErr
	}
	r.nextSong++
	return &models.Song{Id: fmt.Sprintf("srv-song-%d", r.nextSong), Status: models.SongPending}, nil
}

func (r *stubRemote) UpdateSongStatus(ctx context.Context, partyId, songId string, status models.SongStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusUpdates = append(r.statusUpdates, status)
	return r.updateErr
}

// stubWallet keeps a bare balance.
type stubWallet struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	received decimal.Decimal
	voided   []string
	next     int
}

func (w *stubWallet) PayForItem(ctx context.Context, amount decimal.Decimal, description string) (*models.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if amount.GreaterThan(w.balance) {
		return nil, apperrors.New(apperrors.CodeInsufficientFunds, "insufficient funds")
	}
	w.balance = w.balance.Sub(amount)
	w.next++
	return &models.Transaction{Id: fmt.Sprintf("pay-%d", w.next), Amount: amount.Neg(), Kind: models.KindPayment, Status: models.StatusCompleted}, nil
}

func (w *stubWallet) VoidPayment(ctx context.Context, transactionId string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.voided = append(w.voided, transactionId)
	return nil
}

func (w *stubWallet) ReceivePayment(ctx context.Context, amount decimal.Decimal, description string) (*models.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.received = w.received.Add(amount)
	return &models.Transaction{Id: "recv", Amount: amount, Kind: models.KindSongPayment, Status: models.StatusCompleted}, nil
}

type stubRefunder struct {
	mu      sync.Mutex
	credits map[string]decimal.Decimal
}

func (r *stubRefunder) CreditRefund(ctx context.Context, userId string, amount decimal.Decimal, reference, description string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.credits == nil {
		r.credits = make(map[string]decimal.Decimal)
	}
	r.credits[userId] = r.credits[userId].Add(amount)
	return true, nil
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
	engine   *party.Engine
	remote   *stubRemote
	wallet   *stubWallet
	refunds  *stubRefunder
	sessions *stubSessions
	cache    *store.Memory
	clock    *clock
}

var start = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

func naira(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func song(id string, price int64, status models.SongStatus, minute int) models.Song {
	return models.Song{
		Id:            id,
		Title:         "Title " + id,
		Artist:        "Artist",
		Price:         naira(price),
		RequestedBy:   "ada",
		RequestedById: "att-1",
		Status:        status,
		RequestedAt:   start.Add(time.Duration(minute) * time.Minute),
	}
}

func testParty(songs ...models.Song) models.Party {
	return models.Party{
		Id:              "hub-1",
		Name:            "Friday Night",
		Dj:              "kay",
		DjId:            "dj-1",
		Venue:           "Rooftop",
		Passcode:        "482911",
		MinRequestPrice: naira(500),
		ActiveUntil:     start.Add(3 * time.Hour),
		IsActive:        true,
		Songs:           songs,
		Earnings:        decimal.Zero,
	}
}

func newHarness(role models.Role, userId string, p models.Party) (*harness, error) {
	h := &harness{
		remote:   &stubRemote{party: p},
		wallet:   &stubWallet{balance: naira(1000)},
		refunds:  &stubRefunder{},
		sessions: &stubSessions{session: newSession(userId, role)},
		cache:    store.NewMemory("partyq"),
		clock:    &clock{now: start},
	}
	e, err := h.newEngine()
	if err != nil {
		return nil, err
	}
	h.engine = e
	return h, nil
}

func (h *harness) newEngine() (*party.Engine, error) {
	return party.NewEngine(h.remote, h.cache, h.sessions, h.wallet,
		models.PartyConfig{MinRequestPrice: 100, JoinBaseURL: "https://partyq.test"},
		party.WithClock(h.clock.Now), party.WithRefunder(h.refunds))
}

// hostedParty opens p for a DJ harness.
func hostedParty(p models.Party) (*harness, error) {
	h, err := newHarness(models.RoleDJ, "dj-1", p)
	if err != nil {
		return nil, err
	}
	_, err = h.engine.CreateParty(context.Background(), models.CreatePartyParams{
		Name:            p.Name,
		Venue:           p.Venue,
		MinRequestPrice: p.MinRequestPrice,
		ActiveUntil:     p.ActiveUntil,
	})
	return h, err
}
