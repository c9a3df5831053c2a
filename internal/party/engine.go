package party

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

// Remote is the subset of the backend client the party engine calls.
type Remote interface {
	CreateParty(ctx context.Context, params models.CreatePartyParams) (*models.Party, error)
	JoinParty(ctx context.Context, passcode string) (*models.Party, error)
	PartyDetails(ctx context.Context, passcode string) (*models.Party, error)
	SongList(ctx context.Context, partyId string) ([]models.Song, error)
	NowPlaying(ctx context.Context, role models.Role, partyId string) (*models.Song, error)
	ListParties(ctx context.Context, role models.Role) ([]models.Party, error)
	CloseParty(ctx context.Context, partyId string) error
	UpdateParty(ctx context.Context, partyId string, settings models.PartySettings) (*models.Party, error)
	RequestSong(ctx context.Context, partyId string, params models.SongRequestParams) (*models.Song, error)
	UpdateSongStatus(ctx context.Context, partyId, songId string, status models.SongStatus) error
}

// Wallet is the signed-in user's wallet.
type Wallet interface {
	PayForItem(ctx context.Context, amount decimal.Decimal, description string) (*models.Transaction, error)
	VoidPayment(ctx context.Context, transactionId string) error
	ReceivePayment(ctx context.Context, amount decimal.Decimal, description string) (*models.Transaction, error)
}

// Refunder credits requesters whose wallets live in this process.
type Refunder interface {
	CreditRefund(ctx context.Context, userId string, amount decimal.Decimal, reference, description string) (bool, error)
}

// View is a copy of the party state visible to the signed-in user.
type View struct {
	Current *models.Party
	Joined  []models.Party
	Created []models.Party
	Closed  []models.Party
	Source  store.Source
}

// Engine owns party membership and song queues for the signed-in user.
// Parties live in an arena keyed by id; mutations of one party are
// serialized by that party's lock, held from the local change through the
// remote call to the final state.
type Engine struct {
	remote      Remote
	cache       store.CacheStore
	sessions    SessionProvider
	wallet      Wallet
	refunds     Refunder
	metrics     *metrics.SyncMetrics
	now         func() time.Time
	validate    *validator.Validate
	minPrice    decimal.Decimal
	joinBaseURL string
	group       singleflight.Group

	generation atomic.Uint64

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	mu        sync.Mutex
	userId    string
	loadedGen uint64
	loaded    bool
	parties   map[string]*models.Party
	joined    []string
	created   []string
	closed    []string
	current   string
	source    store.Source
	revisions map[store.Key]int64
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRefunder lets declines credit requesters' resident wallets.
func WithRefunder(r Refunder) Option {
	return func(e *Engine) { e.refunds = r }
}

func NewEngine(remote Remote, cache store.CacheStore, sessions SessionProvider, w Wallet, cfg models.PartyConfig, opts ...Option) (*Engine, error) {
	if remote == nil || cache == nil || sessions == nil || w == nil {
		return nil, fmt.Errorf("remote, cache, session provider and wallet are required")
	}
	minPrice := cfg.MinRequestPrice
	if minPrice < 100 {
		minPrice = 100
	}
	e := &Engine{
		remote:      remote,
		cache:       cache,
		sessions:    sessions,
		wallet:      w,
		now:         time.Now,
		validate:    validator.New(),
		minPrice:    decimal.NewFromInt(minPrice),
		joinBaseURL: cfg.JoinBaseURL,
		locks:       make(map[string]*sync.Mutex),
		parties:     make(map[string]*models.Party),
		revisions:   make(map[store.Key]int64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// OnSessionChange invalidates everything loaded for the previous user.
// Responses still in flight for that user are discarded when they land.
func (e *Engine) OnSessionChange(session *models.Session) {
	e.generation.Add(1)
}

// partyLock returns the mutation lock of one party.
func (e *Engine) partyLock(id string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// begin resolves the session and makes sure its state is loaded. The
// returned generation guards commits against a session change.
func (e *Engine) begin(ctx context.Context) (*models.Session, uint64, error) {
	session, err := e.sessions.Session(ctx)
	if err != nil {
		return nil, 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadLocked(ctx, session.UserId)
	return session, e.loadedGen, nil
}

func (e *Engine) loadLocked(ctx context.Context, userId string) {
	gen := e.generation.Load()
	if e.loaded && e.userId == userId && e.loadedGen == gen {
		return
	}
	e.userId = userId
	e.loadedGen = gen
	e.loaded = true
	e.parties = make(map[string]*models.Party)
	e.joined, e.created, e.closed, e.current = nil, nil, nil, ""
	e.revisions = make(map[store.Key]int64)
	e.source = store.SourceLocal
	e.readCacheLocked(ctx, userId)
}

// readCacheLocked installs the cached lists. It reports whether anything
// was cached.
func (e *Engine) readCacheLocked(ctx context.Context, userId string) bool {
	found := false
	load := func(key store.Key) []string {
		parties, entry, err := store.GetJSON[[]models.Party](ctx, e.cache, userId, key)
		if err != nil {
			if !errors.Is(err, store.ErrCacheMiss) {
				zap.L().Warn("Failed to read cached parties", zap.String("key", string(key)), zap.Error(err))
			}
			return nil
		}
		found = true
		e.revisions[key] = entry.Revision
		ids := make([]string, 0, len(parties))
		for i := range parties {
			p := parties[i]
			e.parties[p.Id] = &p
			ids = append(ids, p.Id)
		}
		return ids
	}
	e.joined = load(store.KeyJoinedParties)
	e.created = load(store.KeyCreatedParties)
	e.closed = load(store.KeyClosedParties)

	current, entry, err := store.GetJSON[models.Party](ctx, e.cache, userId, store.KeyCurrentParty)
	if err == nil {
		found = true
		e.revisions[store.KeyCurrentParty] = entry.Revision
		if _, ok := e.parties[current.Id]; !ok {
			e.parties[current.Id] = &current
		}
		e.current = current.Id
	} else if !errors.Is(err, store.ErrCacheMiss) {
		zap.L().Warn("Failed to read cached current party", zap.Error(err))
	}
	if found {
		e.source = store.SourceCached
	}
	return found
}

func (e *Engine) listLocked(ids []string) []models.Party {
	out := make([]models.Party, 0, len(ids))
	for _, id := range ids {
		if p, ok := e.parties[id]; ok {
			out = append(out, *p.Clone())
		}
	}
	return out
}

// persistLocked mirrors the arena into the cache. Failed writes are logged;
// memory stays authoritative for this process.
func (e *Engine) persistLocked(ctx context.Context) {
	write := func(key store.Key, v any) {
		rev, err := store.WriteThrough(ctx, e.cache, e.userId, key, v, e.source, e.revisions[key])
		if err != nil {
			zap.L().Error("Failed to cache party state", zap.String("key", string(key)), zap.Error(err))
			return
		}
		e.revisions[key] = rev
	}
	write(store.KeyJoinedParties, e.listLocked(e.joined))
	write(store.KeyCreatedParties, e.listLocked(e.created))
	write(store.KeyClosedParties, e.listLocked(e.closed))

	if p, ok := e.parties[e.current]; ok && e.current != "" {
		write(store.KeyCurrentParty, p)
		return
	}
	if err := e.cache.Delete(ctx, e.userId, store.KeyCurrentParty); err != nil {
		zap.L().Warn("Failed to clear cached current party", zap.Error(err))
	}
	delete(e.revisions, store.KeyCurrentParty)
}

// get returns a copy of a party from the arena.
func (e *Engine) get(id string) (*models.Party, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.parties[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// commit installs p in the arena unless the session changed since gen.
func (e *Engine) commit(ctx context.Context, gen uint64, source store.Source, p *models.Party, membership func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation.Load() != gen || e.loadedGen != gen {
		zap.L().Info("Discarding party update from a previous session", zap.String("party_id", p.Id))
		return ErrSessionChanged
	}
	e.parties[p.Id] = p.Clone()
	if membership != nil {
		membership()
	}
	e.source = source
	e.persistLocked(ctx)
	return nil
}

func (e *Engine) viewLocked() *View {
	v := &View{
		Joined:  e.listLocked(e.joined),
		Created: e.listLocked(e.created),
		Closed:  e.listLocked(e.closed),
		Source:  e.source,
	}
	if p, ok := e.parties[e.current]; ok && e.current != "" {
		v.Current = p.Clone()
	}
	return v
}

// Snapshot returns the loaded state without contacting the backend.
func (e *Engine) Snapshot(ctx context.Context) (*View, error) {
	if _, _, err := e.begin(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked(), nil
}

func (e *Engine) CurrentParty(ctx context.Context) (*models.Party, error) {
	v, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return v.Current, nil
}

// JoinedParties lists the active parties the user joined.
func (e *Engine) JoinedParties(ctx context.Context) ([]models.Party, error) {
	v, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return v.Joined, nil
}

func (e *Engine) CreatedParties(ctx context.Context) ([]models.Party, error) {
	v, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return v.Created, nil
}

func (e *Engine) ClosedParties(ctx context.Context) ([]models.Party, error) {
	v, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return v.Closed, nil
}

// Party returns one party from the arena.
func (e *Engine) Party(ctx context.Context, id string) (*models.Party, error) {
	if _, _, err := e.begin(ctx); err != nil {
		return nil, err
	}
	p, ok := e.get(id)
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "party %s not found", id)
	}
	return p, nil
}

// SelectParty makes an active joined or created party current.
func (e *Engine) SelectParty(ctx context.Context, id string) error {
	if _, _, err := e.begin(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.parties[id]
	if !ok || !(contains(e.joined, id) || contains(e.created, id)) {
		return apperrors.Newf(apperrors.CodeNotFound, "party %s not found", id)
	}
	if !p.IsActive {
		return apperrors.Newf(apperrors.CodeConflict, "party %s is closed", id)
	}
	e.current = id
	e.source = store.SourceLocal
	e.persistLocked(ctx)
	return nil
}

// LeaveParty drops a joined party from this device.
func (e *Engine) LeaveParty(ctx context.Context, id string) error {
	if _, _, err := e.begin(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !contains(e.joined, id) {
		return apperrors.Newf(apperrors.CodeNotFound, "party %s not joined", id)
	}
	e.joined = removeId(e.joined, id)
	if e.current == id {
		e.current = ""
	}
	e.source = store.SourceLocal
	e.persistLocked(ctx)
	zap.L().Info("Left party", zap.String("user_id", e.userId), zap.String("party_id", id))
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeId(ids []string, id string) []string {
	return reconcile.Remove(ids, id, identity)
}

func addId(ids []string, id string) []string {
	return reconcile.Upsert(ids, id, identity)
}

func identity(s string) string { return s }
