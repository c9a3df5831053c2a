package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/backend"
	"party-request-go/internal/models"
	"party-request-go/internal/store"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var _ backend.Authorizer = (*Manager)(nil)
var _ SessionProvider = (*Manager)(nil)

// SessionProvider hands engines the live session.
type SessionProvider interface {
	Session(ctx context.Context) (*models.Session, error)
}

// Remote is the subset of the backend client the manager calls.
type Remote interface {
	Login(ctx context.Context, role models.Role, identity, secret string) (*models.LoginResult, error)
	Register(ctx context.Context, params models.RegisterParams) (*models.LoginResult, error)
	Me(ctx context.Context, role models.Role) (*models.User, error)
}

// Listener receives the new session, or nil after logout or expiry.
type Listener func(session *models.Session)

type lastSession struct {
	UserId string      `json:"user_id"`
	Role   models.Role `json:"role"`
}

type loginInput struct {
	Identity string      `validate:"required,min=3"`
	Secret   string      `validate:"required"`
	Role     models.Role `validate:"required,oneof=attendee dj"`
}

// Manager owns the token lifecycle and gates every backend call.
type Manager struct {
	remote   Remote
	cache    store.CacheStore
	ttl      time.Duration
	now      func() time.Time
	validate *validator.Validate

	mu        sync.RWMutex
	session   *models.Session
	listeners map[int]Listener
	nextId    int
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(remote Remote, cache store.CacheStore, cfg models.SessionConfig, opts ...Option) (*Manager, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %v", cfg.TokenTTL)
	}
	m := &Manager{
		remote:    remote,
		cache:     cache,
		ttl:       cfg.TokenTTL,
		now:       time.Now,
		validate:  validator.New(),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Subscribe registers fn for session changes and returns an unsubscribe func.
func (m *Manager) Subscribe(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextId
	m.nextId++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) publish(session *models.Session) {
	m.mu.RLock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.RUnlock()

	for _, fn := range listeners {
		var copied *models.Session
		if session != nil {
			s := *session
			copied = &s
		}
		fn(copied)
	}
}

func (m *Manager) Login(ctx context.Context, identity, secret string, role models.Role) (*models.Session, error) {
	if err := m.validate.Struct(loginInput{Identity: identity, Secret: secret, Role: role}); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid login input")
	}

	result, err := m.remote.Login(ctx, role, identity, secret)
	if err != nil {
		return nil, err
	}
	return m.establish(ctx, result, role)
}

func (m *Manager) Register(ctx context.Context, params models.RegisterParams) (*models.Session, error) {
	if err := m.validate.Struct(params); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid registration input")
	}

	result, err := m.remote.Register(ctx, params)
	if err != nil {
		return nil, err
	}
	return m.establish(ctx, result, params.Role)
}

// establish persists a fresh session and only then publishes it. A session
// that cannot be read back from the cache is rejected and its partial state
// purged.
func (m *Manager) establish(ctx context.Context, result *models.LoginResult, role models.Role) (*models.Session, error) {
	now := m.now()
	user := result.User
	if !user.Role.IsValid() {
		user.Role = role
	}
	session := &models.Session{
		UserId:      user.Id,
		Username:    user.Username,
		Role:        user.Role,
		UserType:    user.UserType,
		AuthToken:   result.Token,
		TokenExpiry: computeExpiry(result.Token, now, m.ttl),
		IssuedAt:    now,
	}
	if session.ExpiredAt(now) {
		return nil, apperrors.New(apperrors.CodeAuthentication, "issued token is already expired")
	}

	if err := m.persist(ctx, session, user); err != nil {
		zap.L().Error("Failed to persist session, rolling back",
			zap.String("user_id", session.UserId),
			zap.Error(err))
		if purgeErr := m.purge(ctx, session.UserId); purgeErr != nil {
			zap.L().Warn("Failed to purge partial session", zap.Error(purgeErr))
		}
		return nil, apperrors.Wrap(apperrors.CodeAuthentication, err, "unable to persist session")
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	zap.L().Info("Session established",
		zap.String("user_id", session.UserId),
		zap.String("role", string(session.Role)),
		zap.Time("expires_at", session.TokenExpiry))

	m.publish(session)
	copied := *session
	return &copied, nil
}

func (m *Manager) persist(ctx context.Context, session *models.Session, user models.User) error {
	if _, err := store.PutJSON(ctx, m.cache, session.UserId, store.KeyAuthToken, session.AuthToken, store.SourceServer, 0); err != nil {
		return err
	}
	if _, err := store.PutJSON(ctx, m.cache, session.UserId, store.KeyTokenExpiry, session.TokenExpiry, store.SourceLocal, 0); err != nil {
		return err
	}
	if _, err := store.PutJSON(ctx, m.cache, session.UserId, store.KeyUserProfile, user, store.SourceServer, 0); err != nil {
		return err
	}
	pointer := lastSession{UserId: session.UserId, Role: session.Role}
	if _, err := store.PutJSON(ctx, m.cache, store.DeviceUser, store.KeyLastSession, pointer, store.SourceLocal, 0); err != nil {
		return err
	}

	stored, _, err := store.GetJSON[string](ctx, m.cache, session.UserId, store.KeyAuthToken)
	if err != nil {
		return fmt.Errorf("reading back auth token: %w", err)
	}
	if stored != session.AuthToken {
		return errors.New("auth token read back does not match")
	}
	return nil
}

func (m *Manager) purge(ctx context.Context, userId string) error {
	var errs error
	if userId != "" {
		errs = multierr.Append(errs, m.cache.Purge(ctx, userId))
	}

	pointer, _, err := store.GetJSON[lastSession](ctx, m.cache, store.DeviceUser, store.KeyLastSession)
	switch {
	case errors.Is(err, store.ErrCacheMiss):
	case err != nil:
		errs = multierr.Append(errs, err)
	case userId == "" || pointer.UserId == userId:
		errs = multierr.Append(errs, m.cache.Delete(ctx, store.DeviceUser, store.KeyLastSession))
	}
	return errs
}

// Logout clears the in-memory session and every cache entry of the identity.
// Calling it without a session is a no-op beyond clearing the device pointer.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.mu.Unlock()

	userId := ""
	if session != nil {
		userId = session.UserId
	} else if pointer, _, err := store.GetJSON[lastSession](ctx, m.cache, store.DeviceUser, store.KeyLastSession); err == nil {
		userId = pointer.UserId
	}

	err := m.purge(ctx, userId)
	if session != nil {
		zap.L().Info("Logged out", zap.String("user_id", session.UserId))
		m.publish(nil)
	}
	if err != nil {
		return fmt.Errorf("unable to clear cached session: %w", err)
	}
	return nil
}

// IsExpired reports whether there is no usable session at this instant.
func (m *Manager) IsExpired() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.ExpiredAt(m.now())
}

// CurrentRole answers from memory, falling back to the cache while the
// session has not been hydrated yet.
func (m *Manager) CurrentRole(ctx context.Context) (models.Role, bool) {
	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()
	if session != nil {
		return session.Role, true
	}

	pointer, _, err := store.GetJSON[lastSession](ctx, m.cache, store.DeviceUser, store.KeyLastSession)
	if err != nil || !pointer.Role.IsValid() {
		return "", false
	}
	return pointer.Role, true
}

// Hydrate restores the last session of this device from the cache.
func (m *Manager) Hydrate(ctx context.Context) (*models.Session, error) {
	pointer, _, err := store.GetJSON[lastSession](ctx, m.cache, store.DeviceUser, store.KeyLastSession)
	if errors.Is(err, store.ErrCacheMiss) {
		return nil, apperrors.New(apperrors.CodeAuthentication, "no stored session").ReauthRequired()
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read last session: %w", err)
	}

	token, tokenEntry, tokenErr := store.GetJSON[string](ctx, m.cache, pointer.UserId, store.KeyAuthToken)
	expiry, _, expiryErr := store.GetJSON[time.Time](ctx, m.cache, pointer.UserId, store.KeyTokenExpiry)
	user, _, userErr := store.GetJSON[models.User](ctx, m.cache, pointer.UserId, store.KeyUserProfile)
	if err := multierr.Combine(tokenErr, expiryErr, userErr); err != nil {
		zap.L().Warn("Stored session incomplete, discarding", zap.String("user_id", pointer.UserId), zap.Error(err))
		if purgeErr := m.purge(ctx, pointer.UserId); purgeErr != nil {
			zap.L().Warn("Failed to purge incomplete session", zap.Error(purgeErr))
		}
		return nil, apperrors.Wrap(apperrors.CodeAuthentication, err, "stored session incomplete").ReauthRequired()
	}

	session := &models.Session{
		UserId:      pointer.UserId,
		Username:    user.Username,
		Role:        pointer.Role,
		UserType:    user.UserType,
		AuthToken:   token,
		TokenExpiry: expiry,
		IssuedAt:    tokenEntry.UpdatedAt,
	}
	if session.ExpiredAt(m.now()) {
		if purgeErr := m.purge(ctx, pointer.UserId); purgeErr != nil {
			zap.L().Warn("Failed to purge expired session", zap.Error(purgeErr))
		}
		return nil, apperrors.New(apperrors.CodeAuthentication, "session expired").ReauthRequired()
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	zap.L().Info("Session hydrated from cache",
		zap.String("user_id", session.UserId),
		zap.Time("expires_at", session.TokenExpiry))
	m.publish(session)

	copied := *session
	return &copied, nil
}

// Session returns the live session, tearing it down if it has expired.
func (m *Manager) Session(ctx context.Context) (*models.Session, error) {
	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()

	if session == nil {
		return nil, apperrors.New(apperrors.CodeAuthentication, "not signed in").ReauthRequired()
	}
	if session.ExpiredAt(m.now()) {
		m.expire(ctx, session)
		return nil, apperrors.New(apperrors.CodeAuthentication, "session expired").ReauthRequired()
	}
	copied := *session
	return &copied, nil
}

func (m *Manager) Token(ctx context.Context) (string, error) {
	session, err := m.Session(ctx)
	if err != nil {
		return "", err
	}
	return session.AuthToken, nil
}

func (m *Manager) expire(ctx context.Context, session *models.Session) {
	m.mu.Lock()
	if m.session != session {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.mu.Unlock()

	zap.L().Warn("Session expired, clearing cached state",
		zap.String("user_id", session.UserId),
		zap.Time("expired_at", session.TokenExpiry))
	if err := m.purge(ctx, session.UserId); err != nil {
		zap.L().Error("Failed to purge expired session", zap.Error(err))
	}
	m.publish(nil)
}

// HandleUnauthorized tears the session down only when an identity endpoint
// rejected it. Elsewhere a 401 is left to the caller.
func (m *Manager) HandleUnauthorized(ctx context.Context, endpoint backend.Endpoint, err error) {
	if !endpoint.AuthClass {
		zap.L().Warn("Unauthorized response on non-auth endpoint, keeping session",
			zap.String("endpoint", endpoint.Name),
			zap.Error(err))
		return
	}

	m.mu.RLock()
	signedIn := m.session != nil
	m.mu.RUnlock()
	if !signedIn {
		return
	}

	zap.L().Warn("Identity check rejected, signing out",
		zap.String("endpoint", endpoint.Name),
		zap.Error(err))
	if logoutErr := m.Logout(ctx); logoutErr != nil {
		zap.L().Error("Failed to clear rejected session", zap.Error(logoutErr))
	}
}

func (m *Manager) RecentlyAuthenticated(window time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return false
	}
	return m.now().Sub(m.session.IssuedAt) <= window
}

// Verify confirms the session with the backend's identity endpoint and
// refreshes the cached profile.
func (m *Manager) Verify(ctx context.Context) (*models.User, error) {
	session, err := m.Session(ctx)
	if err != nil {
		return nil, err
	}
	user, err := m.remote.Me(ctx, session.Role)
	if err != nil {
		return nil, err
	}
	if _, err := store.PutJSON(ctx, m.cache, session.UserId, store.KeyUserProfile, *user, store.SourceServer, 0); err != nil {
		zap.L().Warn("Failed to cache profile", zap.Error(err))
	}
	return user, nil
}
