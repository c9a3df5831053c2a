package auth_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/auth"
	"party-request-go/internal/backend"
	"party-request-go/internal/backend/fakebackend"
	"party-request-go/internal/database"
	"party-request-go/internal/models"
	"party-request-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

type fixture struct {
	fake    *fakebackend.Server
	client  *backend.Client
	cache   store.CacheStore
	clock   *clock
	manager *auth.Manager
}

func newTestCache(t *testing.T, dir string) store.CacheStore {
	t.Helper()
	cache, err := database.NewService(context.Background(), models.CacheConfig{
		Path:         filepath.Join(dir, "cache.db"),
		Prefix:       "partyq",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(cache.Close)
	return cache
}

func newFixture(t *testing.T, cache store.CacheStore) *fixture {
	t.Helper()
	clk := &clock{now: time.Now()}
	fake := fakebackend.New()
	fake.Now = clk.Now
	t.Cleanup(fake.Close)

	client, err := backend.NewClient(models.BackendConfig{
		BaseURL:        fake.URL(),
		RequestTimeout: 2 * time.Second,
		RetryDelay:     5 * time.Millisecond,
		RetryWindow:    15 * time.Second,
	}, nil)
	require.NoError(t, err)

	if cache == nil {
		cache = newTestCache(t, t.TempDir())
	}
	manager, err := auth.NewManager(client, cache, models.SessionConfig{TokenTTL: 24 * time.Hour}, auth.WithClock(clk.Now))
	require.NoError(t, err)
	client.UseAuthorizer(manager)

	return &fixture{fake: fake, client: client, cache: cache, clock: clk, manager: manager}
}

func TestLoginPersistsSession(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.AddUser("ada", "secret1", models.RoleAttendee)
	ctx := context.Background()

	var published []*models.Session
	f.manager.Subscribe(func(s *models.Session) { published = append(published, s) })

	session, err := f.manager.Login(ctx, "ada", "secret1", models.RoleAttendee)
	require.NoError(t, err)
	assert.Equal(t, "ada", session.Username)
	assert.Equal(t, models.RoleAttendee, session.Role)
	assert.False(t, f.manager.IsExpired())
	assert.True(t, f.manager.RecentlyAuthenticated(time.Second))

	token, _, err := store.GetJSON[string](ctx, f.cache, session.UserId, store.KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, session.AuthToken, token)

	expiry, _, err := store.GetJSON[time.Time](ctx, f.cache, session.UserId, store.KeyTokenExpiry)
	require.NoError(t, err)
	assert.True(t, expiry.Equal(session.TokenExpiry))

	require.Len(t, published, 1)
	assert.Equal(t, session.UserId, published[0].UserId)
}

func TestLoginExpiryCappedByTokenClaim(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.TokenTTL = time.Hour
	f.fake.AddUser("kay", "secret1", models.RoleDJ)

	session, err := f.manager.Login(context.Background(), "kay", "secret1", models.RoleDJ)
	require.NoError(t, err)

	want := f.clock.Now().Add(time.Hour)
	assert.WithinDuration(t, want, session.TokenExpiry, time.Second)
}

func TestLoginInvalidInputNeverReachesNetwork(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.manager.Login(context.Background(), "", "x", models.RoleAttendee)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.manager.Login(context.Background(), "ada", "secret", models.Role("admin"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	assert.Equal(t, 0, f.fake.TotalHits())
}

func TestLoginBadCredentials(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.AddUser("ada", "secret1", models.RoleAttendee)

	_, err := f.manager.Login(context.Background(), "ada", "wrong-password", models.RoleAttendee)
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
	assert.True(t, f.manager.IsExpired())
}

func TestRegisterCreatesSession(t *testing.T) {
	f := newFixture(t, nil)

	session, err := f.manager.Register(context.Background(), models.RegisterParams{
		Role:     models.RoleDJ,
		Username: "newdj",
		Email:    "dj@example.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleDJ, session.Role)

	_, err = f.manager.Register(context.Background(), models.RegisterParams{Role: models.RoleDJ, Username: "x", Password: "1"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestLogoutClearsCacheAndIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.AddUser("ada", "secret1", models.RoleAttendee)
	ctx := context.Background()

	session, err := f.manager.Login(ctx, "ada", "secret1", models.RoleAttendee)
	require.NoError(t, err)

	require.NoError(t, f.manager.Logout(ctx))
	require.NoError(t, f.manager.Logout(ctx))

	assert.True(t, f.manager.IsExpired())
	for _, key := range []store.Key{store.KeyAuthToken, store.KeyTokenExpiry, store.KeyUserProfile} {
		_, err := f.cache.Get(ctx, session.UserId, key)
		assert.ErrorIs(t, err, store.ErrCacheMiss, key)
	}
	_, err = f.cache.Get(ctx, store.DeviceUser, store.KeyLastSession)
	assert.ErrorIs(t, err, store.ErrCacheMiss)

	_, ok := f.manager.CurrentRole(ctx)
	assert.False(t, ok)
}

// An expired token must be rejected locally: nothing is sent and the
// session is cleared.
func TestExpiredSessionRejectedWithoutNetwork(t *testing.T) {
	f := newFixture(t, nil)
	userId := f.fake.AddUser("ada", "secret1", models.RoleAttendee)
	ctx := context.Background()

	_, err := f.manager.Login(ctx, "ada", "secret1", models.RoleAttendee)
	require.NoError(t, err)

	var cleared bool
	f.manager.Subscribe(func(s *models.Session) { cleared = s == nil })

	f.clock.Advance(2 * time.Hour)
	before := f.fake.TotalHits()

	_, err = f.client.Balance(ctx, models.RoleAttendee)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
	assert.True(t, apperrors.IsReauthRequired(err))
	assert.Equal(t, before, f.fake.TotalHits())

	assert.True(t, f.manager.IsExpired())
	assert.True(t, cleared)
	_, err = f.cache.Get(ctx, userId, store.KeyAuthToken)
	assert.ErrorIs(t, err, store.ErrCacheMiss)
}

func TestHydrateAfterRestart(t *testing.T) {
	dir := t.TempDir()
	cache := newTestCache(t, dir)
	first := newFixture(t, cache)
	first.fake.AddUser("kay", "secret1", models.RoleDJ)
	ctx := context.Background()

	session, err := first.manager.Login(ctx, "kay", "secret1", models.RoleDJ)
	require.NoError(t, err)

	restarted, err := auth.NewManager(first.client, cache, models.SessionConfig{TokenTTL: 24 * time.Hour}, auth.WithClock(first.clock.Now))
	require.NoError(t, err)

	role, ok := restarted.CurrentRole(ctx)
	require.True(t, ok)
	assert.Equal(t, models.RoleDJ, role)
	assert.True(t, restarted.IsExpired())

	hydrated, err := restarted.Hydrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.UserId, hydrated.UserId)
	assert.Equal(t, session.AuthToken, hydrated.AuthToken)
	assert.False(t, restarted.IsExpired())
}

func TestHydrateExpiredSessionPurges(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.AddUser("kay", "secret1", models.RoleDJ)
	ctx := context.Background()

	session, err := f.manager.Login(ctx, "kay", "secret1", models.RoleDJ)
	require.NoError(t, err)

	restarted, err := auth.NewManager(f.client, f.cache, models.SessionConfig{TokenTTL: 24 * time.Hour}, auth.WithClock(func() time.Time {
		return f.clock.Now().Add(48 * time.Hour)
	}))
	require.NoError(t, err)

	_, err = restarted.Hydrate(ctx)
	assert.True(t, apperrors.IsReauthRequired(err))
	_, err = f.cache.Get(ctx, session.UserId, store.KeyAuthToken)
	assert.ErrorIs(t, err, store.ErrCacheMiss)
}

type brokenReadCache struct {
	store.CacheStore
}

func (c brokenReadCache) Get(ctx context.Context, userId string, key store.Key) (*store.Entry, error) {
	if key == store.KeyAuthToken {
		return nil, errors.New("disk unavailable")
	}
	return c.CacheStore.Get(ctx, userId, key)
}

func TestLoginFailsWhenPersistenceCannotBeVerified(t *testing.T) {
	inner := newTestCache(t, t.TempDir())
	f := newFixture(t, brokenReadCache{inner})
	userId := f.fake.AddUser("ada", "secret1", models.RoleAttendee)
	ctx := context.Background()

	_, err := f.manager.Login(ctx, "ada", "secret1", models.RoleAttendee)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
	assert.True(t, f.manager.IsExpired())

	_, err = inner.Get(ctx, userId, store.KeyUserProfile)
	assert.ErrorIs(t, err, store.ErrCacheMiss)
	_, err = inner.Get(ctx, store.DeviceUser, store.KeyLastSession)
	assert.ErrorIs(t, err, store.ErrCacheMiss)
}

func TestUnauthorizedOnlyTearsDownForIdentityEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	f.fake.AddUser("ada", "secret1", models.RoleAttendee)
	ctx := context.Background()

	_, err := f.manager.Login(ctx, "ada", "secret1", models.RoleAttendee)
	require.NoError(t, err)
	f.fake.RevokeTokens()

	_, err = f.client.Balance(ctx, models.RoleAttendee)
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
	assert.False(t, f.manager.IsExpired(), "a 401 on a wallet call must not sign the user out")
	assert.Equal(t, 2, f.fake.Hits("/user_wallet/check/wal_bal/user/"), "fresh session gets exactly one retry")

	_, err = f.manager.Verify(ctx)
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)
	assert.True(t, f.manager.IsExpired(), "a 401 on the identity check signs the user out")
}
