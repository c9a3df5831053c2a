package backend_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/backend"
	"party-request-go/internal/backend/fakebackend"
	"party-request-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth struct {
	mu           sync.Mutex
	token        string
	err          error
	recent       bool
	unauthorized []backend.Endpoint
}

func (s *stubAuth) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.err
}

func (s *stubAuth) HandleUnauthorized(ctx context.Context, ep backend.Endpoint, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unauthorized = append(s.unauthorized, ep)
}

func (s *stubAuth) RecentlyAuthenticated(window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recent
}

func newTestClient(t *testing.T, baseURL string, auth backend.Authorizer) *backend.Client {
	t.Helper()
	client, err := backend.NewClient(models.BackendConfig{
		BaseURL:        baseURL,
		RequestTimeout: 2 * time.Second,
		RetryDelay:     10 * time.Millisecond,
		RetryWindow:    time.Minute,
	}, nil)
	require.NoError(t, err)
	if auth != nil {
		client.UseAuthorizer(auth)
	}
	return client
}

func TestExpiredSessionNeverReachesNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	expired := apperrors.New(apperrors.CodeAuthentication, "session expired").ReauthRequired()
	client := newTestClient(t, srv.URL, &stubAuth{err: expired})

	_, err := client.Balance(context.Background(), models.RoleAttendee)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAuthentication))
	assert.True(t, apperrors.IsReauthRequired(err))
	assert.Equal(t, int32(0), hits.Load())
}

func TestUnauthorizedRetriedOnceRightAfterLogin(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"error","data":{"message":"token not active yet"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","data":{"balance":250}}`))
	}))
	defer srv.Close()

	auth := &stubAuth{token: "t", recent: true}
	client := newTestClient(t, srv.URL, auth)

	balance, err := client.Balance(context.Background(), models.RoleAttendee)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, int32(2), hits.Load())
	assert.Empty(t, auth.unauthorized)
}

func TestUnauthorizedNeverRetriedTwice(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	auth := &stubAuth{token: "t", recent: true}
	client := newTestClient(t, srv.URL, auth)

	_, err := client.TransactionHistory(context.Background(), models.RoleDJ)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAuthentication))
	assert.Equal(t, int32(2), hits.Load())
	require.Len(t, auth.unauthorized, 1)
	assert.False(t, auth.unauthorized[0].AuthClass)
}

func TestUnauthorizedNotRetriedForStaleSession(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &stubAuth{token: "t", recent: false})

	_, err := client.Balance(context.Background(), models.RoleAttendee)
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestLoginUnauthorizedIsAuthClass(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":"error","data":{"message":"Invalid credentials"}}`))
	}))
	defer srv.Close()

	auth := &stubAuth{recent: true}
	client := newTestClient(t, srv.URL, auth)

	_, err := client.Login(context.Background(), models.RoleAttendee, "ada", "wrong")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
	require.Len(t, auth.unauthorized, 1)
	assert.True(t, auth.unauthorized[0].AuthClass)

	te := apperrors.As(err)
	require.NotNil(t, te)
	assert.Equal(t, "Invalid credentials", te.Message())
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, apperrors.ErrValidation},
		{http.StatusUnprocessableEntity, apperrors.ErrValidation},
		{http.StatusPaymentRequired, apperrors.ErrInsufficientFunds},
		{http.StatusForbidden, apperrors.ErrAuthorization},
		{http.StatusNotFound, apperrors.ErrNotFound},
		{http.StatusConflict, apperrors.ErrConflict},
		{http.StatusInternalServerError, apperrors.ErrServer},
		{http.StatusBadGateway, apperrors.ErrServer},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client := newTestClient(t, srv.URL, &stubAuth{token: "t"})

		err := client.CloseParty(context.Background(), "hub-1")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		srv.Close()
	}
}

func TestTimeoutMapsToNetwork(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := backend.NewClient(models.BackendConfig{
		BaseURL:        srv.URL,
		RequestTimeout: 50 * time.Millisecond,
		RetryDelay:     time.Millisecond,
	}, nil)
	require.NoError(t, err)
	client.UseAuthorizer(&stubAuth{token: "t"})

	_, err = client.Balance(context.Background(), models.RoleAttendee)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
	assert.True(t, backend.IsTimeout(err))
	assert.True(t, apperrors.CanFallBackToCache(err))
}

func TestBearerTokenAttached(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"status":"success","data":{"banks":[]}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, &stubAuth{token: "abc"})
	_, err := client.ListBanks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", got)
}

func TestFakeBackendRoundTrip(t *testing.T) {
	fake := fakebackend.New()
	defer fake.Close()
	fake.AddUser("kay", "secret1", models.RoleDJ)

	auth := &stubAuth{}
	client := newTestClient(t, fake.URL(), auth)
	ctx := context.Background()

	login, err := client.Login(ctx, models.RoleDJ, "kay", "secret1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleDJ, login.User.Role)
	auth.token = login.Token

	party, err := client.CreateParty(ctx, models.CreatePartyParams{
		Name:            "Rooftop",
		Venue:           "Lekki",
		MinRequestPrice: decimal.NewFromInt(500),
		ActiveUntil:     time.Now().Add(3 * time.Hour),
	})
	require.NoError(t, err)
	assert.Len(t, party.Passcode, 6)
	assert.True(t, party.IsActive)
	assert.Equal(t, "kay", party.Dj)

	parties, err := client.ListParties(ctx, models.RoleDJ)
	require.NoError(t, err)
	require.Len(t, parties, 1)
	assert.Equal(t, party.Id, parties[0].Id)

	song, err := client.NowPlaying(ctx, models.RoleDJ, party.Id)
	require.NoError(t, err)
	assert.Nil(t, song)

	me, err := client.Me(ctx, models.RoleDJ)
	require.NoError(t, err)
	assert.Equal(t, "kay", me.Username)

	require.NoError(t, client.CloseParty(ctx, party.Id))
	stored, ok := fake.Party(party.Id)
	require.True(t, ok)
	assert.False(t, stored.IsActive)
}

func TestOfflineBackendIsNetworkError(t *testing.T) {
	fake := fakebackend.New()
	defer fake.Close()
	fake.SetOffline(true)

	client := newTestClient(t, fake.URL(), &stubAuth{token: "t"})
	_, err := client.Balance(context.Background(), models.RoleAttendee)
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
}
