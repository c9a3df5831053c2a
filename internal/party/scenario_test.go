package party_test

import (
	"context"
	"testing"
	"time"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/auth"
	"party-request-go/internal/backend"
	"party-request-go/internal/backend/fakebackend"
	"party-request-go/internal/models"
	"party-request-go/internal/party"
	"party-request-go/internal/store"
	"party-request-go/internal/wallet"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// device is one signed-in client stack talking to the fake backend.
type device struct {
	manager *auth.Manager
	wallet  *wallet.Engine
	parties *party.Engine
}

func newDevice(t *testing.T, fake *fakebackend.Server, directory *wallet.Directory) *device {
	t.Helper()
	client, err := backend.NewClient(models.BackendConfig{
		BaseURL:        fake.URL(),
		RequestTimeout: 2 * time.Second,
		RetryDelay:     5 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	cache := store.NewMemory("partyq")
	manager, err := auth.NewManager(client, cache, models.SessionConfig{TokenTTL: time.Hour})
	require.NoError(t, err)
	client.UseAuthorizer(manager)

	w, err := wallet.NewEngine(client, cache, manager, models.WalletConfig{UnconfirmedGrace: time.Minute}, wallet.WithDirectory(directory))
	require.NoError(t, err)
	p, err := party.NewEngine(client, cache, manager, w,
		models.PartyConfig{MinRequestPrice: 100, JoinBaseURL: "https://partyq.test"},
		party.WithRefunder(directory))
	require.NoError(t, err)
	manager.Subscribe(w.OnSessionChange)
	manager.Subscribe(p.OnSessionChange)
	return &device{manager: manager, wallet: w, parties: p}
}

func (d *device) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	v, err := d.wallet.Snapshot(context.Background())
	require.NoError(t, err)
	return v.Wallet.Balance
}

type scene struct {
	fake     *fakebackend.Server
	dj       *device
	attendee *device
	djId     string
	guestId  string
	hub      *models.Party
}

// newScene opens a party with a 500 minimum and has a funded attendee join it.
func newScene(t *testing.T) *scene {
	t.Helper()
	ctx := context.Background()
	fake := fakebackend.New()
	t.Cleanup(fake.Close)
	directory := wallet.NewDirectory()

	s := &scene{
		fake:     fake,
		dj:       newDevice(t, fake, directory),
		attendee: newDevice(t, fake, directory),
		djId:     fake.AddUser("kay", "secret1", models.RoleDJ),
		guestId:  fake.AddUser("ada", "secret2", models.RoleAttendee),
	}
	fake.Deposit(s.guestId, naira(1000))

	_, err := s.dj.manager.Login(ctx, "kay", "secret1", models.RoleDJ)
	require.NoError(t, err)
	_, err = s.attendee.manager.Login(ctx, "ada", "secret2", models.RoleAttendee)
	require.NoError(t, err)

	s.hub, err = s.dj.parties.CreateParty(ctx, models.CreatePartyParams{
		Name:            "Friday Night",
		Venue:           "Rooftop",
		MinRequestPrice: naira(500),
		ActiveUntil:     time.Now().Add(3 * time.Hour).Truncate(time.Second),
	})
	require.NoError(t, err)

	_, err = s.attendee.parties.JoinParty(ctx, s.hub.Passcode)
	require.NoError(t, err)
	_, err = s.attendee.wallet.Refresh(ctx)
	require.NoError(t, err)
	require.True(t, s.attendee.balance(t).Equal(naira(1000)))
	return s
}

func (s *scene) request(t *testing.T, price int64) *models.Song {
	t.Helper()
	song, err := s.attendee.parties.RequestSong(context.Background(), request("Love Nwantiti", price))
	require.NoError(t, err)
	_, err = s.dj.parties.Refresh(context.Background())
	require.NoError(t, err)
	return song
}

func TestRequestPlayAndFinish(t *testing.T) {
	ctx := context.Background()
	s := newScene(t)

	song := s.request(t, 500)
	assert.Equal(t, models.SongPending, song.Status)
	assert.True(t, s.attendee.balance(t).Equal(naira(500)))
	assert.True(t, s.fake.BalanceOf(s.guestId).Equal(naira(500)))

	queue, err := s.dj.parties.Queue(ctx, s.hub.Id)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, song.Id, queue[0].Id)

	playing, err := s.dj.parties.PlaySong(ctx, s.hub.Id, song.Id)
	require.NoError(t, err)
	assert.Equal(t, models.SongPlaying, playing.Status)

	p, err := s.dj.parties.Party(ctx, s.hub.Id)
	require.NoError(t, err)
	assert.True(t, p.Earnings.Equal(naira(500)))
	assert.True(t, s.dj.balance(t).Equal(naira(500)))

	played, err := s.dj.parties.MarkSongAsPlayed(ctx, s.hub.Id, song.Id)
	require.NoError(t, err)
	assert.Equal(t, models.SongPlayed, played.Status)

	view, err := s.dj.wallet.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, view.Wallet.Balance.Equal(naira(500)))

	server, ok := s.fake.Party(s.hub.Id)
	require.True(t, ok)
	assert.Equal(t, models.SongPlayed, server.Songs[0].Status)
}

func TestDeclineRefundsResidentRequester(t *testing.T) {
	ctx := context.Background()
	s := newScene(t)

	song := s.request(t, 700)
	assert.True(t, s.attendee.balance(t).Equal(naira(300)))

	declined, err := s.dj.parties.DeclineSong(ctx, s.hub.Id, song.Id)
	require.NoError(t, err)
	assert.Equal(t, models.SongDeclined, declined.Status)
	assert.True(t, s.attendee.balance(t).Equal(naira(1000)))
	assert.True(t, s.fake.BalanceOf(s.guestId).Equal(naira(1000)))

	view, err := s.attendee.wallet.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, view.Wallet.Balance.Equal(naira(1000)))
	require.NoError(t, s.attendee.wallet.Reconcile(ctx))
}

func TestCloseWithPendingSongIsRefused(t *testing.T) {
	ctx := context.Background()
	s := newScene(t)
	song := s.request(t, 500)

	err := s.dj.parties.CloseParty(ctx, s.hub.Id)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Zero(t, s.fake.Hits("/dj_wallet/delete_hub/"+s.hub.Id))

	server, ok := s.fake.Party(s.hub.Id)
	require.True(t, ok)
	assert.True(t, server.IsActive)
	current, err := s.dj.parties.CurrentParty(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.True(t, current.IsActive)

	_, err = s.dj.parties.DeclineSong(ctx, s.hub.Id, song.Id)
	require.NoError(t, err)
	require.NoError(t, s.dj.parties.CloseParty(ctx, s.hub.Id))

	server, _ = s.fake.Party(s.hub.Id)
	assert.False(t, server.IsActive)

	view, err := s.attendee.parties.Refresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, view.Current)
	require.Len(t, view.Closed, 1)
	assert.Equal(t, s.hub.Id, view.Closed[0].Id)
}

func TestAttendeeSeesNowPlaying(t *testing.T) {
	ctx := context.Background()
	s := newScene(t)
	song := s.request(t, 600)

	_, err := s.dj.parties.PlaySong(ctx, s.hub.Id, song.Id)
	require.NoError(t, err)

	view, err := s.attendee.parties.Refresh(ctx)
	require.NoError(t, err)
	require.NotNil(t, view.Current)
	require.Len(t, view.Current.Songs, 1)
	assert.Equal(t, models.SongPlaying, view.Current.Songs[0].Status)

	s.fake.SetOffline(true)
	view, err = s.attendee.parties.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.SourceCached, view.Source)
	require.NotNil(t, view.Current)
	assert.Equal(t, s.hub.Id, view.Current.Id)
}

func TestLogoutDropsPartyState(t *testing.T) {
	ctx := context.Background()
	s := newScene(t)

	require.NoError(t, s.attendee.manager.Logout(ctx))
	_, err := s.attendee.parties.Snapshot(ctx)
	assert.ErrorIs(t, err, apperrors.ErrAuthentication)

	_, err = s.attendee.manager.Login(ctx, "ada", "secret2", models.RoleAttendee)
	require.NoError(t, err)
	view, err := s.attendee.parties.Snapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, view.Current)

	view, err = s.attendee.parties.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, view.Joined, 1)
	assert.Equal(t, s.hub.Id, view.Joined[0].Id)
}

func TestExpiryRefundsPendingRequest(t *testing.T) {
	ctx := context.Background()
	s := newScene(t)
	song := s.request(t, 700)
	assert.True(t, s.attendee.balance(t).Equal(naira(300)))

	later := party.WithClock(func() time.Time { return time.Now().Add(4 * time.Hour) })
	later(s.dj.parties)
	closed, err := s.dj.parties.HandleExpiry(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	p, err := s.dj.parties.Party(ctx, s.hub.Id)
	require.NoError(t, err)
	assert.Equal(t, models.SongDeclined, p.Songs[0].Status)
	assert.True(t, s.attendee.balance(t).Equal(naira(1000)))
	assert.True(t, s.fake.BalanceOf(s.guestId).Equal(naira(1000)))

	server, ok := s.fake.Party(s.hub.Id)
	require.True(t, ok)
	require.Len(t, server.Songs, 1)
	assert.Equal(t, song.Id, server.Songs[0].Id)
	assert.Equal(t, models.SongDeclined, server.Songs[0].Status)

	view, err := s.attendee.wallet.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, view.Wallet.Balance.Equal(naira(1000)))
	require.NoError(t, s.attendee.wallet.Reconcile(ctx))
}
