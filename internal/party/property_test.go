package party_test

import (
	"context"
	"fmt"
	"testing"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/models"
	"party-request-go/internal/party"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var allStatuses = []models.SongStatus{models.SongPending, models.SongPlaying, models.SongPlayed, models.SongDeclined}

func TestAtMostOneSongPlays(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		n := rapid.IntRange(1, 6).Draw(t, "songs")
		songs := make([]models.Song, n)
		for i := range songs {
			songs[i] = song(fmt.Sprintf("s%d", i), int64(rapid.IntRange(5, 20).Draw(t, "price"))*100, models.SongPending, i)
		}
		h, err := hostedParty(testParty(songs...))
		require.NoError(t, err)

		for step := 0; step < 20; step++ {
			id := fmt.Sprintf("s%d", rapid.IntRange(0, n-1).Draw(t, "song"))
			var err error
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				_, err = h.engine.PlaySong(ctx, "hub-1", id)
			case 1:
				_, err = h.engine.DeclineSong(ctx, "hub-1", id)
			case 2:
				_, err = h.engine.MarkSongAsPlayed(ctx, "hub-1", id)
			}
			if err != nil {
				require.ErrorIs(t, err, apperrors.ErrConflict)
			}

			p, err := h.engine.Party(ctx, "hub-1")
			require.NoError(t, err)
			playing := 0
			earned := decimal.Zero
			for _, s := range p.Songs {
				switch s.Status {
				case models.SongPlaying:
					playing++
					earned = earned.Add(s.Price)
				case models.SongPlayed:
					earned = earned.Add(s.Price)
				}
			}
			require.LessOrEqual(t, playing, 1)
			require.True(t, p.Earnings.Equal(earned), "earnings %s, played %s", p.Earnings, earned)
			require.True(t, h.wallet.received.Equal(earned))
		}
	})
}

func TestCloseFailsIffSongsOpen(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		n := rapid.IntRange(0, 5).Draw(t, "songs")
		songs := make([]models.Song, n)
		open := false
		playing := false
		for i := range songs {
			status := rapid.SampledFrom(allStatuses).Draw(t, "status")
			if status == models.SongPlaying {
				if playing {
					status = models.SongPlayed
				}
				playing = true
			}
			open = open || status.IsOpen()
			songs[i] = song(fmt.Sprintf("s%d", i), 500, status, i)
		}
		h, err := hostedParty(testParty(songs...))
		require.NoError(t, err)

		err = h.engine.CloseParty(ctx, "hub-1")
		p, getErr := h.engine.Party(ctx, "hub-1")
		require.NoError(t, getErr)
		if open {
			require.ErrorIs(t, err, apperrors.ErrConflict)
			require.True(t, p.IsActive)
			require.Zero(t, h.remote.closes)
			return
		}
		require.NoError(t, err)
		require.False(t, p.IsActive)
		created, err := h.engine.CreatedParties(ctx)
		require.NoError(t, err)
		require.Empty(t, created)
	})
}

func TestPendingQueueIsOrderedPermutation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(t, "songs")
		songs := make([]models.Song, n)
		pending := 0
		for i := range songs {
			status := rapid.SampledFrom(allStatuses).Draw(t, "status")
			if status == models.SongPending {
				pending++
			}
			songs[i] = song(fmt.Sprintf("s%d", i), int64(rapid.IntRange(1, 4).Draw(t, "price"))*100, status, i)
		}

		queue := party.PendingQueue(songs)
		require.Len(t, queue, pending)
		for i := 1; i < len(queue); i++ {
			prev, cur := queue[i-1], queue[i]
			assert.True(t, prev.Price.GreaterThanOrEqual(cur.Price))
			if prev.Price.Equal(cur.Price) {
				assert.True(t, prev.RequestedAt.Before(cur.RequestedAt))
			}
		}
	})
}
