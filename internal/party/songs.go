package party

import (
	"context"
	"fmt"
	"slices"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/models"
	"party-request-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const localIdPrefix = "local-"

// RequestSong pays for a song and queues it on the current party. The
// wallet is debited before anything is queued; if the backend rejects the
// request the song is removed and the payment voided.
func (e *Engine) RequestSong(ctx context.Context, params models.SongRequestParams) (*models.Song, error) {
	if err := e.validate.Struct(params); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid song request")
	}
	if !params.Price.IsInteger() || !params.Price.IsPositive() {
		return nil, apperrors.Newf(apperrors.CodeValidation, "price must be a positive whole amount, got %s", params.Price)
	}
	session, gen, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	partyId := e.current
	member := partyId != "" && contains(e.joined, partyId)
	e.mu.Unlock()
	if !member {
		return nil, apperrors.New(apperrors.CodeAuthorization, "join a party before requesting songs")
	}

	lock := e.partyLock(partyId)
	lock.Lock()
	defer lock.Unlock()

	p, ok := e.get(partyId)
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "party %s not found", partyId)
	}
	if !p.IsActive || e.expired(p) {
		return nil, apperrors.Newf(apperrors.CodeConflict, "party %s is closed", partyId)
	}
	if params.Price.LessThan(p.MinRequestPrice) {
		return nil, apperrors.Newf(apperrors.CodeValidation, "price %s is below the party minimum %s", params.Price, p.MinRequestPrice)
	}

	payment, err := e.wallet.PayForItem(ctx, params.Price, fmt.Sprintf("Song request: %s", params.Title))
	if err != nil {
		return nil, err
	}

	local := models.Song{
		Id:            localIdPrefix + uuid.NewString(),
		Title:         params.Title,
		Artist:        params.Artist,
		Price:         params.Price,
		RequestedBy:   session.Username,
		RequestedById: session.UserId,
		Status:        models.SongPending,
		RequestedAt:   e.now().UTC(),
		AlbumArt:      params.AlbumArt,
	}
	optimistic := p.Clone()
	optimistic.Songs = append(optimistic.Songs, local)
	if err := e.commit(ctx, gen, store.SourceLocal, optimistic, nil); err != nil {
		e.voidPayment(ctx, payment)
		return nil, err
	}

	confirmed, err := e.remote.RequestSong(ctx, partyId, params)
	if err != nil {
		zap.L().Warn("Song request rejected, rolling back",
			zap.String("party_id", partyId),
			zap.String("title", params.Title),
			zap.Error(err))
		if commitErr := e.commit(ctx, gen, store.SourceLocal, p, nil); commitErr != nil {
			zap.L().Warn("Rollback skipped", zap.Error(commitErr))
		}
		e.voidPayment(ctx, payment)
		return nil, err
	}

	song := backfillSong(*confirmed, local)
	final := optimistic.Clone()
	final.Songs[final.SongIndex(local.Id)] = song
	if err := e.commit(ctx, gen, store.SourceServer, final, nil); err != nil {
		return nil, err
	}

	zap.L().Info("Song requested",
		zap.String("party_id", partyId),
		zap.String("song_id", song.Id),
		zap.String("price", song.Price.String()))
	return &song, nil
}

func (e *Engine) voidPayment(ctx context.Context, payment *models.Transaction) {
	if err := e.wallet.VoidPayment(ctx, payment.Id); err != nil {
		zap.L().Error("Failed to void song payment",
			zap.String("transaction_id", payment.Id),
			zap.Error(err))
	}
}

// backfillSong fills fields the server left out from the local request.
func backfillSong(server, local models.Song) models.Song {
	if server.Id == "" {
		server.Id = local.Id
	}
	if server.Title == "" {
		server.Title = local.Title
	}
	if server.Artist == "" {
		server.Artist = local.Artist
	}
	if server.Price.IsZero() {
		server.Price = local.Price
	}
	if server.RequestedBy == "" {
		server.RequestedBy = local.RequestedBy
	}
	if server.RequestedById == "" {
		server.RequestedById = local.RequestedById
	}
	if server.Status == "" {
		server.Status = local.Status
	}
	if server.RequestedAt.IsZero() {
		server.RequestedAt = local.RequestedAt
	}
	if server.AlbumArt == "" {
		server.AlbumArt = local.AlbumArt
	}
	return server
}

// ApproveSong accepts a pending request and starts it. There is no separate
// approved state: approving a request is playing it.
func (e *Engine) ApproveSong(ctx context.Context, partyId, songId string) (*models.Song, error) {
	return e.PlaySong(ctx, partyId, songId)
}

// PlaySong promotes a pending song to playing, demoting the song that was
// playing to played. The party's earnings and the DJ's wallet are credited
// with the song's price once the backend confirms.
func (e *Engine) PlaySong(ctx context.Context, partyId, songId string) (*models.Song, error) {
	return e.transition(ctx, partyId, songId, models.SongPlaying)
}

// DeclineSong rejects a pending song and refunds its requester.
func (e *Engine) DeclineSong(ctx context.Context, partyId, songId string) (*models.Song, error) {
	return e.transition(ctx, partyId, songId, models.SongDeclined)
}

func (e *Engine) MarkSongAsPlayed(ctx context.Context, partyId, songId string) (*models.Song, error) {
	return e.transition(ctx, partyId, songId, models.SongPlayed)
}

func (e *Engine) transition(ctx context.Context, partyId, songId string, target models.SongStatus) (*models.Song, error) {
	session, gen, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	if session.Role != models.RoleDJ {
		return nil, apperrors.New(apperrors.CodeAuthorization, "only DJs manage the queue")
	}

	lock := e.partyLock(partyId)
	lock.Lock()
	defer lock.Unlock()

	p, ok := e.get(partyId)
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "party %s not found", partyId)
	}
	if p.DjId != "" && p.DjId != session.UserId {
		return nil, apperrors.Newf(apperrors.CodeAuthorization, "party %s belongs to another DJ", partyId)
	}
	i := p.SongIndex(songId)
	if i < 0 {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "song %s not found", songId)
	}
	song := p.Songs[i]
	if !song.Status.CanTransition(target) {
		return nil, apperrors.Newf(apperrors.CodeConflict, "song %s is already %s", songId, song.Status)
	}

	next := p.Clone()
	if target == models.SongPlaying {
		if j := next.PlayingIndex(); j >= 0 {
			next.Songs[j].Status = models.SongPlayed
		}
		next.Earnings = next.Earnings.Add(song.Price)
	}
	next.Songs[i].Status = target
	if err := e.commit(ctx, gen, store.SourceLocal, next, nil); err != nil {
		return nil, err
	}

	if err := e.remote.UpdateSongStatus(ctx, partyId, songId, target); err != nil {
		zap.L().Warn("Song update rejected, rolling back",
			zap.String("party_id", partyId),
			zap.String("song_id", songId),
			zap.String("status", string(target)),
			zap.Error(err))
		if commitErr := e.commit(ctx, gen, store.SourceLocal, p, nil); commitErr != nil {
			zap.L().Warn("Rollback skipped", zap.Error(commitErr))
		}
		return nil, err
	}
	if err := e.commit(ctx, gen, store.SourceServer, next, nil); err != nil {
		return nil, err
	}

	switch target {
	case models.SongPlaying:
		if _, err := e.wallet.ReceivePayment(ctx, song.Price, fmt.Sprintf("Song played: %s", song.Title)); err != nil {
			zap.L().Error("Failed to credit song payment", zap.String("song_id", songId), zap.Error(err))
		}
	case models.SongDeclined:
		e.refund(ctx, song)
	}

	zap.L().Info("Song status updated",
		zap.String("party_id", partyId),
		zap.String("song_id", songId),
		zap.String("status", string(target)))
	updated := next.Songs[i]
	return &updated, nil
}

func (e *Engine) refund(ctx context.Context, song models.Song) {
	if e.refunds == nil || song.RequestedById == "" {
		return
	}
	credited, err := e.refunds.CreditRefund(ctx, song.RequestedById, song.Price, song.Id, fmt.Sprintf("Refund: %s", song.Title))
	if err != nil {
		zap.L().Error("Failed to credit refund", zap.String("song_id", song.Id), zap.Error(err))
		return
	}
	if !credited {
		zap.L().Debug("Requester wallet not resident, refund arrives with their next refresh",
			zap.String("song_id", song.Id),
			zap.String("requester_id", song.RequestedById))
	}
}

// Queue returns a party's pending songs by descending price. Equal prices
// keep request order.
func (e *Engine) Queue(ctx context.Context, partyId string) ([]models.Song, error) {
	p, err := e.Party(ctx, partyId)
	if err != nil {
		return nil, err
	}
	return PendingQueue(p.Songs), nil
}

// PendingQueue orders the pending songs of songs by descending price,
// keeping request order between equal prices.
func PendingQueue(songs []models.Song) []models.Song {
	queue := make([]models.Song, 0, len(songs))
	for _, s := range songs {
		if s.Status == models.SongPending {
			queue = append(queue, s)
		}
	}
	slices.SortStableFunc(queue, func(a, b models.Song) int {
		if c := b.Price.Cmp(a.Price); c != 0 {
			return c
		}
		return a.RequestedAt.Compare(b.RequestedAt)
	})
	return queue
}

// HasPendingSongs reports whether a party still has songs pending or playing.
func (e *Engine) HasPendingSongs(ctx context.Context, partyId string) (bool, error) {
	p, err := e.Party(ctx, partyId)
	if err != nil {
		return false, err
	}
	return p.HasOpenSongs(), nil
}
