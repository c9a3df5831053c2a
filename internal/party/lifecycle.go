package party

import (
	"context"
	"net/url"
	"time"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/models"
	"party-request-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type passcodeInput struct {
	Passcode string `validate:"required,alphanum,min=4,max=12"`
}

func (e *Engine) expired(p *models.Party) bool {
	end := p.EndsAt()
	return !end.IsZero() && e.now().After(end)
}

func wholeAtLeast(price, min decimal.Decimal) bool {
	return price.IsInteger() && price.GreaterThanOrEqual(min)
}

// CreateParty opens a party for the signed-in DJ and makes it current.
// Fields the backend leaves out of its answer are filled from params.
func (e *Engine) CreateParty(ctx context.Context, params models.CreatePartyParams) (*models.Party, error) {
	if err := e.validate.Struct(params); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid party")
	}
	if !wholeAtLeast(params.MinRequestPrice, e.minPrice) {
		return nil, apperrors.Newf(apperrors.CodeValidation, "minimum request price must be a whole amount of at least %s", e.minPrice)
	}
	if !params.ActiveUntil.After(e.now()) {
		return nil, apperrors.New(apperrors.CodeValidation, "active until must be in the future")
	}
	session, gen, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	if session.Role != models.RoleDJ {
		return nil, apperrors.New(apperrors.CodeAuthorization, "only DJs create parties")
	}

	created, err := e.remote.CreateParty(ctx, params)
	if err != nil {
		return nil, err
	}
	if created.Id == "" {
		return nil, apperrors.New(apperrors.CodeServer, "created party has no id")
	}
	p := backfillParty(created, params, session, e.now())

	lock := e.partyLock(p.Id)
	lock.Lock()
	defer lock.Unlock()
	err = e.commit(ctx, gen, store.SourceServer, p, func() {
		e.created = addId(e.created, p.Id)
		e.current = p.Id
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Party opened",
		zap.String("party_id", p.Id),
		zap.String("dj_id", session.UserId),
		zap.Time("active_until", p.ActiveUntil))
	return p.Clone(), nil
}

func backfillParty(p *models.Party, params models.CreatePartyParams, session *models.Session, now time.Time) *models.Party {
	out := p.Clone()
	if out.Name == "" {
		out.Name = params.Name
	}
	if out.Venue == "" {
		out.Venue = params.Venue
	}
	if out.MinRequestPrice.IsZero() {
		out.MinRequestPrice = params.MinRequestPrice
	}
	if out.ActiveUntil.IsZero() {
		out.ActiveUntil = params.ActiveUntil
	}
	if out.EndDate.IsZero() {
		out.EndDate = params.EndDate
	}
	if out.Dj == "" {
		out.Dj = session.Username
	}
	if out.DjId == "" {
		out.DjId = session.UserId
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now.UTC()
	}
	if out.Songs == nil {
		out.Songs = []models.Song{}
	}
	out.IsActive = true
	return out
}

// JoinParty joins a party by passcode and makes it current. Joining a party
// already joined refreshes it in place.
func (e *Engine) JoinParty(ctx context.Context, passcode string) (*models.Party, error) {
	if err := e.validate.Struct(passcodeInput{Passcode: passcode}); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid passcode")
	}
	session, gen, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}

	joined, err := e.remote.JoinParty(ctx, passcode)
	if err != nil {
		return nil, err
	}
	if !joined.IsActive || e.expired(joined) {
		return nil, apperrors.Newf(apperrors.CodeConflict, "party %s is already closed", joined.Id)
	}
	if joined.Passcode == "" {
		joined.Passcode = passcode
	}

	lock := e.partyLock(joined.Id)
	lock.Lock()
	defer lock.Unlock()
	err = e.commit(ctx, gen, store.SourceServer, joined, func() {
		e.joined = addId(e.joined, joined.Id)
		e.closed = removeId(e.closed, joined.Id)
		e.current = joined.Id
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Joined party",
		zap.String("user_id", session.UserId),
		zap.String("party_id", joined.Id))
	return joined.Clone(), nil
}

// CloseParty closes a drained party. It fails with a conflict while any
// song is pending or playing.
func (e *Engine) CloseParty(ctx context.Context, partyId string) error {
	session, gen, err := e.begin(ctx)
	if err != nil {
		return err
	}
	if session.Role != models.RoleDJ {
		return apperrors.New(apperrors.CodeAuthorization, "only DJs close parties")
	}

	lock := e.partyLock(partyId)
	lock.Lock()
	defer lock.Unlock()

	p, ok := e.get(partyId)
	if !ok {
		return apperrors.Newf(apperrors.CodeNotFound, "party %s not found", partyId)
	}
	if p.DjId != "" && p.DjId != session.UserId {
		return apperrors.Newf(apperrors.CodeAuthorization, "party %s belongs to another DJ", partyId)
	}
	if !p.IsActive {
		return nil
	}
	if p.HasOpenSongs() {
		return apperrors.Newf(apperrors.CodeConflict, "party %s still has pending songs", partyId)
	}

	if err := e.remote.CloseParty(ctx, partyId); err != nil {
		return err
	}
	p.IsActive = false
	err = e.commit(ctx, gen, store.SourceServer, p, func() { e.retireLocked(partyId) })
	if err != nil {
		return err
	}
	zap.L().Info("Party closed", zap.String("party_id", partyId))
	return nil
}

// retireLocked moves a party from the active views to the closed view.
func (e *Engine) retireLocked(partyId string) {
	e.created = removeId(e.created, partyId)
	e.joined = removeId(e.joined, partyId)
	e.closed = addId(e.closed, partyId)
	if e.current == partyId {
		e.current = ""
	}
}

type settingsInput struct {
	Name  *string `validate:"omitempty,min=1,max=120"`
	Venue *string `validate:"omitempty,min=1,max=120"`
}

// UpdateSettings changes a party's settings, applying them locally first
// and restoring the previous settings if the backend rejects them.
func (e *Engine) UpdateSettings(ctx context.Context, partyId string, settings models.PartySettings) (*models.Party, error) {
	if err := e.validate.Struct(settingsInput{Name: settings.Name, Venue: settings.Venue}); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid party settings")
	}
	if m := settings.MinRequestPrice; m != nil && !wholeAtLeast(*m, e.minPrice) {
		return nil, apperrors.Newf(apperrors.CodeValidation, "minimum request price must be a whole amount of at least %s", e.minPrice)
	}
	if t := settings.ActiveUntil; t != nil && !t.After(e.now()) {
		return nil, apperrors.New(apperrors.CodeValidation, "active until must be in the future")
	}
	session, gen, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	if session.Role != models.RoleDJ {
		return nil, apperrors.New(apperrors.CodeAuthorization, "only DJs change party settings")
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
	if !p.IsActive {
		return nil, apperrors.Newf(apperrors.CodeConflict, "party %s is closed", partyId)
	}

	next := p.Clone()
	if settings.Name != nil {
		next.Name = *settings.Name
	}
	if settings.Venue != nil {
		next.Venue = *settings.Venue
	}
	if settings.MinRequestPrice != nil {
		next.MinRequestPrice = *settings.MinRequestPrice
	}
	if settings.ActiveUntil != nil {
		next.ActiveUntil = *settings.ActiveUntil
	}
	if err := e.commit(ctx, gen, store.SourceLocal, next, nil); err != nil {
		return nil, err
	}

	updated, err := e.remote.UpdateParty(ctx, partyId, settings)
	if err != nil {
		if commitErr := e.commit(ctx, gen, store.SourceLocal, p, nil); commitErr != nil {
			zap.L().Warn("Rollback skipped", zap.Error(commitErr))
		}
		return nil, err
	}
	final := next
	if updated != nil && updated.Id == partyId {
		final = updated.Clone()
		if final.Songs == nil {
			final.Songs = next.Songs
		}
	}
	if err := e.commit(ctx, gen, store.SourceServer, final, nil); err != nil {
		return nil, err
	}
	return final.Clone(), nil
}

// GetQrPayload returns the join link encoded into a party's QR code.
func (e *Engine) GetQrPayload(ctx context.Context, partyId string) (string, error) {
	p, err := e.Party(ctx, partyId)
	if err != nil {
		return "", err
	}
	if p.Passcode == "" {
		return "", apperrors.Newf(apperrors.CodeNotFound, "party %s has no passcode", partyId)
	}
	q := url.Values{}
	q.Set("passcode", p.Passcode)
	return e.joinBaseURL + "/join?" + q.Encode(), nil
}

// HandleExpiry closes every active party whose end instant has passed and
// returns how many it closed. Open songs of an expired party are settled:
// playing becomes played and pending becomes declined with the requester
// refunded, as a decline would.
func (e *Engine) HandleExpiry(ctx context.Context) (int, error) {
	session, gen, err := e.begin(ctx)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	var candidates []string
	for id, p := range e.parties {
		if p.IsActive && e.expired(p) {
			candidates = append(candidates, id)
		}
	}
	e.mu.Unlock()

	closed := 0
	for _, id := range candidates {
		ok, err := e.expire(ctx, gen, session, id)
		if err != nil {
			return closed, err
		}
		if ok {
			closed++
		}
	}
	e.metrics.AddExpired(closed)
	return closed, nil
}

func (e *Engine) expire(ctx context.Context, gen uint64, session *models.Session, partyId string) (bool, error) {
	lock := e.partyLock(partyId)
	lock.Lock()
	defer lock.Unlock()

	p, ok := e.get(partyId)
	if !ok || !p.IsActive || !e.expired(p) {
		return false, nil
	}
	p.IsActive = false
	var declined []models.Song
	for i := range p.Songs {
		switch p.Songs[i].Status {
		case models.SongPlaying:
			p.Songs[i].Status = models.SongPlayed
		case models.SongPending:
			p.Songs[i].Status = models.SongDeclined
			declined = append(declined, p.Songs[i])
		}
	}
	if session.Role == models.RoleDJ && p.DjId == session.UserId {
		for _, song := range declined {
			if err := e.remote.UpdateSongStatus(ctx, partyId, song.Id, models.SongDeclined); err != nil {
				zap.L().Warn("Server did not take expiry decline, it settles the song itself",
					zap.String("party_id", partyId),
					zap.String("song_id", song.Id),
					zap.Error(err))
			}
		}
	}
	if err := e.commit(ctx, gen, store.SourceLocal, p, func() { e.retireLocked(partyId) }); err != nil {
		return false, err
	}
	for _, song := range declined {
		e.refund(ctx, song)
	}
	zap.L().Info("Party expired",
		zap.String("party_id", partyId),
		zap.Int("declined", len(declined)),
		zap.Time("ended_at", p.EndsAt()))
	return true, nil
}
