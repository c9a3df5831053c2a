package party

import (
	"context"

	"party-request-go/internal/apperrors"
	"party-request-go/internal/metrics"
	"party-request-go/internal/models"
	"party-request-go/internal/reconcile"
	"party-request-go/internal/store"

	"go.uber.org/zap"
)

// Refresh replaces the party lists with the server's, and the current
// party's queue with its song list and now-playing projection. When the
// backend is unreachable the cached state is served instead. Concurrent
// calls share one fetch.
func (e *Engine) Refresh(ctx context.Context) (*View, error) {
	session, err := e.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}
	v, err, _ := e.group.Do(session.UserId, func() (any, error) {
		return e.refresh(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	return v.(*View), nil
}

func (e *Engine) refresh(ctx context.Context, session *models.Session) (*View, error) {
	_, gen, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	currentId := e.current
	var current *models.Party
	if p, ok := e.parties[currentId]; ok && currentId != "" {
		current = p.Clone()
	}
	e.mu.Unlock()

	parties, err := e.remote.ListParties(ctx, session.Role)
	var songs []models.Song
	if err == nil && current != nil && current.IsActive {
		songs, err = e.fetchQueue(ctx, session.Role, current)
	}
	if e.generation.Load() != gen {
		e.metrics.IncSync("party", metrics.OutcomeAborted)
		return nil, ErrSessionChanged
	}
	if err != nil {
		return e.fallback(ctx, session, err)
	}

	active := make([]string, 0, len(parties))
	var inactive []string
	for i := range parties {
		p := parties[i]
		if p.Id == currentId && songs != nil {
			p.Songs = songs
		}
		if err := e.install(gen, &p); err != nil {
			e.metrics.IncSync("party", metrics.OutcomeAborted)
			return nil, err
		}
		if p.IsActive && !e.expired(&p) {
			active = append(active, p.Id)
		} else {
			inactive = append(inactive, p.Id)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation.Load() != gen || e.loadedGen != gen {
		e.metrics.IncSync("party", metrics.OutcomeAborted)
		return nil, ErrSessionChanged
	}

	previous := e.joined
	if session.Role == models.RoleDJ {
		previous = e.created
		e.created = active
	} else {
		e.joined = active
	}
	e.closed = reconcile.DedupeByID(append(e.closed, inactive...), identity)
	for _, id := range active {
		e.closed = removeId(e.closed, id)
	}
	for _, id := range previous {
		if !contains(active, id) && !contains(e.closed, id) {
			delete(e.parties, id)
		}
	}
	if !contains(active, e.current) {
		e.current = ""
	}
	e.source = store.SourceServer
	e.persistLocked(ctx)
	e.metrics.IncSync("party", metrics.OutcomeOK)

	zap.L().Debug("Parties refreshed",
		zap.String("user_id", session.UserId),
		zap.Int("active", len(active)),
		zap.Int("closed", len(e.closed)))
	return e.viewLocked(), nil
}

// install replaces one party under its own lock so a refresh never lands in
// the middle of a mutation.
func (e *Engine) install(gen uint64, p *models.Party) error {
	lock := e.partyLock(p.Id)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation.Load() != gen || e.loadedGen != gen {
		return ErrSessionChanged
	}
	e.parties[p.Id] = p.Clone()
	return nil
}

func (e *Engine) fallback(ctx context.Context, session *models.Session, cause error) (*View, error) {
	if !apperrors.CanFallBackToCache(cause) {
		e.metrics.IncSync("party", metrics.OutcomeError)
		return nil, cause
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.parties) == 0 && !e.readCacheLocked(ctx, session.UserId) {
		e.metrics.IncSync("party", metrics.OutcomeError)
		return nil, cause
	}
	e.source = store.SourceCached
	e.metrics.IncSync("party", metrics.OutcomeFallback)
	zap.L().Warn("Party refresh failed, serving cached state",
		zap.String("user_id", session.UserId),
		zap.Error(cause))
	return e.viewLocked(), nil
}

// fetchQueue reads the current party's songs and overlays the now-playing
// projection on them.
func (e *Engine) fetchQueue(ctx context.Context, role models.Role, current *models.Party) ([]models.Song, error) {
	var songs []models.Song
	if role == models.RoleDJ {
		list, err := e.remote.SongList(ctx, current.Id)
		if err != nil {
			return nil, err
		}
		songs = list
	} else {
		if current.Passcode == "" {
			return nil, nil
		}
		details, err := e.remote.PartyDetails(ctx, current.Passcode)
		if err != nil {
			return nil, err
		}
		songs = details.Songs
	}

	playing, err := e.remote.NowPlaying(ctx, role, current.Id)
	if err != nil {
		return nil, err
	}
	return projectNowPlaying(songs, playing), nil
}

// projectNowPlaying marks playing as the only playing song.
func projectNowPlaying(songs []models.Song, playing *models.Song) []models.Song {
	out := append([]models.Song{}, songs...)
	if playing == nil {
		return out
	}
	found := false
	for i := range out {
		switch {
		case out[i].Id == playing.Id:
			out[i].Status = models.SongPlaying
			found = true
		case out[i].Status == models.SongPlaying:
			out[i].Status = models.SongPlayed
		}
	}
	if !found {
		p := *playing
		p.Status = models.SongPlaying
		out = append(out, p)
	}
	return out
}
