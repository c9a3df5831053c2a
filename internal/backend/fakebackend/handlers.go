package fakebackend

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"party-request-go/internal/models"

	"github.com/shopspring/decimal"
)

func (s *Server) loginPayload(u *user, token, message string) map[string]any {
	return map[string]any{
		"message": message,
		"user": map[string]any{
			"id":        u.id,
			"username":  u.username,
			"token":     token,
			"role":      string(u.role),
			"user_type": string(u.userType),
		},
	}
}

func roleFromNamespace(ns string) models.Role {
	if ns == "dj_wallet" {
		return models.RoleDJ
	}
	return models.RoleAttendee
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byName[body.Username]
	if !ok || u.password != body.Password || u.role != roleFromNamespace(r.PathValue("ns")) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, s.loginPayload(u, s.issueTokenLocked(u), "Login successful"))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil || body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[body.Username]; exists {
		writeError(w, http.StatusConflict, "Username already taken")
		return
	}
	u := s.addUserLocked(body.Username, body.Password, roleFromNamespace(r.PathValue("ns")))
	writeJSON(w, http.StatusCreated, s.loginPayload(u, s.issueTokenLocked(u), "Account created"))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, u *user) {
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  u.id,
		"userName": u.username,
		"role":     string(u.role),
		"userType": string(u.userType),
	})
}

func songWire(song models.Song) map[string]any {
	return map[string]any{
		"id":              song.Id,
		"title":           song.Title,
		"artist":          song.Artist,
		"price":           song.Price.String(),
		"requestedBy":     song.RequestedBy,
		"requested_by_id": song.RequestedById,
		"status":          string(song.Status),
		"requested_at":    song.RequestedAt.UTC().Format(time.RFC3339Nano),
		"albumArt":        song.AlbumArt,
	}
}

func partyWire(p *models.Party) map[string]any {
	songs := make([]map[string]any, 0, len(p.Songs))
	for _, song := range p.Songs {
		songs = append(songs, songWire(song))
	}
	out := map[string]any{
		"id":                p.Id,
		"name":              p.Name,
		"dj_name":           p.Dj,
		"dj_id":             p.DjId,
		"venue":             p.Venue,
		"passcode":          p.Passcode,
		"min_request_price": p.MinRequestPrice.IntPart(),
		"active_until":      p.ActiveUntil.UTC().Format(time.RFC3339),
		"is_active":         p.IsActive,
		"earnings":          p.Earnings.String(),
		"created_at":        p.CreatedAt.UTC().Format(time.RFC3339),
		"songs":             songs,
	}
	if !p.EndDate.IsZero() {
		out["end_date"] = p.EndDate.UTC().Format(time.RFC3339)
	}
	return out
}

func parseWireTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, raw)
}

func (s *Server) handleCreateParty(w http.ResponseWriter, r *http.Request, u *user) {
	if u.role != models.RoleDJ {
		writeError(w, http.StatusForbidden, "Only DJs can create parties")
		return
	}
	var body struct {
		Name            string `json:"name"`
		Venue           string `json:"venue"`
		MinRequestPrice string `json:"min_request_price"`
		ActiveUntil     string `json:"active_until"`
		EndDate         string `json:"end_date"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	minPrice, err := decimal.NewFromString(body.MinRequestPrice)
	if err != nil || minPrice.LessThan(decimal.NewFromInt(100)) {
		writeError(w, http.StatusUnprocessableEntity, "Minimum request price must be at least 100")
		return
	}
	activeUntil, err := parseWireTime(body.ActiveUntil)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "active_until is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextId++
	s.nextPasscode++
	p := &models.Party{
		Id:              fmt.Sprintf("hub-%d", s.nextId),
		Name:            body.Name,
		Dj:              u.username,
		DjId:            u.id,
		Venue:           body.Venue,
		Passcode:        fmt.Sprintf("%06d", s.nextPasscode%1000000),
		MinRequestPrice: minPrice,
		ActiveUntil:     activeUntil,
		IsActive:        true,
		Songs:           []models.Song{},
		Earnings:        decimal.Zero,
		CreatedAt:       s.Now().UTC(),
	}
	if body.EndDate != "" {
		if end, err := parseWireTime(body.EndDate); err == nil {
			p.EndDate = end
		}
	}
	s.parties[p.Id] = p
	s.byPasscode[p.Passcode] = p.Id
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Hub created", "hub": partyWire(p)})
}

func (s *Server) handleJoinParty(w http.ResponseWriter, r *http.Request, u *user) {
	var body struct {
		Passcode string `json:"passcode"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[s.byPasscode[body.Passcode]]
	if !ok {
		writeError(w, http.StatusNotFound, "Hub not found")
		return
	}
	if !p.IsActive {
		writeError(w, http.StatusConflict, "Hub is closed")
		return
	}
	already := false
	for _, id := range u.joined {
		if id == p.Id {
			already = true
		}
	}
	if !already {
		u.joined = append(u.joined, p.Id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Joined hub", "party": partyWire(p)})
}

func (s *Server) handlePartyDetails(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[s.byPasscode[r.PathValue("passcode")]]
	if !ok {
		writeError(w, http.StatusNotFound, "Hub not found")
		return
	}
	writeJSON(w, http.StatusOK, partyWire(p))
}

type hubBody struct {
	HubId string `json:"hub_id"`
}

func (s *Server) handleSongList(w http.ResponseWriter, r *http.Request, u *user) {
	var body hubBody
	_ = decodeBody(r, &body)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[body.HubId]
	if !ok {
		writeError(w, http.StatusNotFound, "Hub not found")
		return
	}
	songs := make([]map[string]any, 0, len(p.Songs))
	for _, song := range p.Songs {
		songs = append(songs, songWire(song))
	}
	writeJSON(w, http.StatusOK, map[string]any{"song_list": songs})
}

func (s *Server) handleNowPlaying(w http.ResponseWriter, r *http.Request, u *user) {
	var body hubBody
	_ = decodeBody(r, &body)

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[body.HubId]
	if !ok {
		writeError(w, http.StatusNotFound, "Hub not found")
		return
	}
	if i := p.PlayingIndex(); i >= 0 {
		writeJSON(w, http.StatusOK, map[string]any{"now_playing": songWire(p.Songs[i])})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"now_playing": nil})
}

func (s *Server) handleListParties(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hubs := make([]map[string]any, 0)
	if u.role == models.RoleDJ {
		for i := 1; i <= s.nextId; i++ {
			if p, ok := s.parties[fmt.Sprintf("hub-%d", i)]; ok && p.DjId == u.id {
				hubs = append(hubs, partyWire(p))
			}
		}
	} else {
		for _, id := range u.joined {
			if p, ok := s.parties[id]; ok {
				hubs = append(hubs, partyWire(p))
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hubs": hubs})
}

func (s *Server) ownedParty(w http.ResponseWriter, u *user, id string) (*models.Party, bool) {
	p, ok := s.parties[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Hub not found")
		return nil, false
	}
	if p.DjId != u.id {
		writeError(w, http.StatusForbidden, "Not your hub")
		return nil, false
	}
	return p, true
}

func (s *Server) handleCloseParty(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.ownedParty(w, u, r.PathValue("id"))
	if !ok {
		return
	}
	if p.HasOpenSongs() {
		writeError(w, http.StatusConflict, "Hub still has pending songs")
		return
	}
	p.IsActive = false
	writeJSON(w, http.StatusOK, map[string]any{"message": "Hub closed"})
}

func (s *Server) handleUpdateParty(w http.ResponseWriter, r *http.Request, u *user) {
	var body struct {
		HubId           string  `json:"hub_id"`
		Name            *string `json:"name"`
		Venue           *string `json:"venue"`
		MinRequestPrice *string `json:"min_request_price"`
		ActiveUntil     *string `json:"active_until"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.ownedParty(w, u, body.HubId)
	if !ok {
		return
	}
	if body.Name != nil {
		p.Name = *body.Name
	}
	if body.Venue != nil {
		p.Venue = *body.Venue
	}
	if body.MinRequestPrice != nil {
		minPrice, err := decimal.NewFromString(*body.MinRequestPrice)
		if err != nil || minPrice.LessThan(decimal.NewFromInt(100)) {
			writeError(w, http.StatusUnprocessableEntity, "Minimum request price must be at least 100")
			return
		}
		p.MinRequestPrice = minPrice
	}
	if body.ActiveUntil != nil {
		if t, err := parseWireTime(*body.ActiveUntil); err == nil {
			p.ActiveUntil = t
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hub": partyWire(p)})
}

func (s *Server) handleRequestSong(w http.ResponseWriter, r *http.Request, u *user) {
	var body struct {
		HubId    string `json:"hub_id"`
		Title    string `json:"title"`
		Artist   string `json:"artist"`
		Price    string `json:"price"`
		AlbumArt string `json:"album_art"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid price")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[body.HubId]
	if !ok {
		writeError(w, http.StatusNotFound, "Hub not found")
		return
	}
	if !p.IsActive {
		writeError(w, http.StatusConflict, "Hub is closed")
		return
	}
	joined := false
	for _, id := range u.joined {
		if id == p.Id {
			joined = true
		}
	}
	if !joined {
		writeError(w, http.StatusForbidden, "Join the hub first")
		return
	}
	if price.LessThan(p.MinRequestPrice) {
		writeError(w, http.StatusUnprocessableEntity, "Price below minimum")
		return
	}
	if u.balance.LessThan(price) {
		writeError(w, http.StatusPaymentRequired, "Insufficient balance")
		return
	}

	u.balance = u.balance.Sub(price)
	s.recordLocked(u, price, models.KindPayment, fmt.Sprintf("Song request: %s", body.Title), models.StatusCompleted, "")

	s.nextId++
	song := models.Song{
		Id:            fmt.Sprintf("song-%d", s.nextId),
		Title:         body.Title,
		Artist:        body.Artist,
		Price:         price,
		RequestedBy:   u.username,
		RequestedById: u.id,
		Status:        models.SongPending,
		RequestedAt:   s.Now().UTC(),
		AlbumArt:      body.AlbumArt,
	}
	p.Songs = append(p.Songs, song)
	writeJSON(w, http.StatusCreated, map[string]any{"song": songWire(song)})
}

func (s *Server) handleUpdateSong(w http.ResponseWriter, r *http.Request, u *user) {
	var body struct {
		HubId  string `json:"hub_id"`
		SongId string `json:"song_id"`
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.ownedParty(w, u, body.HubId)
	if !ok {
		return
	}
	i := p.SongIndex(body.SongId)
	if i < 0 {
		writeError(w, http.StatusNotFound, "Song not found")
		return
	}
	song := &p.Songs[i]
	target := models.SongStatus(strings.ToLower(body.Status))
	if !song.Status.CanTransition(target) {
		writeError(w, http.StatusConflict, fmt.Sprintf("Song already %s", song.Status))
		return
	}

	switch target {
	case models.SongPlaying:
		if j := p.PlayingIndex(); j >= 0 {
			p.Songs[j].Status = models.SongPlayed
		}
		p.Earnings = p.Earnings.Add(song.Price)
		u.balance = u.balance.Add(song.Price)
		s.recordLocked(u, song.Price, models.KindSongPayment, fmt.Sprintf("Song played: %s", song.Title), models.StatusCompleted, song.Id)
	case models.SongDeclined:
		if requester, ok := s.users[song.RequestedById]; ok {
			requester.balance = requester.balance.Add(song.Price)
			s.recordLocked(requester, song.Price, models.KindRefund, fmt.Sprintf("Refund: %s", song.Title), models.StatusCompleted, song.Id)
		}
	}
	song.Status = target
	writeJSON(w, http.StatusOK, map[string]any{"message": "Song updated"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"wallet_balance": u.balance.String()})
}

func wireKind(kind models.TransactionKind) string {
	switch kind {
	case models.KindPayment:
		return "song_request"
	case models.KindSongPayment:
		return "song_payment"
	default:
		return string(kind)
	}
}

func wireStatus(status models.TransactionStatus) string {
	if status == models.StatusCompleted {
		return "success"
	}
	return string(status)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txs := make([]map[string]any, 0, len(u.history))
	for _, tx := range u.history {
		txs = append(txs, map[string]any{
			"id":          tx.Id,
			"amount":      tx.Amount.Abs().String(),
			"type":        wireKind(tx.Kind),
			"description": tx.Description,
			"status":      wireStatus(tx.Status),
			"reference":   tx.Reference,
			"created_at":  tx.Timestamp.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *Server) handleTransferOut(w http.ResponseWriter, r *http.Request, u *user) {
	var body struct {
		Amount        string `json:"amount"`
		AccountNumber string `json:"account_number"`
		BankCode      string `json:"bank_code"`
		Reference     string `json:"reference"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if u.balance.LessThan(amount) {
		writeError(w, http.StatusPaymentRequired, "Insufficient balance")
		return
	}
	u.balance = u.balance.Sub(amount)
	tx := s.recordLocked(u, amount, models.KindWithdrawal, fmt.Sprintf("Transfer to %s", body.AccountNumber), models.StatusProcessing, body.Reference)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Transfer queued",
		"reference": tx.Reference,
		"status":    "processing",
	})
}

func (s *Server) handleVerifyAccount(w http.ResponseWriter, r *http.Request, u *user) {
	var body struct {
		AccountNumber string `json:"account_number"`
		BankCode      string `json:"bank_code"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if len(body.AccountNumber) != 10 || body.BankCode == "" {
		writeError(w, http.StatusUnprocessableEntity, "Could not resolve account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accountName":    strings.ToUpper(u.username) + " ACCOUNT",
		"account_number": body.AccountNumber,
		"bank_code":      body.BankCode,
	})
}

func (s *Server) handleListBanks(w http.ResponseWriter, r *http.Request, u *user) {
	writeJSON(w, http.StatusOK, map[string]any{
		"banks": []map[string]string{
			{"name": "Access Bank", "code": "044"},
			{"name": "GTBank", "code": "058"},
			{"name": "Zenith Bank", "code": "057"},
		},
	})
}
