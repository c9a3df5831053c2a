/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package backend

// Every wire-shape quirk of the backend is absorbed here. The backend mixes
// snake_case and camelCase, renames fields between endpoints ("hub" vs
// "party") and sends ids and amounts as either numbers or strings.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"party-request-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type envelope struct {
	Status  string
	Failed  bool
	Message string
	Data    json.RawMessage
}

func (e *envelope) messageOr(fallback string) string {
	if e != nil && e.Message != "" {
		return e.Message
	}
	return fallback
}

type wireEnvelope struct {
	Status  json.RawMessage `json:"status"`
	Success *flexBool       `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	Error   string          `json:"error"`
}

func decodeEnvelope(raw []byte) (*envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return &envelope{}, nil
	}
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	env := &envelope{Data: w.Data}
	status := strings.Trim(strings.ToLower(string(w.Status)), `"`)
	env.Status = status
	switch status {
	case "false", "error", "failed", "failure", "fail":
		env.Failed = true
	}
	if w.Success != nil && !w.Success.value {
		env.Failed = true
	}

	var inner struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Error   string `json:"error"`
	}
	if isObject(w.Data) {
		if err := json.Unmarshal(w.Data, &inner); err != nil {
			zap.L().Debug("Envelope data message not decodable, using top-level message", zap.Error(err))
		}
	}
	env.Message = first(inner.Message, inner.Detail, inner.Error, w.Message, w.Detail, w.Error)
	return env, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || string(raw) == "null"
}

func first(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}

func (f flexString) String() string { return string(f) }

// flexDecimal accepts a JSON number or numeric string.
type flexDecimal struct {
	value decimal.Decimal
	set   bool
}

func (f *flexDecimal) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		return nil
	}
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	f.value = d
	f.set = true
	return nil
}

func firstDecimal(values ...flexDecimal) decimal.Decimal {
	for _, v := range values {
		if v.set {
			return v.value
		}
	}
	return decimal.Zero
}

// flexBool accepts true/false, "true"/"false" and 1/0.
type flexBool struct {
	value bool
	set   bool
}

func (f *flexBool) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		return nil
	}
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(b)), `"`))
	switch s {
	case "true", "1", "yes", "active":
		f.value, f.set = true, true
	case "false", "0", "no", "inactive", "closed":
		f.value, f.set = false, true
	default:
		return fmt.Errorf("invalid boolean %q", s)
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// flexTime accepts the timestamp layouts the backend emits, or unix seconds.
type flexTime struct {
	value time.Time
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		return nil
	}
	if b[0] != '"' {
		secs, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", b, err)
		}
		f.value = time.Unix(secs, 0).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	t, err := parseTime(s)
	if err != nil {
		return err
	}
	f.value = t
	return nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func firstTime(values ...flexTime) time.Time {
	for _, v := range values {
		if !v.value.IsZero() {
			return v.value
		}
	}
	return time.Time{}
}

type wireUser struct {
	Id            flexString `json:"id"`
	UserId        flexString `json:"user_id"`
	UserIdCamel   flexString `json:"userId"`
	Username      string     `json:"username"`
	UserName      string     `json:"userName"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	PhoneNumber   string     `json:"phone_number"`
	Role          string     `json:"role"`
	UserRole      string     `json:"user_role"`
	UserType      string     `json:"user_type"`
	UserTypeCamel string     `json:"userType"`
	Token         flexString `json:"token"`
	AuthToken     flexString `json:"auth_token"`
	Access        flexString `json:"access"`
}

type wireLogin struct {
	wireUser
	User *wireUser `json:"user"`
	Dj   *wireUser `json:"dj"`
}

func normalizeRole(raw string, fallback models.Role) models.Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "dj", "dj_wallet", "host":
		return models.RoleDJ
	case "attendee", "user", "user_wallet", "guest", "member":
		return models.RoleAttendee
	}
	return fallback
}

func normalizeUserType(raw string) models.UserType {
	if strings.EqualFold(strings.TrimSpace(raw), "guest") {
		return models.UserTypeGuest
	}
	return models.UserTypeMember
}

func (w wireUser) canonical(role models.Role) models.User {
	return models.User{
		Id:       first(w.Id.String(), w.UserId.String(), w.UserIdCamel.String()),
		Username: first(w.Username, w.UserName),
		Email:    w.Email,
		Phone:    first(w.PhoneNumber, w.Phone),
		Role:     normalizeRole(first(w.Role, w.UserRole), role),
		UserType: normalizeUserType(first(w.UserType, w.UserTypeCamel)),
	}
}

func (w wireUser) token() string {
	return first(w.Token.String(), w.AuthToken.String(), w.Access.String())
}

// normalizeLogin maps a login or registration payload. The user object may
// be nested under "user" or "dj", or flattened into data.
func normalizeLogin(env *envelope, role models.Role) (*models.LoginResult, error) {
	if !isObject(env.Data) {
		return nil, fmt.Errorf("login response has no data object")
	}
	var w wireLogin
	if err := json.Unmarshal(env.Data, &w); err != nil {
		return nil, fmt.Errorf("decoding login data: %w", err)
	}

	user := w.wireUser
	if w.User != nil {
		user = *w.User
	} else if w.Dj != nil {
		user = *w.Dj
	}

	result := &models.LoginResult{
		User:    user.canonical(role),
		Token:   first(user.token(), w.wireUser.token()),
		Message: env.Message,
	}
	if result.User.Id == "" {
		return nil, fmt.Errorf("login response missing user id")
	}
	if result.Token == "" {
		return nil, fmt.Errorf("login response missing token")
	}
	return result, nil
}

func normalizeUser(env *envelope, role models.Role) (*models.User, error) {
	if !isObject(env.Data) {
		return nil, fmt.Errorf("profile response has no data object")
	}
	var w wireLogin
	if err := json.Unmarshal(env.Data, &w); err != nil {
		return nil, fmt.Errorf("decoding profile data: %w", err)
	}
	user := w.wireUser
	if w.User != nil {
		user = *w.User
	}
	u := user.canonical(role)
	return &u, nil
}

type wireSong struct {
	Id               flexString  `json:"id"`
	SongId           flexString  `json:"song_id"`
	Title            string      `json:"title"`
	SongTitle        string      `json:"song_title"`
	Artist           string      `json:"artist"`
	ArtistName       string      `json:"artist_name"`
	Price            flexDecimal `json:"price"`
	Amount           flexDecimal `json:"amount"`
	RequestedBy      string      `json:"requested_by"`
	RequestedByCamel string      `json:"requestedBy"`
	Requester        string      `json:"requester"`
	RequestedById    flexString  `json:"requested_by_id"`
	UserId           flexString  `json:"user_id"`
	Status           string      `json:"status"`
	RequestedAt      flexTime    `json:"requested_at"`
	RequestedAtCamel flexTime    `json:"requestedAt"`
	CreatedAt        flexTime    `json:"created_at"`
	AlbumArt         string      `json:"album_art"`
	AlbumArtCamel    string      `json:"albumArt"`
	Image            string      `json:"image"`
}

func normalizeSongStatus(raw string) models.SongStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "playing", "now_playing", "nowplaying", "accepted", "approved":
		return models.SongPlaying
	case "played", "completed", "done", "finished":
		return models.SongPlayed
	case "declined", "rejected", "refunded":
		return models.SongDeclined
	default:
		return models.SongPending
	}
}

func (w wireSong) canonical() models.Song {
	return models.Song{
		Id:            first(w.Id.String(), w.SongId.String()),
		Title:         first(w.Title, w.SongTitle),
		Artist:        first(w.Artist, w.ArtistName),
		Price:         firstDecimal(w.Price, w.Amount),
		RequestedBy:   first(w.RequestedBy, w.RequestedByCamel, w.Requester),
		RequestedById: first(w.RequestedById.String(), w.UserId.String()),
		Status:        normalizeSongStatus(w.Status),
		RequestedAt:   firstTime(w.RequestedAt, w.RequestedAtCamel, w.CreatedAt),
		AlbumArt:      first(w.AlbumArt, w.AlbumArtCamel, w.Image),
	}
}

type wireParty struct {
	Id                   flexString  `json:"id"`
	HubId                flexString  `json:"hub_id"`
	Name                 string      `json:"name"`
	HubName              string      `json:"hub_name"`
	Dj                   string      `json:"dj"`
	DjName               string      `json:"dj_name"`
	DjId                 flexString  `json:"dj_id"`
	DjIdCamel            flexString  `json:"djId"`
	Venue                string      `json:"venue"`
	Location             string      `json:"location"`
	Passcode             flexString  `json:"passcode"`
	Code                 flexString  `json:"code"`
	MinRequestPrice      flexDecimal `json:"min_request_price"`
	MinRequestPriceCamel flexDecimal `json:"minRequestPrice"`
	MinPrice             flexDecimal `json:"min_price"`
	ActiveUntil          flexTime    `json:"active_until"`
	ActiveUntilCamel     flexTime    `json:"activeUntil"`
	EndDate              flexTime    `json:"end_date"`
	EndDateCamel         flexTime    `json:"endDate"`
	IsActive             flexBool    `json:"is_active"`
	IsActiveCamel        flexBool    `json:"isActive"`
	Status               string      `json:"status"`
	Songs                []wireSong  `json:"songs"`
	SongList             []wireSong  `json:"song_list"`
	Earnings             flexDecimal `json:"earnings"`
	TotalEarnings        flexDecimal `json:"total_earnings"`
	CreatedAt            flexTime    `json:"created_at"`
}

func (w wireParty) canonical() models.Party {
	p := models.Party{
		Id:              first(w.Id.String(), w.HubId.String()),
		Name:            first(w.Name, w.HubName),
		Dj:              first(w.Dj, w.DjName),
		DjId:            first(w.DjId.String(), w.DjIdCamel.String()),
		Venue:           first(w.Venue, w.Location),
		Passcode:        first(w.Passcode.String(), w.Code.String()),
		MinRequestPrice: firstDecimal(w.MinRequestPrice, w.MinRequestPriceCamel, w.MinPrice),
		ActiveUntil:     firstTime(w.ActiveUntil, w.ActiveUntilCamel),
		EndDate:         firstTime(w.EndDate, w.EndDateCamel),
		Earnings:        firstDecimal(w.Earnings, w.TotalEarnings),
		CreatedAt:       w.CreatedAt.value,
	}
	switch {
	case w.IsActive.set:
		p.IsActive = w.IsActive.value
	case w.IsActiveCamel.set:
		p.IsActive = w.IsActiveCamel.value
	case w.Status != "":
		p.IsActive = strings.EqualFold(w.Status, "active") || strings.EqualFold(w.Status, "open")
	default:
		p.IsActive = true
	}
	songs := w.Songs
	if len(songs) == 0 {
		songs = w.SongList
	}
	p.Songs = make([]models.Song, 0, len(songs))
	for _, s := range songs {
		p.Songs = append(p.Songs, s.canonical())
	}
	return p
}

// normalizeParty accepts data.hub, data.party or a flattened party.
func normalizeParty(env *envelope) (*models.Party, error) {
	if !isObject(env.Data) {
		return nil, fmt.Errorf("party response has no data object")
	}
	var nested struct {
		Hub   *wireParty `json:"hub"`
		Party *wireParty `json:"party"`
	}
	if err := json.Unmarshal(env.Data, &nested); err != nil {
		return nil, fmt.Errorf("decoding party data: %w", err)
	}
	var w wireParty
	switch {
	case nested.Hub != nil:
		w = *nested.Hub
	case nested.Party != nil:
		w = *nested.Party
	default:
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decoding party data: %w", err)
		}
	}
	p := w.canonical()
	return &p, nil
}

// listField extracts the first present list among keys, or data itself when
// it is an array.
func listField(data json.RawMessage, keys ...string) (json.RawMessage, error) {
	if isNull(data) {
		return nil, nil
	}
	if isArray(data) {
		return data, nil
	}
	if !isObject(data) {
		return nil, fmt.Errorf("expected list or object, got %s", truncate(data))
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for _, key := range keys {
		if raw, ok := fields[key]; ok && !isNull(raw) {
			return raw, nil
		}
	}
	return nil, nil
}

func truncate(raw json.RawMessage) string {
	if len(raw) > 64 {
		return string(raw[:64]) + "..."
	}
	return string(raw)
}

func normalizeParties(env *envelope) ([]models.Party, error) {
	raw, err := listField(env.Data, "hubs", "parties", "joined_hubs", "created_hubs", "results")
	if err != nil {
		return nil, fmt.Errorf("decoding party list: %w", err)
	}
	if raw == nil {
		return []models.Party{}, nil
	}
	var wire []wireParty
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decoding party list: %w", err)
	}
	parties := make([]models.Party, 0, len(wire))
	for _, w := range wire {
		parties = append(parties, w.canonical())
	}
	return parties, nil
}

func normalizeSongs(env *envelope) ([]models.Song, error) {
	raw, err := listField(env.Data, "songs", "song_list", "requests", "results")
	if err != nil {
		return nil, fmt.Errorf("decoding song list: %w", err)
	}
	if raw == nil {
		return []models.Song{}, nil
	}
	var wire []wireSong
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decoding song list: %w", err)
	}
	songs := make([]models.Song, 0, len(wire))
	for _, w := range wire {
		songs = append(songs, w.canonical())
	}
	return songs, nil
}

func normalizeSong(env *envelope) (*models.Song, error) {
	if !isObject(env.Data) {
		return nil, fmt.Errorf("song response has no data object")
	}
	var nested struct {
		Song *wireSong `json:"song"`
	}
	if err := json.Unmarshal(env.Data, &nested); err != nil {
		return nil, fmt.Errorf("decoding song: %w", err)
	}
	w := nested.Song
	if w == nil {
		w = &wireSong{}
		if err := json.Unmarshal(env.Data, w); err != nil {
			return nil, fmt.Errorf("decoding song: %w", err)
		}
	}
	s := w.canonical()
	return &s, nil
}

// normalizeNowPlaying returns nil when nothing is playing.
func normalizeNowPlaying(env *envelope) (*models.Song, error) {
	if isNull(env.Data) || !isObject(env.Data) {
		return nil, nil
	}
	var nested struct {
		NowPlaying      json.RawMessage `json:"now_playing"`
		NowPlayingCamel json.RawMessage `json:"nowPlaying"`
		Song            json.RawMessage `json:"song"`
	}
	if err := json.Unmarshal(env.Data, &nested); err != nil {
		return nil, fmt.Errorf("decoding now playing: %w", err)
	}
	for _, raw := range []json.RawMessage{nested.NowPlaying, nested.NowPlayingCamel, nested.Song} {
		if isObject(raw) {
			var w wireSong
			if err := json.Unmarshal(raw, &w); err != nil {
				return nil, fmt.Errorf("decoding now playing: %w", err)
			}
			s := w.canonical()
			s.Status = models.SongPlaying
			return &s, nil
		}
	}
	return nil, nil
}

func normalizeBalance(env *envelope) (decimal.Decimal, error) {
	if !isObject(env.Data) {
		return decimal.Zero, fmt.Errorf("balance response has no data object")
	}
	var w struct {
		Balance       flexDecimal `json:"balance"`
		WalletBalance flexDecimal `json:"wallet_balance"`
		BalanceCamel  flexDecimal `json:"walletBalance"`
		Amount        flexDecimal `json:"amount"`
	}
	if err := json.Unmarshal(env.Data, &w); err != nil {
		return decimal.Zero, fmt.Errorf("decoding balance: %w", err)
	}
	if !w.Balance.set && !w.WalletBalance.set && !w.BalanceCamel.set && !w.Amount.set {
		return decimal.Zero, fmt.Errorf("balance response missing balance")
	}
	return firstDecimal(w.Balance, w.WalletBalance, w.BalanceCamel, w.Amount), nil
}

type wireTransaction struct {
	Id              flexString  `json:"id"`
	TransactionId   flexString  `json:"transaction_id"`
	Reference       flexString  `json:"reference"`
	Amount          flexDecimal `json:"amount"`
	Type            string      `json:"type"`
	Kind            string      `json:"kind"`
	TransactionType string      `json:"transaction_type"`
	Description     string      `json:"description"`
	Narration       string      `json:"narration"`
	Timestamp       flexTime    `json:"timestamp"`
	CreatedAt       flexTime    `json:"created_at"`
	Date            flexTime    `json:"date"`
	Status          string      `json:"status"`
}

func normalizeKind(raw string, amount decimal.Decimal) models.TransactionKind {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")) {
	case "deposit", "fund", "funding", "credit", "top_up", "topup":
		return models.KindDeposit
	case "withdrawal", "withdraw", "transfer", "transfer_out", "payout":
		return models.KindWithdrawal
	case "payment", "song_request", "debit", "request":
		return models.KindPayment
	case "songpayment", "song_payment", "earning", "earnings", "tip":
		return models.KindSongPayment
	case "refund", "reversal":
		return models.KindRefund
	}
	if amount.IsNegative() {
		return models.KindPayment
	}
	return models.KindDeposit
}

func normalizeTransactionStatus(raw string) models.TransactionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "initiated", "queued":
		return models.StatusPending
	case "processing", "in_progress", "otp":
		return models.StatusProcessing
	case "failed", "failure", "reversed", "cancelled", "canceled", "abandoned":
		return models.StatusFailed
	default:
		return models.StatusCompleted
	}
}

// canonical signs the amount by kind, whatever sign the backend used.
func (w wireTransaction) canonical() models.Transaction {
	amount := firstDecimal(w.Amount)
	kind := normalizeKind(first(w.Kind, w.Type, w.TransactionType), amount)
	signed := amount.Abs()
	if kind.Sign() < 0 {
		signed = signed.Neg()
	}
	return models.Transaction{
		Id:          first(w.Id.String(), w.TransactionId.String(), w.Reference.String()),
		Amount:      signed,
		Kind:        kind,
		Description: first(w.Description, w.Narration),
		Timestamp:   firstTime(w.Timestamp, w.CreatedAt, w.Date),
		Status:      normalizeTransactionStatus(w.Status),
		Reference:   w.Reference.String(),
	}
}

func normalizeTransactions(env *envelope) ([]models.Transaction, error) {
	raw, err := listField(env.Data, "transactions", "history", "transaction_history", "results")
	if err != nil {
		return nil, fmt.Errorf("decoding transactions: %w", err)
	}
	if raw == nil {
		return []models.Transaction{}, nil
	}
	var wire []wireTransaction
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decoding transactions: %w", err)
	}
	txs := make([]models.Transaction, 0, len(wire))
	for _, w := range wire {
		txs = append(txs, w.canonical())
	}
	return txs, nil
}

func normalizeTransfer(env *envelope, fallbackRef string) (*models.TransferResult, error) {
	var w struct {
		Reference    flexString `json:"reference"`
		TransferCode flexString `json:"transfer_code"`
		Status       string     `json:"status"`
	}
	if isObject(env.Data) {
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decoding transfer: %w", err)
		}
	}
	status := models.StatusProcessing
	if w.Status != "" {
		status = normalizeTransactionStatus(w.Status)
	}
	return &models.TransferResult{
		Reference: first(w.Reference.String(), w.TransferCode.String(), fallbackRef),
		Status:    status,
		Message:   env.Message,
	}, nil
}

func normalizeVerification(env *envelope, accountNumber, bankCode string) (*models.AccountVerification, error) {
	if !isObject(env.Data) {
		return nil, fmt.Errorf("verification response has no data object")
	}
	var w struct {
		AccountName      string     `json:"account_name"`
		AccountNameCamel string     `json:"accountName"`
		AccountNumber    flexString `json:"account_number"`
		BankCode         flexString `json:"bank_code"`
	}
	if err := json.Unmarshal(env.Data, &w); err != nil {
		return nil, fmt.Errorf("decoding verification: %w", err)
	}
	name := first(w.AccountName, w.AccountNameCamel)
	if name == "" {
		return nil, fmt.Errorf("verification response missing account name")
	}
	return &models.AccountVerification{
		AccountNumber: first(w.AccountNumber.String(), accountNumber),
		BankCode:      first(w.BankCode.String(), bankCode),
		AccountName:   name,
	}, nil
}

func normalizeBanks(env *envelope) ([]models.Bank, error) {
	raw, err := listField(env.Data, "banks", "results")
	if err != nil {
		return nil, fmt.Errorf("decoding banks: %w", err)
	}
	if raw == nil {
		return []models.Bank{}, nil
	}
	var wire []struct {
		Name     string     `json:"name"`
		BankName string     `json:"bank_name"`
		Code     flexString `json:"code"`
		BankCode flexString `json:"bank_code"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decoding banks: %w", err)
	}
	banks := make([]models.Bank, 0, len(wire))
	for _, w := range wire {
		banks = append(banks, models.Bank{
			Name: first(w.Name, w.BankName),
			Code: first(w.Code.String(), w.BankCode.String()),
		})
	}
	return banks, nil
}
