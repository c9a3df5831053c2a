// Package fakebackend is an in-memory party/wallet backend speaking the same
// wire format as production, for engine and client tests.
package fakebackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"party-request-go/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

var signingKey = []byte("fakebackend-signing-key")

type user struct {
	id       string
	username string
	password string
	role     models.Role
	userType models.UserType
	balance  decimal.Decimal
	history  []models.Transaction
	joined   []string
}

type Server struct {
	mu sync.Mutex

	srv *httptest.Server

	users      map[string]*user
	byName     map[string]*user
	tokens     map[string]string
	parties    map[string]*models.Party
	byPasscode map[string]string

	nextId       int
	nextPasscode int

	hits     map[string]int
	failures map[string][]int
	offline  bool

	// TokenTTL sets the exp claim of issued JWTs.
	TokenTTL time.Duration
	Now      func() time.Time
}

func New() *Server {
	s := &Server{
		users:        make(map[string]*user),
		byName:       make(map[string]*user),
		tokens:       make(map[string]string),
		parties:      make(map[string]*models.Party),
		byPasscode:   make(map[string]string),
		hits:         make(map[string]int),
		failures:     make(map[string][]int),
		nextPasscode: 482910,
		TokenTTL:     time.Hour,
		Now:          time.Now,
	}
	s.srv = httptest.NewServer(s.routes())
	return s
}

func (s *Server) URL() string {
	return s.srv.URL
}

func (s *Server) Close() {
	s.srv.Close()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{ns}/us_log/{$}", s.handleLogin)
	mux.HandleFunc("POST /{ns}/crt_ur/{$}", s.handleRegister)
	mux.HandleFunc("GET /{ns}/me/{$}", s.authed(s.handleMe))

	mux.HandleFunc("POST /dj_wallet/crt_hub/{$}", s.authed(s.handleCreateParty))
	mux.HandleFunc("POST /user_wallet/jo/_hub/{$}", s.authed(s.handleJoinParty))
	mux.HandleFunc("GET /user_wallet/get/hub/details/{passcode}", s.authed(s.handlePartyDetails))
	mux.HandleFunc("POST /dj_wallet/song_list/{$}", s.authed(s.handleSongList))
	mux.HandleFunc("POST /{ns}/get_now_playing/{$}", s.authed(s.handleNowPlaying))
	mux.HandleFunc("POST /{ns}/get_hubs/{$}", s.authed(s.handleListParties))
	mux.HandleFunc("DELETE /dj_wallet/delete_hub/{id}", s.authed(s.handleCloseParty))
	mux.HandleFunc("POST /dj_wallet/update_hub/{$}", s.authed(s.handleUpdateParty))
	mux.HandleFunc("POST /user_wallet/request_song/{$}", s.authed(s.handleRequestSong))
	mux.HandleFunc("POST /dj_wallet/update_song/{$}", s.authed(s.handleUpdateSong))

	mux.HandleFunc("POST /{ns}/check/wal_bal/user/{$}", s.authed(s.handleBalance))
	mux.HandleFunc("POST /{ns}/transaction_history/{$}", s.authed(s.handleHistory))
	mux.HandleFunc("POST /transfer_out/{$}", s.authed(s.handleTransferOut))
	mux.HandleFunc("POST /user_wallet/verify_account/{$}", s.authed(s.handleVerifyAccount))
	mux.HandleFunc("POST /user_wallet/list_banks/{$}", s.authed(s.handleListBanks))

	return s.intercept(mux)
}

// intercept counts hits and applies injected failures before routing.
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		offline := s.offline
		var status int
		if queued := s.failures[r.URL.Path]; len(queued) > 0 {
			status = queued[0]
			s.failures[r.URL.Path] = queued[1:]
		}
		s.mu.Unlock()

		if offline {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
					return
				}
			}
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if status != 0 {
			writeError(w, status, fmt.Sprintf("injected %d", status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, u *user)

func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		u, ok := s.users[s.tokens[token]]
		s.mu.Unlock()
		if token == "" || !ok {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		h(w, r, u)
	}
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits returns the number of requests received on any path.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

// FailNext makes the next request to path answer with status.
func (s *Server) FailNext(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], status)
}

// SetOffline drops every connection while on.
func (s *Server) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// AddUser creates an account and returns its id.
func (s *Server) AddUser(username, password string, role models.Role) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, password, role).id
}

func (s *Server) addUserLocked(username, password string, role models.Role) *user {
	s.nextId++
	u := &user{
		id:       fmt.Sprintf("%d", s.nextId),
		username: username,
		password: password,
		role:     role,
		userType: models.UserTypeMember,
	}
	s.users[u.id] = u
	s.byName[username] = u
	return u
}

// Deposit credits a user as a settled deposit.
func (s *Server) Deposit(userId string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userId]
	u.balance = u.balance.Add(amount)
	s.recordLocked(u, amount, models.KindDeposit, "Wallet funding", models.StatusCompleted, "")
}

func (s *Server) BalanceOf(userId string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userId].balance
}

// Party returns a copy of the stored party.
func (s *Server) Party(id string) (models.Party, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.parties[id]
	if !ok {
		return models.Party{}, false
	}
	return *p.Clone(), true
}

// RevokeTokens invalidates every issued token.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// SettleTransfer completes or fails a processing withdrawal. A failed
// withdrawal is reversed into the balance.
func (s *Server) SettleTransfer(reference string, ok bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		for i := range u.history {
			tx := &u.history[i]
			if tx.Reference != reference || tx.Kind != models.KindWithdrawal || tx.Status != models.StatusProcessing {
				continue
			}
			if ok {
				tx.Status = models.StatusCompleted
			} else {
				tx.Status = models.StatusFailed
				u.balance = u.balance.Add(tx.Amount.Abs())
			}
			return true
		}
	}
	return false
}

func (s *Server) issueTokenLocked(u *user) string {
	now := s.Now()
	claims := jwt.MapClaims{
		"sub": u.id,
		"iat": now.Unix(),
		"exp": now.Add(s.TokenTTL).Unix(),
		"jti": fmt.Sprintf("%s-%d", u.id, len(s.tokens)+1),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	s.tokens[signed] = u.id
	return signed
}

func (s *Server) recordLocked(u *user, amount decimal.Decimal, kind models.TransactionKind, description string, status models.TransactionStatus, reference string) models.Transaction {
	s.nextId++
	signed := amount.Abs()
	if kind.Sign() < 0 {
		signed = signed.Neg()
	}
	tx := models.Transaction{
		Id:          fmt.Sprintf("tx-%d", s.nextId),
		Amount:      signed,
		Kind:        kind,
		Description: description,
		Timestamp:   s.Now().UTC(),
		Status:      status,
		Reference:   reference,
	}
	u.history = append(u.history, tx)
	return tx
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "error",
		"data":   map[string]string{"message": message},
	})
}
