package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across all cache backends.
var (
	ErrCacheMiss              = errors.New("cache miss")
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// Key names one cached entity for a user.
type Key string

const (
	KeyCurrentParty   Key = "current_party"
	KeyJoinedParties  Key = "joined_parties"
	KeyCreatedParties Key = "created_parties"
	KeyClosedParties  Key = "closed_parties"
	KeyWalletBalance  Key = "wallet_balance"
	KeyTransactions   Key = "transactions"
	KeyPaymentMethods Key = "payment_methods"
	KeyAuthToken      Key = "auth_token"
	KeyTokenExpiry    Key = "token_expiry"
	KeyUserProfile    Key = "user_profile"
	KeyVerification   Key = "account_verification"
)

// DeviceUser is the pseudo user id for device-level entries.
const DeviceUser = "_device"

// KeyLastSession points at the user id that was signed in last on this device.
const KeyLastSession Key = "last_session"

// UserKeys lists every per-user entity; Purge removes all of them.
var UserKeys = []Key{
	KeyCurrentParty, KeyJoinedParties, KeyCreatedParties, KeyClosedParties,
	KeyWalletBalance, KeyTransactions, KeyPaymentMethods,
	KeyAuthToken, KeyTokenExpiry, KeyUserProfile, KeyVerification,
}

// Source tags where a snapshot came from.
type Source string

const (
	SourceLocal  Source = "local"
	SourceCached Source = "cached"
	SourceServer Source = "server"
)

// Entry is a tagged snapshot of one entity.
type Entry struct {
	Payload   []byte
	Source    Source
	Revision  int64
	UpdatedAt time.Time
}

// StorageKey builds the namespaced key "<prefix>:<entity>:<userId>".
func StorageKey(prefix string, key Key, userId string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, key, userId)
}

// CacheStore defines the contract every persistent cache backend (SQLite, Redis, ...) must satisfy.
type CacheStore interface {
	// Put writes entry. A non-zero expectedRevision must match the stored
	// revision or ErrConcurrentModification is returned. The stored revision
	// is returned.
	Put(ctx context.Context, userId string, key Key, entry Entry, expectedRevision int64) (int64, error)
	Get(ctx context.Context, userId string, key Key) (*Entry, error)
	Delete(ctx context.Context, userId string, keys ...Key) error
	Purge(ctx context.Context, userId string) error
	Close()
}
