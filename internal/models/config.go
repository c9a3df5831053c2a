package models

import "time"

// Config represents the application configuration
type Config struct {
	Backend  BackendConfig
	Session  SessionConfig
	Cache    CacheConfig
	Party    PartyConfig
	Wallet   WalletConfig
	Listener ListenerConfig
}

// BackendConfig holds remote API settings
type BackendConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RetryDelay     time.Duration
	RetryWindow    time.Duration
	RateLimit      float64
	RateBurst      int
}

// SessionConfig holds authentication settings
type SessionConfig struct {
	TokenTTL time.Duration
}

// CacheConfig holds persistent local cache settings
type CacheConfig struct {
	Backend         string // "sqlite", "redis" or "memory"
	Prefix          string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	RedisURL        string
}

// PartyConfig holds party engine settings
type PartyConfig struct {
	MinRequestPrice int64
	JoinBaseURL     string
}

// WalletConfig holds wallet engine settings
type WalletConfig struct {
	UnconfirmedGrace time.Duration
	BanksFile        string
}

// ListenerConfig holds sync listener settings
type ListenerConfig struct {
	PollingInterval time.Duration
	CleanupInterval time.Duration
	SeenWindow      time.Duration
	MetricsAddr     string
}
