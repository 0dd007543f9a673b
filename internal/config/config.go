// Package config loads engine settings from the environment with sane
// defaults. cmd/server loads a .env file first via godotenv.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultAddr               = ":8080"
	DefaultMaxRoomConnections = 64
	DefaultHistoryLimit       = 256
	DefaultConflictLimit      = 256
	DefaultOfflineQueueLimit  = 100
	DefaultOfflineRetention   = 10 * time.Minute
	DefaultConflictWindow     = 30 * time.Second
	DefaultHeartbeatInterval  = 15 * time.Second
	DefaultMetricsInterval    = 10 * time.Second
	DefaultOutboxSize         = 64
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultFeedBaseDelay      = 1 * time.Second
	DefaultFeedMaxDelay       = 60 * time.Second
)

// Config carries every tunable for the sync engine.
type Config struct {
	Addr string

	// AuthSecret signs/verifies handshake tokens. Empty enables the
	// permissive dev verifier.
	AuthSecret string

	MaxRoomConnections int
	HistoryLimit       int
	ConflictLimit      int
	OfflineQueueLimit  int
	OfflineRetention   time.Duration
	ConflictWindow     time.Duration

	HeartbeatInterval time.Duration
	MetricsInterval   time.Duration
	OutboxSize        int
	ShutdownTimeout   time.Duration

	// FeedURL is the external live-feed websocket endpoint. Empty disables
	// the feed consumer.
	FeedURL       string
	FeedBaseDelay time.Duration
	FeedMaxDelay  time.Duration
}

// FromEnv builds a Config from LS_-prefixed environment variables, applies
// defaults, and validates.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:       os.Getenv("LS_ADDR"),
		AuthSecret: os.Getenv("LS_AUTH_SECRET"),
		FeedURL:    os.Getenv("LS_FEED_URL"),
	}

	var err error
	if cfg.MaxRoomConnections, err = envInt("LS_MAX_ROOM_CONNECTIONS"); err != nil {
		return Config{}, err
	}
	if cfg.HistoryLimit, err = envInt("LS_HISTORY_LIMIT"); err != nil {
		return Config{}, err
	}
	if cfg.ConflictLimit, err = envInt("LS_CONFLICT_LIMIT"); err != nil {
		return Config{}, err
	}
	if cfg.OfflineQueueLimit, err = envInt("LS_OFFLINE_QUEUE_LIMIT"); err != nil {
		return Config{}, err
	}
	if cfg.OutboxSize, err = envInt("LS_OUTBOX_SIZE"); err != nil {
		return Config{}, err
	}
	if cfg.OfflineRetention, err = envDuration("LS_OFFLINE_RETENTION"); err != nil {
		return Config{}, err
	}
	if cfg.ConflictWindow, err = envDuration("LS_CONFLICT_WINDOW"); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatInterval, err = envDuration("LS_HEARTBEAT_INTERVAL"); err != nil {
		return Config{}, err
	}
	if cfg.MetricsInterval, err = envDuration("LS_METRICS_INTERVAL"); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = envDuration("LS_SHUTDOWN_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.FeedBaseDelay, err = envDuration("LS_FEED_BASE_DELAY"); err != nil {
		return Config{}, err
	}
	if cfg.FeedMaxDelay, err = envDuration("LS_FEED_MAX_DELAY"); err != nil {
		return Config{}, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills every zero-valued optional field.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.MaxRoomConnections == 0 {
		c.MaxRoomConnections = DefaultMaxRoomConnections
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.ConflictLimit == 0 {
		c.ConflictLimit = DefaultConflictLimit
	}
	if c.OfflineQueueLimit == 0 {
		c.OfflineQueueLimit = DefaultOfflineQueueLimit
	}
	if c.OfflineRetention == 0 {
		c.OfflineRetention = DefaultOfflineRetention
	}
	if c.ConflictWindow == 0 {
		c.ConflictWindow = DefaultConflictWindow
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.MetricsInterval == 0 {
		c.MetricsInterval = DefaultMetricsInterval
	}
	if c.OutboxSize == 0 {
		c.OutboxSize = DefaultOutboxSize
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.FeedBaseDelay == 0 {
		c.FeedBaseDelay = DefaultFeedBaseDelay
	}
	if c.FeedMaxDelay == 0 {
		c.FeedMaxDelay = DefaultFeedMaxDelay
	}
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.MaxRoomConnections < 1 {
		return errors.New("max room connections must be >= 1")
	}
	if c.HistoryLimit < 1 {
		return errors.New("history limit must be >= 1")
	}
	if c.ConflictLimit < 1 {
		return errors.New("conflict limit must be >= 1")
	}
	if c.OfflineQueueLimit < 1 {
		return errors.New("offline queue limit must be >= 1")
	}
	if c.OutboxSize < 1 {
		return errors.New("outbox size must be >= 1")
	}
	if c.ConflictWindow <= 0 {
		return errors.New("conflict window must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if c.MetricsInterval <= 0 {
		return errors.New("metrics interval must be positive")
	}
	if c.FeedMaxDelay < c.FeedBaseDelay {
		return errors.New("feed max delay must be >= base delay")
	}
	return nil
}

func envInt(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
