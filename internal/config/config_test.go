package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	require.Equal(t, DefaultAddr, cfg.Addr)
	require.Equal(t, DefaultMaxRoomConnections, cfg.MaxRoomConnections)
	require.Equal(t, DefaultHistoryLimit, cfg.HistoryLimit)
	require.Equal(t, DefaultOfflineQueueLimit, cfg.OfflineQueueLimit)
	require.Equal(t, DefaultOfflineRetention, cfg.OfflineRetention)
	require.Equal(t, DefaultConflictWindow, cfg.ConflictWindow)
	require.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	require.Empty(t, cfg.AuthSecret)
	require.Empty(t, cfg.FeedURL)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LS_ADDR", ":9999")
	t.Setenv("LS_MAX_ROOM_CONNECTIONS", "5")
	t.Setenv("LS_CONFLICT_WINDOW", "45s")
	t.Setenv("LS_HEARTBEAT_INTERVAL", "5s")
	t.Setenv("LS_FEED_URL", "wss://feed.example.com/live")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, 5, cfg.MaxRoomConnections)
	require.Equal(t, 45*time.Second, cfg.ConflictWindow)
	require.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	require.Equal(t, "wss://feed.example.com/live", cfg.FeedURL)
}

func TestFromEnv_BadValues(t *testing.T) {
	t.Setenv("LS_HISTORY_LIMIT", "plenty")
	_, err := FromEnv()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.MaxRoomConnections = -1
	require.Error(t, bad.Validate())

	bad = cfg
	bad.FeedBaseDelay = time.Minute
	bad.FeedMaxDelay = time.Second
	require.Error(t, bad.Validate())
}
