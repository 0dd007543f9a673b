package types

import "encoding/json"

// Client -> Server message types.
const (
	MsgPing               = "ping"
	MsgSubscribe          = "subscribe"
	MsgUnsubscribe        = "unsubscribe"
	MsgSyncEvent          = "sync-event"
	MsgAck                = "ack"
	MsgConflictResolution = "conflict-resolution"
)

// Server -> Client message types.
const (
	MsgPong                  = "pong"
	MsgSubscriptionConfirmed = "subscription-confirmed"
	MsgInitialSync           = "initial-sync"
	MsgOfflineSync           = "offline-sync"
	MsgError                 = "error"
	MsgConflictNotification  = "conflict-notification"
)

// ClientMessage is the inbound envelope. Fields are populated per Type.
type ClientMessage struct {
	Type      string   `json:"type"`
	Timestamp int64    `json:"timestamp,omitempty"` // ping: client send time (unix millis)
	Channels  []string `json:"channels,omitempty"`  // subscribe / unsubscribe

	// sync-event
	EventType   string          `json:"eventType,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Version     uint64          `json:"version,omitempty"` // client's last known room version
	Priority    string          `json:"priority,omitempty"`
	RequiresAck bool            `json:"requiresAck,omitempty"`

	// ack
	EventID string `json:"eventId,omitempty"`

	// conflict-resolution
	ConflictID string `json:"conflictId,omitempty"`
	Resolution string `json:"resolution,omitempty"` // "original" or "conflicting"
}

// ServerMessage is the outbound envelope. Fields are populated per Type.
type ServerMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`

	// pong
	LatencyMS int64 `json:"latency,omitempty"`

	// subscription-confirmed
	Channels []string `json:"channels,omitempty"`

	// sync-event
	Event *WireEvent `json:"event,omitempty"`

	// initial-sync
	Version      uint64      `json:"version,omitempty"`
	Data         RoomData    `json:"data,omitempty"`
	RecentEvents []WireEvent `json:"recentEvents,omitempty"`

	// offline-sync
	Events        []WireEvent `json:"events,omitempty"`
	LastSync      int64       `json:"lastSync,omitempty"`
	ConflictCount int         `json:"conflictCount,omitempty"`

	// error
	Error string `json:"error,omitempty"`

	// conflict-notification
	Conflict *WireConflict `json:"conflict,omitempty"`
}
