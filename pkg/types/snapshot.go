package types

import "encoding/json"

// WireEvent is the JSON form of an applied (or proposed) sync event.
type WireEvent struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	RoomID      string          `json:"roomId"`
	Identity    string          `json:"identity,omitempty"`
	Timestamp   int64           `json:"timestamp"` // origination, unix millis
	Version     uint64          `json:"version,omitempty"`
	Priority    string          `json:"priority"`
	RequiresAck bool            `json:"requiresAck,omitempty"`
	Data        json.RawMessage `json:"data"`
}

// WireConflict is the JSON form of a conflict-resolution record.
type WireConflict struct {
	ConflictID  string     `json:"conflictId"`
	Strategy    string     `json:"strategy"`
	Status      string     `json:"status"`
	Original    WireEvent  `json:"originalEvent"`
	Conflicting WireEvent  `json:"conflictingEvent"`
	Resolved    *WireEvent `json:"resolvedEvent,omitempty"`
}

// RoomData is the materialized view keyed by section ("scores", "players",
// "lineups", "trades", "waivers", "injuries", "settings", "draft") and then
// by the section's logical key.
type RoomData map[string]map[string]json.RawMessage
