package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastbreaklabs/leaguesync/pkg/types"
)

var (
	ErrUnknownType     = errors.New("unknown event type")
	ErrUnknownPriority = errors.New("unknown priority")
	ErrEmptyPayload    = errors.New("empty payload")
)

// Type identifies the kind of state mutation an event carries.
type Type string

const (
	TypeScoreUpdate    Type = "score-update"
	TypePlayerUpdate   Type = "player-update"
	TypeLineupChange   Type = "lineup-change"
	TypeTradeProposal  Type = "trade-proposal"
	TypeInjuryAlert    Type = "injury-alert"
	TypeWaiverClaim    Type = "waiver-claim"
	TypeDraftPick      Type = "draft-pick"
	TypeLeagueSettings Type = "league-settings"
	TypeChatMessage    Type = "chat-message"
)

// AllTypes lists every event type.
func AllTypes() []Type {
	return []Type{
		TypeScoreUpdate, TypePlayerUpdate, TypeLineupChange, TypeTradeProposal,
		TypeInjuryAlert, TypeWaiverClaim, TypeDraftPick, TypeLeagueSettings,
		TypeChatMessage,
	}
}

// ParseType validates a wire-level event type string.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeScoreUpdate, TypePlayerUpdate, TypeLineupChange, TypeTradeProposal,
		TypeInjuryAlert, TypeWaiverClaim, TypeDraftPick, TypeLeagueSettings,
		TypeChatMessage:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// Priority orders delivery importance. Critical events bypass channel filters.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority validates a wire-level priority. Empty defaults to medium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return p, nil
	case "":
		return PriorityMedium, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPriority, s)
	}
}

// Event is an immutable state-mutation record. Version is zero until the
// event is applied to a room, at which point the room stamps it.
type Event struct {
	ID          string
	Type        Type
	RoomID      string
	Identity    string // originating identity; empty for feed-generated events
	Timestamp   time.Time
	Version     uint64
	Priority    Priority
	RequiresAck bool
	Payload     Payload
}

// New builds an event with a fresh id. Payload must match t.
func New(t Type, roomID, identity string, ts time.Time, prio Priority, ack bool, p Payload) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		RoomID:      roomID,
		Identity:    identity,
		Timestamp:   ts,
		Priority:    prio,
		RequiresAck: ack,
		Payload:     p,
	}
}

// Wire converts the event to its JSON contract form.
func (e Event) Wire() types.WireEvent {
	data, _ := EncodePayload(e.Payload)
	return types.WireEvent{
		ID:          e.ID,
		Type:        string(e.Type),
		RoomID:      e.RoomID,
		Identity:    e.Identity,
		Timestamp:   e.Timestamp.UnixMilli(),
		Version:     e.Version,
		Priority:    string(e.Priority),
		RequiresAck: e.RequiresAck,
		Data:        data,
	}
}

// FromWire reconstructs an event from its JSON contract form.
func FromWire(w types.WireEvent) (Event, error) {
	t, err := ParseType(w.Type)
	if err != nil {
		return Event{}, err
	}
	prio, err := ParsePriority(w.Priority)
	if err != nil {
		return Event{}, err
	}
	p, err := DecodePayload(t, w.Data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:          w.ID,
		Type:        t,
		RoomID:      w.RoomID,
		Identity:    w.Identity,
		Timestamp:   time.UnixMilli(w.Timestamp),
		Version:     w.Version,
		Priority:    prio,
		RequiresAck: w.RequiresAck,
		Payload:     p,
	}, nil
}
