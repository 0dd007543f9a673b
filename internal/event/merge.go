package event

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Merge combines two conflicting events of the same type into a fresh event.
// Fields are merged per-key; where both events set the same field, the value
// from the event with the larger origination timestamp wins. The merged
// event carries a new id and the larger of the two timestamps.
func Merge(a, b Event) (Event, error) {
	if a.Type != b.Type {
		return Event{}, fmt.Errorf("merge across event types %s/%s", a.Type, b.Type)
	}
	older, newer := a, b
	if older.Timestamp.After(newer.Timestamp) {
		older, newer = newer, older
	}

	base, err := payloadFields(older.Payload)
	if err != nil {
		return Event{}, err
	}
	overlay, err := payloadFields(newer.Payload)
	if err != nil {
		return Event{}, err
	}
	for k, v := range overlay {
		base[k] = v
	}

	raw, err := json.Marshal(base)
	if err != nil {
		return Event{}, fmt.Errorf("encode merged fields: %w", err)
	}
	merged, err := DecodePayload(a.Type, raw)
	if err != nil {
		return Event{}, fmt.Errorf("rebuild merged payload: %w", err)
	}

	prio := a.Priority
	if rank(b.Priority) > rank(a.Priority) {
		prio = b.Priority
	}
	return Event{
		ID:          uuid.NewString(),
		Type:        a.Type,
		RoomID:      a.RoomID,
		Identity:    newer.Identity,
		Timestamp:   newer.Timestamp,
		Priority:    prio,
		RequiresAck: a.RequiresAck || b.RequiresAck,
		Payload:     merged,
	}, nil
}

func payloadFields(p Payload) (map[string]json.RawMessage, error) {
	raw, err := EncodePayload(p)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("flatten payload: %w", err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}
	return fields, nil
}

func rank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}
