package event

import (
	"encoding/json"
	"fmt"
)

// Payload is the typed variant carried by an event. Exactly one concrete
// payload type exists per event Type.
type Payload interface {
	Kind() Type
}

// ScoreUpdate reports a live score for one game.
type ScoreUpdate struct {
	GameID    string  `json:"gameId"`
	HomeTeam  string  `json:"homeTeam,omitempty"`
	AwayTeam  string  `json:"awayTeam,omitempty"`
	HomeScore float64 `json:"homeScore"`
	AwayScore float64 `json:"awayScore"`
	Period    string  `json:"period,omitempty"`
	Clock     string  `json:"clock,omitempty"`
}

func (ScoreUpdate) Kind() Type { return TypeScoreUpdate }

// PlayerUpdate refreshes one player's live stat line.
type PlayerUpdate struct {
	PlayerID string  `json:"playerId"`
	Name     string  `json:"name,omitempty"`
	TeamID   string  `json:"teamId,omitempty"`
	Points   float64 `json:"points"`
	Status   string  `json:"status,omitempty"`
}

func (PlayerUpdate) Kind() Type { return TypePlayerUpdate }

// LineupChange replaces a team's lineup for one week.
type LineupChange struct {
	TeamID   string   `json:"teamId"`
	Week     int      `json:"week"`
	Starters []string `json:"starters"`
	Bench    []string `json:"bench,omitempty"`
}

func (LineupChange) Kind() Type { return TypeLineupChange }

// TradeProposal offers players between two teams.
type TradeProposal struct {
	TradeID          string   `json:"tradeId"`
	FromTeam         string   `json:"fromTeam"`
	ToTeam           string   `json:"toTeam"`
	OfferedPlayers   []string `json:"offeredPlayers"`
	RequestedPlayers []string `json:"requestedPlayers"`
	Note             string   `json:"note,omitempty"`
}

func (TradeProposal) Kind() Type { return TypeTradeProposal }

// InjuryAlert flags a player's availability change.
type InjuryAlert struct {
	PlayerID string `json:"playerId"`
	Status   string `json:"status"` // questionable, doubtful, out, ...
	Detail   string `json:"detail,omitempty"`
}

func (InjuryAlert) Kind() Type { return TypeInjuryAlert }

// WaiverClaim bids on a free agent, optionally dropping a rostered player.
type WaiverClaim struct {
	ClaimID      string `json:"claimId"`
	TeamID       string `json:"teamId"`
	PlayerID     string `json:"playerId"`
	DropPlayerID string `json:"dropPlayerId,omitempty"`
	Bid          int    `json:"bid"`
}

func (WaiverClaim) Kind() Type { return TypeWaiverClaim }

// DraftPick records one selection in the league draft.
type DraftPick struct {
	Pick     int    `json:"pick"`
	Round    int    `json:"round,omitempty"`
	TeamID   string `json:"teamId"`
	PlayerID string `json:"playerId"`
}

func (DraftPick) Kind() Type { return TypeDraftPick }

// LeagueSettings carries a partial update of league-wide settings.
type LeagueSettings struct {
	Settings map[string]string `json:"settings"`
}

func (LeagueSettings) Kind() Type { return TypeLeagueSettings }

// ChatMessage is a transient room chat line. Never materialized.
type ChatMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
}

func (ChatMessage) Kind() Type { return TypeChatMessage }

// DecodePayload parses raw JSON into the concrete payload for t.
func DecodePayload(t Type, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	var (
		p   Payload
		err error
	)
	switch t {
	case TypeScoreUpdate:
		p, err = decodeInto[ScoreUpdate](raw)
	case TypePlayerUpdate:
		p, err = decodeInto[PlayerUpdate](raw)
	case TypeLineupChange:
		p, err = decodeInto[LineupChange](raw)
	case TypeTradeProposal:
		p, err = decodeInto[TradeProposal](raw)
	case TypeInjuryAlert:
		p, err = decodeInto[InjuryAlert](raw)
	case TypeWaiverClaim:
		p, err = decodeInto[WaiverClaim](raw)
	case TypeDraftPick:
		p, err = decodeInto[DraftPick](raw)
	case TypeLeagueSettings:
		p, err = decodeInto[LeagueSettings](raw)
	case TypeChatMessage:
		p, err = decodeInto[ChatMessage](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return p, nil
}

func decodeInto[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodePayload renders a payload back to raw JSON.
func EncodePayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, ErrEmptyPayload
	}
	return json.Marshal(p)
}
