package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	AuctionStarted          Type = "auction.started"
	AuctionEnded            Type = "auction.ended"
	PlayerSold              Type = "player.sold"
	PlayerUnsold            Type = "player.unsold"
	PlayerPermanentlyUnsold Type = "player.permanently_unsold"
	RoundAdvanced           Type = "round.advanced"
	RoundOverridden         Type = "round.overridden"

	TeamCreated     Type = "team.created"
	PlayersImported Type = "players.imported"
)

// SessionAggregate is the aggregate ID shared by all auction session events.
// Their versions follow the session record version.
const SessionAggregate = "auction-session"

// Event represents a single domain event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// AuctionStartedData is the payload for AuctionStarted events.
type AuctionStartedData struct {
	PlayerID string `json:"player_id"`
	Round    string `json:"round"`
	Lot      int    `json:"lot"`
}

// AuctionEndedData is the payload for AuctionEnded events. The player stays
// on the block awaiting a sale or an unsold verdict.
type AuctionEndedData struct {
	PlayerID string `json:"player_id"`
	Lot      int    `json:"lot"`
}

// PlayerSoldData is the payload for PlayerSold events.
type PlayerSoldData struct {
	PlayerID string `json:"player_id"`
	TeamID   string `json:"team_id"`
	Amount   int    `json:"amount"`
	BidID    string `json:"bid_id"`
}

// PlayerUnsoldData is the payload for PlayerUnsold and PlayerPermanentlyUnsold events.
type PlayerUnsoldData struct {
	PlayerID    string `json:"player_id"`
	UnsoldCount int    `json:"unsold_count"`
}

// RoundChangedData is the payload for RoundAdvanced and RoundOverridden events.
type RoundChangedData struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Requeued int    `json:"requeued,omitempty"`
	Operator string `json:"operator,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// TeamCreatedData is the payload for TeamCreated events.
type TeamCreatedData struct {
	Name   string `json:"name"`
	Wallet int    `json:"wallet"`
}

// PlayersImportedData is the payload for PlayersImported events.
type PlayersImportedData struct {
	Created  int `json:"created"`
	Warnings int `json:"warnings"`
}
