package store

import (
	"context"
	"errors"
	"time"
)

// Errors returned by repositories.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write matched no row because
	// the record changed underneath the caller.
	ErrConflict = errors.New("conflicting update")
)

// PlayerStatus is the lifecycle state of a player in the auction.
type PlayerStatus string

// Player statuses.
const (
	StatusAvailable         PlayerStatus = "available"
	StatusSold              PlayerStatus = "sold"
	StatusUnsold            PlayerStatus = "unsold"
	StatusPermanentlyUnsold PlayerStatus = "permanently_unsold"
)

// Valid reports whether s is a known status.
func (s PlayerStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusSold, StatusUnsold, StatusPermanentlyUnsold:
		return true
	}
	return false
}

// Player is an auctionable player on the roster.
type Player struct {
	ID           string       `db:"id" json:"id"`
	Name         string       `db:"name" json:"name"`
	Role         string       `db:"role" json:"role"`
	BattingStyle string       `db:"batting_style" json:"batting_style"`
	BowlingStyle string       `db:"bowling_style" json:"bowling_style"`
	BasePrice    int          `db:"base_price" json:"base_price"`
	Status       PlayerStatus `db:"status" json:"status"`
	SoldTo       *string      `db:"sold_to" json:"sold_to"`
	SoldAmount   int          `db:"sold_amount" json:"sold_amount"`
	// UnsoldCount is how many times the player went unsold; the replay round runs once per player.
	UnsoldCount int       `db:"unsold_count" json:"unsold_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PlayerProfile holds the admin-editable attributes of a player.
type PlayerProfile struct {
	Name         string
	Role         string
	BattingStyle string
	BowlingStyle string
	BasePrice    int
}

// Team is a franchise that buys players out of its wallet.
type Team struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	OwnerName     string    `db:"owner_name" json:"owner_name"`
	OwnerContact  string    `db:"owner_contact" json:"owner_contact"`
	Wallet        int       `db:"wallet" json:"wallet"`
	InitialWallet int       `db:"initial_wallet" json:"initial_wallet"`
	Players       []string  `db:"-" json:"players"` // acquisition order
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Bid is an append-only ledger entry.
type Bid struct {
	ID       string `db:"id" json:"id"`
	PlayerID string `db:"player_id" json:"player_id"`
	TeamID   string `db:"team_id" json:"team_id"`
	Amount   int    `db:"amount" json:"amount"`
	// Lot is the session lot the bid was placed in.
	Lot int `db:"lot" json:"lot"`
	// Seq is assigned by the store and orders bids by arrival.
	Seq       int64     `db:"seq" json:"seq"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Round is the auction round axis of the session.
type Round string

// Rounds.
const (
	RoundMain         Round = "main"
	RoundUnsoldReplay Round = "unsold_replay"
)

// Session is the single auction session record.
type Session struct {
	IsActive bool `db:"is_active" json:"is_active"`
	// CurrentPlayerID stays set after the auction ends until the player is
	// sold or marked unsold.
	CurrentPlayerID *string `db:"current_player_id" json:"current_player_id"`
	// Lot counts auctions started; only bids from the current lot compete.
	Lot                        int       `db:"lot" json:"lot"`
	Round                      Round     `db:"round" json:"round"`
	MinBidIncrement            int       `db:"min_bid_increment" json:"min_bid_increment"`
	UnsoldPriceReductionFactor float64   `db:"unsold_price_reduction_factor" json:"unsold_price_reduction_factor"`
	AuctionDate                time.Time `db:"auction_date" json:"auction_date"`
	// Version increments on every save and guards against lost updates.
	Version   int       `db:"version" json:"version"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PlayerRepository defines player persistence operations.
type PlayerRepository interface {
	Create(ctx context.Context, p *Player) error
	Get(ctx context.Context, id string) (*Player, error)
	List(ctx context.Context) ([]Player, error)
	ListByStatus(ctx context.Context, status PlayerStatus) ([]Player, error)
	CountByStatus(ctx context.Context, status PlayerStatus) (int, error)
	UpdateProfile(ctx context.Context, id string, profile PlayerProfile) error
	// MarkSold moves an available player to sold. ErrConflict if the player is not available.
	MarkSold(ctx context.Context, id, teamID string, amount int) error
	// MarkUnsold moves an available player to status (unsold or permanently_unsold)
	// and increments its unsold count. ErrConflict if the player is not available.
	MarkUnsold(ctx context.Context, id string, status PlayerStatus) error
	// RequeueUnsold moves every unsold player back to available and returns how many moved.
	RequeueUnsold(ctx context.Context) (int, error)
}

// TeamRepository defines team persistence operations.
type TeamRepository interface {
	Create(ctx context.Context, t *Team) error
	Get(ctx context.Context, id string) (*Team, error)
	List(ctx context.Context) ([]Team, error)
	UpdateProfile(ctx context.Context, id, name, ownerName, ownerContact string) error
	// Debit subtracts amount from the wallet. ErrConflict if the wallet is below amount.
	Debit(ctx context.Context, id string, amount int) error
	// AddPlayer appends playerID to the team's roster.
	AddPlayer(ctx context.Context, teamID, playerID string) error
}

// BidRepository is the storage side of the bid ledger.
type BidRepository interface {
	// Append stores b and assigns its Seq.
	Append(ctx context.Context, b *Bid) error
	// Highest returns the maximum-amount bid for playerID placed in lot,
	// earliest first on ties, or nil when there is none.
	Highest(ctx context.Context, playerID string, lot int) (*Bid, error)
	// ListForPlayer returns bids for playerID, most recent first.
	ListForPlayer(ctx context.Context, playerID string) ([]Bid, error)
}

// SessionRepository stores the single auction session record.
type SessionRepository interface {
	// Get returns ErrNotFound until Init has run.
	Get(ctx context.Context) (*Session, error)
	// Lock is Get that, inside Atomic, holds the record until the unit of
	// work ends.
	Lock(ctx context.Context) (*Session, error)
	// Init stores s if no session exists. It reports whether s was stored.
	Init(ctx context.Context, s *Session) (bool, error)
	// Save writes s if the stored version equals s.Version, then bumps s.Version.
	// ErrConflict if the stored version differs.
	Save(ctx context.Context, s *Session) error
}
