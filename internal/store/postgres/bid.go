package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/store"
)

// BidRepo implements store.BidRepository with sqlx.
type BidRepo struct {
	q     sqlx.ExtContext
	clock clock.Clock
}

// NewBidRepo returns a new BidRepo.
func NewBidRepo(q sqlx.ExtContext, clk clock.Clock) *BidRepo {
	return &BidRepo{q: q, clock: clk}
}

func (r *BidRepo) Append(ctx context.Context, b *store.Bid) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.clock.Now().UTC()
	}
	err := sqlx.GetContext(ctx, r.q, &b.Seq,
		`INSERT INTO bids (id, player_id, team_id, amount, lot, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING seq`,
		b.ID, b.PlayerID, b.TeamID, b.Amount, b.Lot, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending bid: %w", err)
	}
	return nil
}

func (r *BidRepo) Highest(ctx context.Context, playerID string, lot int) (*store.Bid, error) {
	var b store.Bid
	err := sqlx.GetContext(ctx, r.q, &b,
		`SELECT id, player_id, team_id, amount, lot, seq, created_at FROM bids
		 WHERE player_id = $1 AND lot = $2 ORDER BY amount DESC, seq ASC LIMIT 1`, playerID, lot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting highest bid: %w", err)
	}
	return &b, nil
}

func (r *BidRepo) ListForPlayer(ctx context.Context, playerID string) ([]store.Bid, error) {
	var bids []store.Bid
	err := sqlx.SelectContext(ctx, r.q, &bids,
		`SELECT id, player_id, team_id, amount, lot, seq, created_at FROM bids
		 WHERE player_id = $1 ORDER BY seq DESC`, playerID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	return bids, nil
}
