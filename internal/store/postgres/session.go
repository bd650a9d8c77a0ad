package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/store"
)

const sessionColumns = `is_active, current_player_id, lot, round, min_bid_increment,
	unsold_price_reduction_factor, auction_date, version, updated_at`

// SessionRepo implements store.SessionRepository with sqlx.
type SessionRepo struct {
	q     sqlx.ExtContext
	clock clock.Clock
}

// NewSessionRepo returns a new SessionRepo.
func NewSessionRepo(q sqlx.ExtContext, clk clock.Clock) *SessionRepo {
	return &SessionRepo{q: q, clock: clk}
}

func (r *SessionRepo) Get(ctx context.Context) (*store.Session, error) {
	var s store.Session
	if err := sqlx.GetContext(ctx, r.q, &s, `SELECT `+sessionColumns+` FROM auction_session WHERE id = 1`); err != nil {
		return nil, notFound(err, "auction session")
	}
	return &s, nil
}

// Lock reads the session with FOR UPDATE. Inside a transaction concurrent
// transitions and bids queue on the row until commit.
func (r *SessionRepo) Lock(ctx context.Context) (*store.Session, error) {
	var s store.Session
	if err := sqlx.GetContext(ctx, r.q, &s, `SELECT `+sessionColumns+` FROM auction_session WHERE id = 1 FOR UPDATE`); err != nil {
		return nil, notFound(err, "auction session")
	}
	return &s, nil
}

func (r *SessionRepo) Init(ctx context.Context, s *store.Session) (bool, error) {
	now := r.clock.Now().UTC()
	result, err := r.q.ExecContext(ctx,
		`INSERT INTO auction_session (id, is_active, current_player_id, lot, round, min_bid_increment,
		                              unsold_price_reduction_factor, auction_date, version, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7, 1, $8)
		 ON CONFLICT (id) DO NOTHING`,
		s.IsActive, s.CurrentPlayerID, s.Lot, s.Round, s.MinBidIncrement,
		s.UnsoldPriceReductionFactor, s.AuctionDate, now,
	)
	if err != nil {
		return false, fmt.Errorf("initialising auction session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return false, nil
	}
	s.Version = 1
	s.UpdatedAt = now
	return true, nil
}

func (r *SessionRepo) Save(ctx context.Context, s *store.Session) error {
	now := r.clock.Now().UTC()
	result, err := r.q.ExecContext(ctx,
		`UPDATE auction_session SET is_active = $1, current_player_id = $2, lot = $3, round = $4,
		        min_bid_increment = $5, unsold_price_reduction_factor = $6, auction_date = $7,
		        version = version + 1, updated_at = $8
		 WHERE id = 1 AND version = $9`,
		s.IsActive, s.CurrentPlayerID, s.Lot, s.Round, s.MinBidIncrement,
		s.UnsoldPriceReductionFactor, s.AuctionDate, now, s.Version,
	)
	if err != nil {
		return fmt.Errorf("saving auction session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		if _, err := r.Get(ctx); err != nil {
			return err
		}
		return fmt.Errorf("auction session version %d: %w", s.Version, store.ErrConflict)
	}
	s.Version++
	s.UpdatedAt = now
	return nil
}
