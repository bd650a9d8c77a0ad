package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/store"
)

const playerColumns = `id, name, role, batting_style, bowling_style, base_price, status,
	sold_to, sold_amount, unsold_count, created_at, updated_at`

// PlayerRepo implements store.PlayerRepository with sqlx.
type PlayerRepo struct {
	q     sqlx.ExtContext
	clock clock.Clock
}

// NewPlayerRepo returns a new PlayerRepo.
func NewPlayerRepo(q sqlx.ExtContext, clk clock.Clock) *PlayerRepo {
	return &PlayerRepo{q: q, clock: clk}
}

func (r *PlayerRepo) Create(ctx context.Context, p *store.Player) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = store.StatusAvailable
	}
	now := r.clock.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO players (id, name, role, batting_style, bowling_style, base_price, status,
		                      sold_to, sold_amount, unsold_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.Name, p.Role, p.BattingStyle, p.BowlingStyle, p.BasePrice, p.Status,
		p.SoldTo, p.SoldAmount, p.UnsoldCount, p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("player %s: %w", p.ID, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("creating player: %w", err)
	}
	return nil
}

func (r *PlayerRepo) Get(ctx context.Context, id string) (*store.Player, error) {
	var p store.Player
	err := sqlx.GetContext(ctx, r.q, &p, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, "player "+id)
	}
	return &p, nil
}

func (r *PlayerRepo) List(ctx context.Context) ([]store.Player, error) {
	var players []store.Player
	err := sqlx.SelectContext(ctx, r.q, &players, `SELECT `+playerColumns+` FROM players ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	return players, nil
}

func (r *PlayerRepo) ListByStatus(ctx context.Context, status store.PlayerStatus) ([]store.Player, error) {
	var players []store.Player
	err := sqlx.SelectContext(ctx, r.q, &players,
		`SELECT `+playerColumns+` FROM players WHERE status = $1 ORDER BY position ASC`, status)
	if err != nil {
		return nil, fmt.Errorf("listing %s players: %w", status, err)
	}
	return players, nil
}

func (r *PlayerRepo) CountByStatus(ctx context.Context, status store.PlayerStatus) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.q, &n, `SELECT COUNT(*) FROM players WHERE status = $1`, status); err != nil {
		return 0, fmt.Errorf("counting %s players: %w", status, err)
	}
	return n, nil
}

func (r *PlayerRepo) UpdateProfile(ctx context.Context, id string, profile store.PlayerProfile) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE players SET name = $1, role = $2, batting_style = $3, bowling_style = $4,
		        base_price = $5, updated_at = $6
		 WHERE id = $7 AND status = 'available'`,
		profile.Name, profile.Role, profile.BattingStyle, profile.BowlingStyle,
		profile.BasePrice, r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating player profile: %w", err)
	}
	return r.checkAvailableUpdate(ctx, result.RowsAffected, id)
}

func (r *PlayerRepo) MarkSold(ctx context.Context, id, teamID string, amount int) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE players SET status = 'sold', sold_to = $1, sold_amount = $2, updated_at = $3
		 WHERE id = $4 AND status = 'available'`,
		teamID, amount, r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking player sold: %w", err)
	}
	return r.checkAvailableUpdate(ctx, result.RowsAffected, id)
}

func (r *PlayerRepo) MarkUnsold(ctx context.Context, id string, status store.PlayerStatus) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE players SET status = $1, sold_to = NULL, sold_amount = 0,
		        unsold_count = unsold_count + 1, updated_at = $2
		 WHERE id = $3 AND status = 'available'`,
		status, r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking player unsold: %w", err)
	}
	return r.checkAvailableUpdate(ctx, result.RowsAffected, id)
}

func (r *PlayerRepo) RequeueUnsold(ctx context.Context) (int, error) {
	result, err := r.q.ExecContext(ctx,
		`UPDATE players SET status = 'available', updated_at = $1 WHERE status = 'unsold'`,
		r.clock.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeueing unsold players: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeueing unsold players: %w", err)
	}
	return int(n), nil
}

// checkAvailableUpdate turns a zero-row update guarded by status = 'available'
// into ErrNotFound or ErrConflict.
func (r *PlayerRepo) checkAvailableUpdate(ctx context.Context, rowsAffected func() (int64, error), id string) error {
	n, err := rowsAffected()
	if err != nil {
		return fmt.Errorf("updating player %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	ok, err := exists(ctx, r.q, "players", id)
	if err != nil {
		return fmt.Errorf("updating player %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("player %s: %w", id, store.ErrNotFound)
	}
	return fmt.Errorf("player %s is not available: %w", id, store.ErrConflict)
}
