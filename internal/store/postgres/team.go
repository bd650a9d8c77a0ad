package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/store"
)

const teamColumns = `id, name, owner_name, owner_contact, wallet, initial_wallet, created_at, updated_at`

// TeamRepo implements store.TeamRepository with sqlx.
type TeamRepo struct {
	q     sqlx.ExtContext
	clock clock.Clock
}

// NewTeamRepo returns a new TeamRepo.
func NewTeamRepo(q sqlx.ExtContext, clk clock.Clock) *TeamRepo {
	return &TeamRepo{q: q, clock: clk}
}

func (r *TeamRepo) Create(ctx context.Context, t *store.Team) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := r.clock.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Players = nil

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO teams (id, name, owner_name, owner_contact, wallet, initial_wallet, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Name, t.OwnerName, t.OwnerContact, t.Wallet, t.InitialWallet, t.CreatedAt, t.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("team %s: %w", t.Name, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("creating team: %w", err)
	}
	return nil
}

func (r *TeamRepo) Get(ctx context.Context, id string) (*store.Team, error) {
	var t store.Team
	if err := sqlx.GetContext(ctx, r.q, &t, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id); err != nil {
		return nil, notFound(err, "team "+id)
	}
	err := sqlx.SelectContext(ctx, r.q, &t.Players,
		`SELECT player_id FROM team_players WHERE team_id = $1 ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("loading team players: %w", err)
	}
	return &t, nil
}

func (r *TeamRepo) List(ctx context.Context) ([]store.Team, error) {
	var teams []store.Team
	if err := sqlx.SelectContext(ctx, r.q, &teams, `SELECT `+teamColumns+` FROM teams ORDER BY position ASC`); err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}

	var rows []struct {
		TeamID   string `db:"team_id"`
		PlayerID string `db:"player_id"`
	}
	if err := sqlx.SelectContext(ctx, r.q, &rows, `SELECT team_id, player_id FROM team_players ORDER BY seq ASC`); err != nil {
		return nil, fmt.Errorf("loading team players: %w", err)
	}
	byTeam := make(map[string][]string, len(teams))
	for _, row := range rows {
		byTeam[row.TeamID] = append(byTeam[row.TeamID], row.PlayerID)
	}
	for i := range teams {
		teams[i].Players = byTeam[teams[i].ID]
	}
	return teams, nil
}

func (r *TeamRepo) UpdateProfile(ctx context.Context, id, name, ownerName, ownerContact string) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE teams SET name = $1, owner_name = $2, owner_contact = $3, updated_at = $4 WHERE id = $5`,
		name, ownerName, ownerContact, r.clock.Now().UTC(), id,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("team %s: %w", name, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("updating team profile: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("team %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *TeamRepo) Debit(ctx context.Context, id string, amount int) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE teams SET wallet = wallet - $1, updated_at = $2 WHERE id = $3 AND wallet >= $1`,
		amount, r.clock.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("debiting team wallet: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		return nil
	}
	ok, err := exists(ctx, r.q, "teams", id)
	if err != nil {
		return fmt.Errorf("debiting team wallet: %w", err)
	}
	if !ok {
		return fmt.Errorf("team %s: %w", id, store.ErrNotFound)
	}
	return fmt.Errorf("team %s wallet below %d: %w", id, amount, store.ErrConflict)
}

func (r *TeamRepo) AddPlayer(ctx context.Context, teamID, playerID string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO team_players (team_id, player_id) VALUES ($1, $2)`, teamID, playerID)
	if isUniqueViolation(err) {
		return fmt.Errorf("player %s already on a team: %w", playerID, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("adding player to team: %w", err)
	}
	_, err = r.q.ExecContext(ctx, `UPDATE teams SET updated_at = $1 WHERE id = $2`, r.clock.Now().UTC(), teamID)
	if err != nil {
		return fmt.Errorf("touching team: %w", err)
	}
	return nil
}
