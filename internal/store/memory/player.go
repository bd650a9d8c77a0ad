package memory

import (
	"context"
	"fmt"

	"github.com/jensholdgaard/player-auction/internal/store"
)

// PlayerRepo implements store.PlayerRepository in memory.
type PlayerRepo struct {
	db   *DB
	held bool
}

func (r *PlayerRepo) Create(_ context.Context, p *store.Player) error {
	return r.db.write(r.held, func(st *state) error {
		if p.ID == "" {
			p.ID = newID()
		}
		if _, ok := st.players[p.ID]; ok {
			return fmt.Errorf("player %s: %w", p.ID, store.ErrConflict)
		}
		now := r.db.clock.Now().UTC()
		p.CreatedAt = now
		p.UpdatedAt = now
		if p.Status == "" {
			p.Status = store.StatusAvailable
		}
		st.players[p.ID] = *p
		st.playerOrder = append(st.playerOrder, p.ID)
		return nil
	})
}

func (r *PlayerRepo) Get(_ context.Context, id string) (*store.Player, error) {
	var out store.Player
	err := r.db.read(r.held, func(st *state) error {
		p, ok := st.players[id]
		if !ok {
			return fmt.Errorf("player %s: %w", id, store.ErrNotFound)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *PlayerRepo) List(_ context.Context) ([]store.Player, error) {
	var out []store.Player
	err := r.db.read(r.held, func(st *state) error {
		out = make([]store.Player, 0, len(st.playerOrder))
		for _, id := range st.playerOrder {
			out = append(out, st.players[id])
		}
		return nil
	})
	return out, err
}

func (r *PlayerRepo) ListByStatus(_ context.Context, status store.PlayerStatus) ([]store.Player, error) {
	var out []store.Player
	err := r.db.read(r.held, func(st *state) error {
		for _, id := range st.playerOrder {
			if p := st.players[id]; p.Status == status {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (r *PlayerRepo) CountByStatus(ctx context.Context, status store.PlayerStatus) (int, error) {
	players, err := r.ListByStatus(ctx, status)
	return len(players), err
}

func (r *PlayerRepo) UpdateProfile(_ context.Context, id string, profile store.PlayerProfile) error {
	return r.db.write(r.held, func(st *state) error {
		p, ok := st.players[id]
		if !ok {
			return fmt.Errorf("player %s: %w", id, store.ErrNotFound)
		}
		if p.Status != store.StatusAvailable {
			return fmt.Errorf("player %s is %s: %w", id, p.Status, store.ErrConflict)
		}
		p.Name = profile.Name
		p.Role = profile.Role
		p.BattingStyle = profile.BattingStyle
		p.BowlingStyle = profile.BowlingStyle
		p.BasePrice = profile.BasePrice
		p.UpdatedAt = r.db.clock.Now().UTC()
		st.players[id] = p
		return nil
	})
}

func (r *PlayerRepo) MarkSold(_ context.Context, id, teamID string, amount int) error {
	return r.db.write(r.held, func(st *state) error {
		p, ok := st.players[id]
		if !ok {
			return fmt.Errorf("player %s: %w", id, store.ErrNotFound)
		}
		if p.Status != store.StatusAvailable {
			return fmt.Errorf("player %s is %s: %w", id, p.Status, store.ErrConflict)
		}
		team := teamID
		p.Status = store.StatusSold
		p.SoldTo = &team
		p.SoldAmount = amount
		p.UpdatedAt = r.db.clock.Now().UTC()
		st.players[id] = p
		return nil
	})
}

func (r *PlayerRepo) MarkUnsold(_ context.Context, id string, status store.PlayerStatus) error {
	return r.db.write(r.held, func(st *state) error {
		p, ok := st.players[id]
		if !ok {
			return fmt.Errorf("player %s: %w", id, store.ErrNotFound)
		}
		if p.Status != store.StatusAvailable {
			return fmt.Errorf("player %s is %s: %w", id, p.Status, store.ErrConflict)
		}
		p.Status = status
		p.SoldTo = nil
		p.SoldAmount = 0
		p.UnsoldCount++
		p.UpdatedAt = r.db.clock.Now().UTC()
		st.players[id] = p
		return nil
	})
}

func (r *PlayerRepo) RequeueUnsold(_ context.Context) (int, error) {
	n := 0
	err := r.db.write(r.held, func(st *state) error {
		now := r.db.clock.Now().UTC()
		for _, id := range st.playerOrder {
			p := st.players[id]
			if p.Status != store.StatusUnsold {
				continue
			}
			p.Status = store.StatusAvailable
			p.UpdatedAt = now
			st.players[id] = p
			n++
		}
		return nil
	})
	return n, err
}
