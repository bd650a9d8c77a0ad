package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/jensholdgaard/player-auction/internal/store"
)

// TeamRepo implements store.TeamRepository in memory.
type TeamRepo struct {
	db   *DB
	held bool
}

func (r *TeamRepo) Create(_ context.Context, t *store.Team) error {
	return r.db.write(r.held, func(st *state) error {
		if t.ID == "" {
			t.ID = newID()
		}
		if _, ok := st.teams[t.ID]; ok {
			return fmt.Errorf("team %s: %w", t.ID, store.ErrConflict)
		}
		if nameTaken(st, t.Name, "") {
			return fmt.Errorf("team name %q: %w", t.Name, store.ErrConflict)
		}
		now := r.db.clock.Now().UTC()
		t.CreatedAt = now
		t.UpdatedAt = now
		t.Players = nil
		st.teams[t.ID] = *t
		st.teamOrder = append(st.teamOrder, t.ID)
		return nil
	})
}

func (r *TeamRepo) Get(_ context.Context, id string) (*store.Team, error) {
	var out store.Team
	err := r.db.read(r.held, func(st *state) error {
		t, ok := st.teams[id]
		if !ok {
			return fmt.Errorf("team %s: %w", id, store.ErrNotFound)
		}
		t.Players = slices.Clone(t.Players)
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *TeamRepo) List(_ context.Context) ([]store.Team, error) {
	var out []store.Team
	err := r.db.read(r.held, func(st *state) error {
		out = make([]store.Team, 0, len(st.teamOrder))
		for _, id := range st.teamOrder {
			t := st.teams[id]
			t.Players = slices.Clone(t.Players)
			out = append(out, t)
		}
		return nil
	})
	return out, err
}

func (r *TeamRepo) UpdateProfile(_ context.Context, id, name, ownerName, ownerContact string) error {
	return r.db.write(r.held, func(st *state) error {
		t, ok := st.teams[id]
		if !ok {
			return fmt.Errorf("team %s: %w", id, store.ErrNotFound)
		}
		if nameTaken(st, name, id) {
			return fmt.Errorf("team name %q: %w", name, store.ErrConflict)
		}
		t.Name = name
		t.OwnerName = ownerName
		t.OwnerContact = ownerContact
		t.UpdatedAt = r.db.clock.Now().UTC()
		st.teams[id] = t
		return nil
	})
}

func (r *TeamRepo) Debit(_ context.Context, id string, amount int) error {
	return r.db.write(r.held, func(st *state) error {
		t, ok := st.teams[id]
		if !ok {
			return fmt.Errorf("team %s: %w", id, store.ErrNotFound)
		}
		if t.Wallet < amount {
			return fmt.Errorf("team %s wallet %d below %d: %w", id, t.Wallet, amount, store.ErrConflict)
		}
		t.Wallet -= amount
		t.UpdatedAt = r.db.clock.Now().UTC()
		st.teams[id] = t
		return nil
	})
}

func (r *TeamRepo) AddPlayer(_ context.Context, teamID, playerID string) error {
	return r.db.write(r.held, func(st *state) error {
		t, ok := st.teams[teamID]
		if !ok {
			return fmt.Errorf("team %s: %w", teamID, store.ErrNotFound)
		}
		if slices.Contains(t.Players, playerID) {
			return fmt.Errorf("team %s already owns player %s: %w", teamID, playerID, store.ErrConflict)
		}
		t.Players = append(slices.Clone(t.Players), playerID)
		t.UpdatedAt = r.db.clock.Now().UTC()
		st.teams[teamID] = t
		return nil
	})
}

func nameTaken(st *state, name, except string) bool {
	for id, t := range st.teams {
		if id != except && t.Name == name {
			return true
		}
	}
	return false
}
