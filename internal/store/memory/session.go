package memory

import (
	"context"
	"fmt"

	"github.com/jensholdgaard/player-auction/internal/store"
)

// SessionRepo implements store.SessionRepository in memory.
type SessionRepo struct {
	db   *DB
	held bool
}

func (r *SessionRepo) Get(_ context.Context) (*store.Session, error) {
	var out store.Session
	err := r.db.read(r.held, func(st *state) error {
		if st.session == nil {
			return fmt.Errorf("auction session: %w", store.ErrNotFound)
		}
		out = *st.session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Lock is Get; Atomic already holds the store exclusively.
func (r *SessionRepo) Lock(ctx context.Context) (*store.Session, error) {
	return r.Get(ctx)
}

func (r *SessionRepo) Init(_ context.Context, s *store.Session) (bool, error) {
	created := false
	err := r.db.write(r.held, func(st *state) error {
		if st.session != nil {
			return nil
		}
		s.Version = 1
		s.UpdatedAt = r.db.clock.Now().UTC()
		sess := *s
		st.session = &sess
		created = true
		return nil
	})
	return created, err
}

func (r *SessionRepo) Save(_ context.Context, s *store.Session) error {
	return r.db.write(r.held, func(st *state) error {
		if st.session == nil {
			return fmt.Errorf("auction session: %w", store.ErrNotFound)
		}
		if st.session.Version != s.Version {
			return fmt.Errorf("auction session version %d, stored %d: %w", s.Version, st.session.Version, store.ErrConflict)
		}
		s.Version++
		s.UpdatedAt = r.db.clock.Now().UTC()
		sess := *s
		st.session = &sess
		return nil
	})
}
