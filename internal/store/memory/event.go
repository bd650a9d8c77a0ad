package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/jensholdgaard/player-auction/internal/event"
	"github.com/jensholdgaard/player-auction/internal/store"
)

// EventStore implements event.Store in memory.
type EventStore struct {
	db   *DB
	held bool
}

func (s *EventStore) Append(_ context.Context, events ...event.Event) error {
	return s.db.write(s.held, func(st *state) error {
		pending := make([]event.Event, 0, len(events))
		for _, e := range events {
			if e.Version > 0 && s.hasVersion(st, pending, e.AggregateID, e.Version) {
				return fmt.Errorf("event (aggregate=%s, version=%d): %w", e.AggregateID, e.Version, store.ErrConflict)
			}
			e.ID = newID()
			e.CreatedAt = s.db.clock.Now().UTC()
			pending = append(pending, e)
		}
		st.events = append(st.events, pending...)
		return nil
	})
}

func (s *EventStore) hasVersion(st *state, pending []event.Event, aggregateID string, version int) bool {
	match := func(e event.Event) bool { return e.AggregateID == aggregateID && e.Version == version }
	return slices.ContainsFunc(st.events, match) || slices.ContainsFunc(pending, match)
}

func (s *EventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	var out []event.Event
	err := s.db.read(s.held, func(st *state) error {
		for _, e := range st.events {
			if e.AggregateID == aggregateID {
				out = append(out, e)
			}
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b event.Event) int { return a.Version - b.Version })
	return out, err
}

func (s *EventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	var out []event.Event
	err := s.db.read(s.held, func(st *state) error {
		for _, e := range st.events {
			if e.Type == eventType {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}
