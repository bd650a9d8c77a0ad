package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/event"
	"github.com/jensholdgaard/player-auction/internal/store"
)

// EventStore implements event.Store backed by Postgres.
type EventStore struct {
	q sqlx.ExtContext
	// db is set when q is not already inside a transaction.
	db    *sqlx.DB
	clock clock.Clock
}

// NewEventStore returns a new EventStore.
func NewEventStore(db *sqlx.DB, clk clock.Clock) *EventStore {
	return &EventStore{q: db, db: db, clock: clk}
}

func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	if s.db == nil {
		return s.insert(ctx, s.q, events)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.insert(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *EventStore) insert(ctx context.Context, q sqlx.ExecerContext, events []event.Event) error {
	for _, e := range events {
		_, err := q.ExecContext(ctx,
			`INSERT INTO events (id, aggregate_id, type, data, version, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), e.AggregateID, e.Type, []byte(e.Data), e.Version, s.clock.Now().UTC(),
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("event (aggregate=%s, version=%d): %w", e.AggregateID, e.Version, store.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("inserting event (aggregate=%s, version=%d): %w", e.AggregateID, e.Version, err)
		}
	}
	return nil
}

func (s *EventStore) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	var events []event.Event
	err := sqlx.SelectContext(ctx, s.q, &events,
		`SELECT id, aggregate_id, type, data, version, created_at
		 FROM events WHERE aggregate_id = $1 ORDER BY version ASC, created_at ASC`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	return events, nil
}

func (s *EventStore) LoadByType(ctx context.Context, eventType event.Type) ([]event.Event, error) {
	var events []event.Event
	err := sqlx.SelectContext(ctx, s.q, &events,
		`SELECT id, aggregate_id, type, data, version, created_at
		 FROM events WHERE type = $1 ORDER BY created_at ASC`, eventType)
	if err != nil {
		return nil, fmt.Errorf("loading events by type: %w", err)
	}
	return events, nil
}
