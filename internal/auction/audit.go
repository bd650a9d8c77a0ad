package auction

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jensholdgaard/player-auction/internal/event"
)

func appendEvent(ctx context.Context, events event.Store, typ event.Type, version int, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", typ, err)
	}
	err = events.Append(ctx, event.Event{
		AggregateID: event.SessionAggregate,
		Type:        typ,
		Data:        raw,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("appending %s event: %w", typ, err)
	}
	return nil
}

// AuditLog returns every session transition in the order it was applied.
func (e *Engine) AuditLog(ctx context.Context) ([]event.Event, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.AuditLog")
	defer span.End()

	events, err := e.repos.Events.Load(ctx, event.SessionAggregate)
	if err != nil {
		return nil, fmt.Errorf("loading audit log: %w", err)
	}
	return events, nil
}
