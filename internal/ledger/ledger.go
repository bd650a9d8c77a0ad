// Package ledger is the append-only bid ledger. It stores bids through a
// store.BidRepository and pushes every accepted bid to subscribers of the
// player's bid topic.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/notify"
	"github.com/jensholdgaard/player-auction/internal/store"
)

// ErrInvalidAmount is returned by Record for a non-positive amount.
var ErrInvalidAmount = errors.New("bid amount must be positive")

// Ledger records bids and answers highest-bid queries.
type Ledger struct {
	bids   store.BidRepository
	broker notify.Broker
	clock  clock.Clock
	logger *slog.Logger
	tracer trace.Tracer
}

// New returns a Ledger.
func New(bids store.BidRepository, broker notify.Broker, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Ledger {
	return &Ledger{
		bids:   bids,
		broker: broker,
		clock:  clk,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/player-auction/internal/ledger"),
	}
}

// Record appends a bid placed in lot and notifies subscribers. It does not
// check the bid against the auction rules.
func (l *Ledger) Record(ctx context.Context, lot int, playerID, teamID string, amount int) (*store.Bid, error) {
	b := &store.Bid{PlayerID: playerID, TeamID: teamID, Amount: amount, Lot: lot}
	if err := l.Append(ctx, l.bids, b); err != nil {
		return nil, err
	}
	l.Publish(ctx, b)
	return b, nil
}

// Append writes b through bids without notifying anyone. Callers appending
// inside a unit of work call Publish once it has committed.
func (l *Ledger) Append(ctx context.Context, bids store.BidRepository, b *store.Bid) error {
	ctx, span := l.tracer.Start(ctx, "Ledger.Append",
		trace.WithAttributes(
			attribute.String("player_id", b.PlayerID),
			attribute.String("team_id", b.TeamID),
			attribute.Int("amount", b.Amount),
			attribute.Int("lot", b.Lot),
		),
	)
	defer span.End()

	if b.Amount <= 0 {
		return ErrInvalidAmount
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = l.clock.Now().UTC()
	}
	if err := bids.Append(ctx, b); err != nil {
		return fmt.Errorf("recording bid: %w", err)
	}
	return nil
}

// Publish pushes a recorded bid to subscribers of its player.
func (l *Ledger) Publish(ctx context.Context, b *store.Bid) {
	payload, err := json.Marshal(b)
	if err != nil {
		l.logger.ErrorContext(ctx, "encoding bid notification", slog.Any("error", err))
		return
	}
	// The bid is already durable; a lost notification only delays the live view.
	if err := l.broker.Publish(ctx, notify.BidTopic(b.PlayerID), payload); err != nil {
		l.logger.WarnContext(ctx, "publishing bid",
			slog.String("player_id", b.PlayerID),
			slog.String("bid_id", b.ID),
			slog.Any("error", err),
		)
	}
}

// Highest returns the highest bid for playerID in lot, or nil if it has
// none. Equal amounts resolve to the earliest bid.
func (l *Ledger) Highest(ctx context.Context, playerID string, lot int) (*store.Bid, error) {
	ctx, span := l.tracer.Start(ctx, "Ledger.Highest",
		trace.WithAttributes(attribute.String("player_id", playerID), attribute.Int("lot", lot)),
	)
	defer span.End()

	b, err := l.bids.Highest(ctx, playerID, lot)
	if err != nil {
		return nil, fmt.Errorf("querying highest bid: %w", err)
	}
	return b, nil
}

// BidsFor returns every bid for playerID, most recent first.
func (l *Ledger) BidsFor(ctx context.Context, playerID string) ([]store.Bid, error) {
	ctx, span := l.tracer.Start(ctx, "Ledger.BidsFor",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	bids, err := l.bids.ListForPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	return bids, nil
}

// Subscribe calls fn for every bid recorded on playerID until ctx is done.
// fn runs on a single goroutine owned by the subscription.
func (l *Ledger) Subscribe(ctx context.Context, playerID string, fn func(store.Bid)) error {
	ch, err := l.broker.Subscribe(ctx, notify.BidTopic(playerID))
	if err != nil {
		return fmt.Errorf("subscribing to bids: %w", err)
	}

	go func() {
		for payload := range ch {
			var b store.Bid
			if err := json.Unmarshal(payload, &b); err != nil {
				l.logger.WarnContext(ctx, "dropping malformed bid notification",
					slog.String("player_id", playerID),
					slog.Any("error", err),
				)
				continue
			}
			fn(b)
		}
	}()
	return nil
}
