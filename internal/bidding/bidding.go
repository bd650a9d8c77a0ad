// Package bidding is the bidder-facing surface of the auction: placing bids
// and reading the live state of the player on the block.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/player-auction/internal/auction"
	"github.com/jensholdgaard/player-auction/internal/ledger"
	"github.com/jensholdgaard/player-auction/internal/notify"
	"github.com/jensholdgaard/player-auction/internal/store"
)

// ErrBusy is returned when the bid lock for a player could not be taken in time.
var ErrBusy = errors.New("bidding busy, retry")

const (
	defaultLockTTL  = 5 * time.Second
	defaultLockWait = 2 * time.Second
	lockRetry       = 5 * time.Millisecond
)

// Options tunes the per-player bid lock.
type Options struct {
	// LockTTL bounds how long a crashed holder can block a player.
	LockTTL time.Duration
	// LockWait is how long PlaceBid waits for the lock before ErrBusy.
	LockWait time.Duration
}

// Surface validates and records bids. Bids on one player queue on a lock
// that spans replicas; the engine then validates and appends each bid in one
// unit of work with the session held.
type Surface struct {
	engine *auction.Engine
	ledger *ledger.Ledger
	locker notify.Locker
	opts   Options

	accepted metric.Int64Counter
	rejected metric.Int64Counter

	logger *slog.Logger
	tracer trace.Tracer
}

// New returns a Surface.
func New(engine *auction.Engine, l *ledger.Ledger, locker notify.Locker, opts Options, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider) (*Surface, error) {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.LockWait <= 0 {
		opts.LockWait = defaultLockWait
	}

	meter := mp.Meter("github.com/jensholdgaard/player-auction/internal/bidding")
	accepted, err := meter.Int64Counter("auction.bids.accepted",
		metric.WithDescription("Bids recorded in the ledger."))
	if err != nil {
		return nil, fmt.Errorf("creating accepted counter: %w", err)
	}
	rejected, err := meter.Int64Counter("auction.bids.rejected",
		metric.WithDescription("Bids refused by validation, by reason."))
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}

	return &Surface{
		engine:   engine,
		ledger:   l,
		locker:   locker,
		opts:     opts,
		accepted: accepted,
		rejected: rejected,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/player-auction/internal/bidding"),
	}, nil
}

// PlaceBid validates a bid against the current auction, records it and
// notifies subscribers.
func (s *Surface) PlaceBid(ctx context.Context, playerID, teamID string, amount int) (*store.Bid, error) {
	ctx, span := s.tracer.Start(ctx, "Surface.PlaceBid",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("team_id", teamID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	unlock, err := s.lock(ctx, playerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.engine.AcceptBid(ctx, playerID, teamID, amount, s.ledger.Append)
	if err != nil {
		s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReason(err))))
		s.logger.InfoContext(ctx, "bid rejected",
			slog.String("player_id", playerID),
			slog.String("team_id", teamID),
			slog.Int("amount", amount),
			slog.String("reason", err.Error()),
		)
		return nil, err
	}
	s.ledger.Publish(ctx, b)

	s.accepted.Add(ctx, 1)
	s.logger.InfoContext(ctx, "bid placed",
		slog.String("player_id", playerID),
		slog.String("team_id", teamID),
		slog.Int("amount", amount),
		slog.String("bid_id", b.ID),
	)
	return b, nil
}

func (s *Surface) lock(ctx context.Context, playerID string) (func(), error) {
	key := "bid:" + playerID
	timeout := time.NewTimer(s.opts.LockWait)
	defer timeout.Stop()
	retry := time.NewTicker(lockRetry)
	defer retry.Stop()

	for {
		unlock, err := s.locker.Acquire(ctx, key, s.opts.LockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, notify.ErrLockHeld) {
			return nil, fmt.Errorf("acquiring bid lock: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout.C:
			return nil, ErrBusy
		case <-retry.C:
		}
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, auction.ErrBidTooLow):
		return "too_low"
	case errors.Is(err, auction.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, auction.ErrSameBidder):
		return "same_bidder"
	case errors.Is(err, auction.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, auction.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "error"
	}
}

// Snapshot is a read-only view of the auction for display.
type Snapshot struct {
	Session store.Session `json:"session"`
	State   auction.State `json:"state"`
	// The fields below are set only while a player is on the block.
	Player             *store.Player `json:"player,omitempty"`
	Highest            *store.Bid    `json:"highest_bid,omitempty"`
	EffectiveBasePrice int           `json:"effective_base_price,omitempty"`
	MinimumBid         int           `json:"minimum_bid,omitempty"`
	Bids               []store.Bid   `json:"bids,omitempty"`
}

// CurrentAuctionState returns the session, the player on the block, its
// highest bid and the bid history.
func (s *Surface) CurrentAuctionState(ctx context.Context) (*Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "Surface.CurrentAuctionState")
	defer span.End()

	sess, err := s.engine.Session().Get(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Session: *sess, State: auction.StateOf(sess)}
	if sess.CurrentPlayerID == nil {
		return snap, nil
	}

	q, err := s.engine.Quote(ctx, *sess.CurrentPlayerID)
	if err != nil {
		return nil, err
	}
	bids, err := s.ledger.BidsFor(ctx, q.Player.ID)
	if err != nil {
		return nil, err
	}

	snap.Session = q.Session
	snap.State = auction.StateOf(&q.Session)
	snap.Player = &q.Player
	snap.Highest = q.Highest
	snap.EffectiveBasePrice = q.EffectiveBasePrice
	snap.MinimumBid = q.MinimumBid
	snap.Bids = bids
	return snap, nil
}

// BidHistory returns the bids on playerID, most recent first.
func (s *Surface) BidHistory(ctx context.Context, playerID string) ([]store.Bid, error) {
	return s.ledger.BidsFor(ctx, playerID)
}

// SubscribeBids calls fn for every bid recorded on playerID until ctx is done.
func (s *Surface) SubscribeBids(ctx context.Context, playerID string, fn func(store.Bid)) error {
	return s.ledger.Subscribe(ctx, playerID, fn)
}

// SubscribeSession calls fn for every session change until ctx is done.
func (s *Surface) SubscribeSession(ctx context.Context, fn func(store.Session)) error {
	return s.engine.Session().Subscribe(ctx, fn)
}
