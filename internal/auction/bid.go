package auction

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/player-auction/internal/store"
)

// Quote is the bidding floor for the player on the block.
type Quote struct {
	Session            store.Session `json:"session"`
	Player             store.Player  `json:"player"`
	Highest            *store.Bid    `json:"highest_bid"`
	EffectiveBasePrice int           `json:"effective_base_price"`
	MinimumBid         int           `json:"minimum_bid"`
}

// BidWriter appends an accepted bid through bids.
type BidWriter func(ctx context.Context, bids store.BidRepository, b *store.Bid) error

// Quote returns the current floor for playerID. Only bids from the current
// lot count. It fails with ErrInvalidState unless playerID is on the block.
func (e *Engine) Quote(ctx context.Context, playerID string) (*Quote, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Quote",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	sess, err := e.session.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := requireOnBlock(sess, playerID); err != nil {
		return nil, err
	}
	return quote(ctx, e.repos, sess, playerID)
}

// ValidateBid applies the bid acceptance rule without recording anything.
// The wallet check here is advisory; ResolvePlayerSale checks again before
// any money moves.
func (e *Engine) ValidateBid(ctx context.Context, playerID, teamID string, amount int) (*Quote, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.ValidateBid",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("team_id", teamID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	sess, err := e.session.Get(ctx)
	if err != nil {
		return nil, err
	}
	return e.validate(ctx, e.repos, sess, playerID, teamID, amount)
}

// AcceptBid validates a bid and hands it to write in the same unit of work,
// stamped with the current lot. The session stays locked until the bid is
// stored, so no transition can take the player off the block in between.
func (e *Engine) AcceptBid(ctx context.Context, playerID, teamID string, amount int, write BidWriter) (*store.Bid, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.AcceptBid",
		trace.WithAttributes(
			attribute.String("player_id", playerID),
			attribute.String("team_id", teamID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	var bid *store.Bid
	err := e.repos.Atomic(ctx, func(tx *store.Repositories) error {
		sess, err := lockSession(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := e.validate(ctx, tx, sess, playerID, teamID, amount); err != nil {
			return err
		}

		b := &store.Bid{PlayerID: playerID, TeamID: teamID, Amount: amount, Lot: sess.Lot}
		if err := write(ctx, tx.Bids, b); err != nil {
			return err
		}
		bid = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

func (e *Engine) validate(ctx context.Context, repos *store.Repositories, sess *store.Session, playerID, teamID string, amount int) (*Quote, error) {
	if err := requireBidding(sess, playerID); err != nil {
		return nil, err
	}
	q, err := quote(ctx, repos, sess, playerID)
	if err != nil {
		return nil, err
	}
	team, err := getTeam(ctx, repos, teamID)
	if err != nil {
		return nil, err
	}

	if !e.policy.AllowSelfRaise && q.Highest != nil && q.Highest.TeamID == teamID {
		return nil, fmt.Errorf("team %s: %w", teamID, ErrSameBidder)
	}
	if amount < q.MinimumBid {
		return nil, &BidTooLowError{Amount: amount, Minimum: q.MinimumBid}
	}
	if team.Wallet < amount {
		return nil, &InsufficientFundsError{TeamID: teamID, Wallet: team.Wallet, Required: amount}
	}
	return q, nil
}

func quote(ctx context.Context, repos *store.Repositories, sess *store.Session, playerID string) (*Quote, error) {
	p, err := repos.Players.Get(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading player: %w", err)
	}

	best, err := repos.Bids.Highest(ctx, playerID, sess.Lot)
	if err != nil {
		return nil, fmt.Errorf("querying highest bid: %w", err)
	}

	q := &Quote{
		Session:            *sess,
		Player:             *p,
		Highest:            best,
		EffectiveBasePrice: EffectiveBasePrice(sess, p),
	}
	q.MinimumBid = minimumBid(sess, q.EffectiveBasePrice, best)
	return q, nil
}

// minimumBid is the highest bid plus the increment, or the effective base
// price when there are no bids. It is never below 1.
func minimumBid(sess *store.Session, basePrice int, highest *store.Bid) int {
	minimum := basePrice
	if highest != nil {
		minimum = highest.Amount + sess.MinBidIncrement
	}
	return max(minimum, 1)
}
