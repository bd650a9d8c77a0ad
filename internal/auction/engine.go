package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/player-auction/internal/event"
	"github.com/jensholdgaard/player-auction/internal/store"
)

// Policy holds bidding rules that are not part of the session record.
type Policy struct {
	// AllowSelfRaise lets the team holding the highest bid raise it.
	AllowSelfRaise bool
}

// Sale is the outcome of a resolved player sale.
type Sale struct {
	PlayerID string `json:"player_id"`
	TeamID   string `json:"team_id"`
	Amount   int    `json:"amount"`
	BidID    string `json:"bid_id"`
}

// Engine drives the auction session through its transitions and resolves
// player sales. Every write runs as one unit of work that also saves the
// session under its version check and appends an audit event.
type Engine struct {
	// mu serialises transitions issued through this process.
	mu sync.Mutex

	repos   *store.Repositories
	session *Session
	policy  Policy
	metrics *metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewEngine returns an Engine operating on repos and the given session handle.
func NewEngine(repos *store.Repositories, session *Session, policy Policy, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider) (*Engine, error) {
	m, err := newMetrics(mp)
	if err != nil {
		return nil, err
	}
	return &Engine{
		repos:   repos,
		session: session,
		policy:  policy,
		metrics: m,
		logger:  logger,
		tracer:  tp.Tracer("github.com/jensholdgaard/player-auction/internal/auction"),
	}, nil
}

// Session returns the session handle the engine writes through.
func (e *Engine) Session() *Session { return e.session }

// StartAuction puts playerID on the block.
func (e *Engine) StartAuction(ctx context.Context, playerID string) (*store.Session, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.StartAuction",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	var player *store.Player
	sess, err := e.transition(ctx, func(tx *store.Repositories, sess *store.Session) (event.Type, any, error) {
		if err := startBidding(sess, playerID); err != nil {
			return "", nil, err
		}
		p, err := availablePlayer(ctx, tx, playerID)
		if err != nil {
			return "", nil, err
		}
		player = p
		return event.AuctionStarted, event.AuctionStartedData{PlayerID: playerID, Round: string(sess.Round), Lot: sess.Lot}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "auction started",
		slog.String("player_id", playerID),
		slog.String("player", player.Name),
		slog.String("round", string(sess.Round)),
		slog.Int("effective_base_price", EffectiveBasePrice(sess, player)),
	)
	return sess, nil
}

// EndAuction closes bidding on the current player. The player stays on the
// block, still available, until it is sold or marked unsold; starting
// another auction sets it aside.
func (e *Engine) EndAuction(ctx context.Context) (*store.Session, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.EndAuction")
	defer span.End()

	var playerID string
	sess, err := e.transition(ctx, func(_ *store.Repositories, sess *store.Session) (event.Type, any, error) {
		playerID = deref(sess.CurrentPlayerID)
		if err := endBidding(sess); err != nil {
			return "", nil, err
		}
		return event.AuctionEnded, event.AuctionEndedData{PlayerID: playerID, Lot: sess.Lot}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "auction ended", slog.String("player_id", playerID))
	return sess, nil
}

// ResolvePlayerSale sells playerID, which must be on the block, to the team
// holding the highest bid of the current lot. It works during bidding and
// after EndAuction. The wallet is checked again before any money moves.
func (e *Engine) ResolvePlayerSale(ctx context.Context, playerID string) (*Sale, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.ResolvePlayerSale",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	var sale Sale
	_, err := e.transition(ctx, func(tx *store.Repositories, sess *store.Session) (event.Type, any, error) {
		if _, err := availablePlayer(ctx, tx, playerID); err != nil {
			return "", nil, err
		}
		if err := requireOnBlock(sess, playerID); err != nil {
			return "", nil, err
		}

		best, err := tx.Bids.Highest(ctx, playerID, sess.Lot)
		if err != nil {
			return "", nil, fmt.Errorf("querying highest bid: %w", err)
		}
		if best == nil {
			return "", nil, fmt.Errorf("player %s: %w", playerID, ErrNoBids)
		}

		team, err := getTeam(ctx, tx, best.TeamID)
		if err != nil {
			return "", nil, err
		}
		if team.Wallet < best.Amount {
			return "", nil, &InsufficientFundsError{TeamID: team.ID, Wallet: team.Wallet, Required: best.Amount}
		}

		// Debit first: if a non-transactional store fails midway the
		// surviving fact is spent funds, never a player sellable twice.
		if err := tx.Teams.Debit(ctx, team.ID, best.Amount); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return "", nil, &InsufficientFundsError{TeamID: team.ID, Wallet: team.Wallet, Required: best.Amount}
			}
			return "", nil, fmt.Errorf("debiting team %s: %w", team.ID, err)
		}
		if err := tx.Teams.AddPlayer(ctx, team.ID, playerID); err != nil {
			return "", nil, fmt.Errorf("adding player to team %s: %w", team.ID, err)
		}
		if err := tx.Players.MarkSold(ctx, playerID, team.ID, best.Amount); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return "", nil, fmt.Errorf("player %s no longer available: %w", playerID, ErrNotFound)
			}
			return "", nil, fmt.Errorf("marking player sold: %w", err)
		}

		clearBlock(sess)

		sale = Sale{PlayerID: playerID, TeamID: team.ID, Amount: best.Amount, BidID: best.ID}
		return event.PlayerSold, event.PlayerSoldData{
			PlayerID: playerID,
			TeamID:   team.ID,
			Amount:   best.Amount,
			BidID:    best.ID,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.sold.Add(ctx, 1)
	e.metrics.saleAmount.Record(ctx, int64(sale.Amount))
	e.logger.InfoContext(ctx, "player sold",
		slog.String("player_id", sale.PlayerID),
		slog.String("team_id", sale.TeamID),
		slog.Int("amount", sale.Amount),
	)
	return &sale, nil
}

// MarkUnsold closes the auction on playerID, which must be on the block, with
// no sale. A player that has already been through the replay round becomes
// permanently unsold.
func (e *Engine) MarkUnsold(ctx context.Context, playerID string) (store.PlayerStatus, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.MarkUnsold",
		trace.WithAttributes(attribute.String("player_id", playerID)),
	)
	defer span.End()

	var status store.PlayerStatus
	_, err := e.transition(ctx, func(tx *store.Repositories, sess *store.Session) (event.Type, any, error) {
		if err := requireOnBlock(sess, playerID); err != nil {
			return "", nil, err
		}
		p, err := availablePlayer(ctx, tx, playerID)
		if err != nil {
			return "", nil, err
		}

		status = store.StatusUnsold
		typ := event.PlayerUnsold
		if p.UnsoldCount > 0 {
			status = store.StatusPermanentlyUnsold
			typ = event.PlayerPermanentlyUnsold
		}
		if err := tx.Players.MarkUnsold(ctx, playerID, status); err != nil {
			return "", nil, fmt.Errorf("marking player unsold: %w", err)
		}
		clearBlock(sess)
		return typ, event.PlayerUnsoldData{PlayerID: playerID, UnsoldCount: p.UnsoldCount + 1}, nil
	})
	if err != nil {
		return "", err
	}

	e.metrics.unsold.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	e.logger.InfoContext(ctx, "player unsold",
		slog.String("player_id", playerID),
		slog.String("status", string(status)),
	)
	return status, nil
}

// AdvanceRound moves the session from the main round to the unsold replay
// round and makes every unsold player available again. It returns how many
// players were requeued.
func (e *Engine) AdvanceRound(ctx context.Context) (int, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.AdvanceRound")
	defer span.End()

	var requeued int
	_, err := e.transition(ctx, func(tx *store.Repositories, sess *store.Session) (event.Type, any, error) {
		available, err := tx.Players.CountByStatus(ctx, store.StatusAvailable)
		if err != nil {
			return "", nil, fmt.Errorf("counting available players: %w", err)
		}
		unsold, err := tx.Players.CountByStatus(ctx, store.StatusUnsold)
		if err != nil {
			return "", nil, fmt.Errorf("counting unsold players: %w", err)
		}

		from := sess.Round
		if err := advanceRound(sess, available, unsold); err != nil {
			return "", nil, err
		}
		n, err := tx.Players.RequeueUnsold(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("requeueing unsold players: %w", err)
		}
		requeued = n
		return event.RoundAdvanced, event.RoundChangedData{From: string(from), To: string(sess.Round), Requeued: n}, nil
	})
	if err != nil {
		return 0, err
	}

	e.logger.InfoContext(ctx, "round advanced",
		slog.String("round", string(store.RoundUnsoldReplay)),
		slog.Int("requeued", requeued),
	)
	return requeued, nil
}

// ReopenMainRound is an operator override that moves the session back to
// the main round. It is recorded with the operator and reason.
func (e *Engine) ReopenMainRound(ctx context.Context, operator, reason string) error {
	ctx, span := e.tracer.Start(ctx, "Engine.ReopenMainRound",
		trace.WithAttributes(attribute.String("operator", operator)),
	)
	defer span.End()

	if operator == "" {
		return fmt.Errorf("operator is required for a round override: %w", ErrInvalidState)
	}

	_, err := e.transition(ctx, func(_ *store.Repositories, sess *store.Session) (event.Type, any, error) {
		from := sess.Round
		if err := reopenMainRound(sess); err != nil {
			return "", nil, err
		}
		return event.RoundOverridden, event.RoundChangedData{
			From:     string(from),
			To:       string(sess.Round),
			Operator: operator,
			Reason:   reason,
		}, nil
	})
	if err != nil {
		return err
	}

	e.logger.WarnContext(ctx, "main round reopened by operator",
		slog.String("operator", operator),
		slog.String("reason", reason),
	)
	return nil
}

// transition loads the session inside a unit of work, lets fn check and
// mutate it, then saves it and appends the audit event fn describes. The
// committed session is published to subscribers.
func (e *Engine) transition(ctx context.Context, fn func(tx *store.Repositories, sess *store.Session) (event.Type, any, error)) (*store.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var committed *store.Session
	err := e.repos.Atomic(ctx, func(tx *store.Repositories) error {
		sess, err := lockSession(ctx, tx)
		if err != nil {
			return err
		}

		typ, data, err := fn(tx, sess)
		if err != nil {
			return err
		}

		if err := tx.Sessions.Save(ctx, sess); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("session changed concurrently: %w", ErrInvalidState)
			}
			return fmt.Errorf("saving session: %w", err)
		}
		if err := appendEvent(ctx, tx.Events, typ, sess.Version, data); err != nil {
			return err
		}
		committed = sess
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.session.publish(ctx, committed)
	return committed, nil
}

// lockSession reads the session and holds it until tx ends.
func lockSession(ctx context.Context, tx *store.Repositories) (*store.Session, error) {
	sess, err := tx.Sessions.Lock(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("session not initialised: %w", ErrInvalidState)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return sess, nil
}

func availablePlayer(ctx context.Context, repos *store.Repositories, id string) (*store.Player, error) {
	p, err := repos.Players.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading player: %w", err)
	}
	if p.Status != store.StatusAvailable {
		return nil, fmt.Errorf("player %s is %s: %w", id, p.Status, ErrNotFound)
	}
	return p, nil
}

func getTeam(ctx context.Context, repos *store.Repositories, id string) (*store.Team, error) {
	t, err := repos.Teams.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading team: %w", err)
	}
	return t, nil
}
