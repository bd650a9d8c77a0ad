package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/player-auction/internal/config"
	"github.com/jensholdgaard/player-auction/internal/notify"
	"github.com/jensholdgaard/player-auction/internal/store"
)

// State is the bidding axis of the session.
type State string

// Session states.
const (
	StateIdle    State = "idle"
	StateBidding State = "bidding"
)

// StateOf returns the bidding state of s.
func StateOf(s *store.Session) State {
	if s.IsActive {
		return StateBidding
	}
	return StateIdle
}

// Session is the handle on the single auction session record. It reads the
// record and fans changes out to subscribers; the Engine performs every write.
type Session struct {
	sessions store.SessionRepository
	broker   notify.Broker
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewSession returns a Session handle.
func NewSession(sessions store.SessionRepository, broker notify.Broker, logger *slog.Logger, tp trace.TracerProvider) *Session {
	return &Session{
		sessions: sessions,
		broker:   broker,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/player-auction/internal/auction"),
	}
}

// Init creates the session record from cfg if none exists and returns the
// stored record. Calling it again leaves an existing record untouched.
func (s *Session) Init(ctx context.Context, cfg config.AuctionConfig) (*store.Session, error) {
	ctx, span := s.tracer.Start(ctx, "Session.Init")
	defer span.End()

	created, err := s.sessions.Init(ctx, &store.Session{
		Round:                      store.RoundMain,
		MinBidIncrement:            cfg.MinBidIncrement,
		UnsoldPriceReductionFactor: cfg.UnsoldPriceReductionFactor,
		AuctionDate:                cfg.AuctionDate.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("initialising session: %w", err)
	}

	sess, err := s.sessions.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if created {
		s.logger.InfoContext(ctx, "auction session initialised",
			slog.Int("min_bid_increment", sess.MinBidIncrement),
			slog.Float64("unsold_price_reduction_factor", sess.UnsoldPriceReductionFactor),
		)
	}
	return sess, nil
}

// Get returns the current session record.
func (s *Session) Get(ctx context.Context) (*store.Session, error) {
	sess, err := s.sessions.Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("session not initialised: %w", ErrInvalidState)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return sess, nil
}

// Subscribe calls fn with every committed session change until ctx is done.
func (s *Session) Subscribe(ctx context.Context, fn func(store.Session)) error {
	ch, err := s.broker.Subscribe(ctx, notify.SessionTopic)
	if err != nil {
		return fmt.Errorf("subscribing to session: %w", err)
	}
	go func() {
		for payload := range ch {
			var sess store.Session
			if err := json.Unmarshal(payload, &sess); err != nil {
				s.logger.WarnContext(ctx, "dropping malformed session notification", slog.Any("error", err))
				continue
			}
			fn(sess)
		}
	}()
	return nil
}

func (s *Session) publish(ctx context.Context, sess *store.Session) {
	payload, err := json.Marshal(sess)
	if err != nil {
		s.logger.ErrorContext(ctx, "encoding session notification", slog.Any("error", err))
		return
	}
	if err := s.broker.Publish(ctx, notify.SessionTopic, payload); err != nil {
		s.logger.WarnContext(ctx, "publishing session", slog.Any("error", err))
	}
}

// The transitions below mutate an in-memory copy of the record; the Engine
// persists the result with a version check.

func startBidding(s *store.Session, playerID string) error {
	if s.IsActive {
		return fmt.Errorf("player %s is already on the block: %w", deref(s.CurrentPlayerID), ErrInvalidState)
	}
	id := playerID
	s.IsActive = true
	s.CurrentPlayerID = &id
	s.Lot++
	return nil
}

// endBidding stops bidding but leaves the player on the block for a sale or
// an unsold verdict.
func endBidding(s *store.Session) error {
	if !s.IsActive {
		return fmt.Errorf("no auction in progress: %w", ErrInvalidState)
	}
	s.IsActive = false
	return nil
}

func clearBlock(s *store.Session) {
	s.IsActive = false
	s.CurrentPlayerID = nil
}

// requireOnBlock checks that playerID is the player on the block, whether or
// not bidding has ended.
func requireOnBlock(s *store.Session, playerID string) error {
	if s.CurrentPlayerID == nil {
		return fmt.Errorf("no player on the block: %w", ErrInvalidState)
	}
	if *s.CurrentPlayerID != playerID {
		return fmt.Errorf("player %s is not on the block (current %s): %w", playerID, *s.CurrentPlayerID, ErrInvalidState)
	}
	return nil
}

// requireBidding checks that playerID is on the block and open for bids.
func requireBidding(s *store.Session, playerID string) error {
	if !s.IsActive {
		return fmt.Errorf("no auction in progress: %w", ErrInvalidState)
	}
	return requireOnBlock(s, playerID)
}

func advanceRound(s *store.Session, available, unsold int) error {
	if s.IsActive {
		return fmt.Errorf("cannot change round mid-auction: %w", ErrInvalidState)
	}
	if s.Round != store.RoundMain {
		return fmt.Errorf("round is already %s: %w", s.Round, ErrInvalidState)
	}
	if available > 0 {
		return fmt.Errorf("%d players still available: %w", available, ErrInvalidState)
	}
	if unsold == 0 {
		return fmt.Errorf("no unsold players to replay: %w", ErrInvalidState)
	}
	s.Round = store.RoundUnsoldReplay
	return nil
}

func reopenMainRound(s *store.Session) error {
	if s.IsActive {
		return fmt.Errorf("cannot change round mid-auction: %w", ErrInvalidState)
	}
	if s.Round != store.RoundUnsoldReplay {
		return fmt.Errorf("round is already %s: %w", s.Round, ErrInvalidState)
	}
	s.Round = store.RoundMain
	return nil
}

// EffectiveBasePrice is the bidding floor for p under s. Players back for the
// unsold replay round are offered at the reduced price; the stored base
// price never changes.
func EffectiveBasePrice(s *store.Session, p *store.Player) int {
	if s.Round == store.RoundUnsoldReplay && p.UnsoldCount > 0 {
		// The epsilon absorbs binary rounding, e.g. 1000*0.7 landing just below 700.
		return int(math.Floor(float64(p.BasePrice)*s.UnsoldPriceReductionFactor + 1e-9))
	}
	return p.BasePrice
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
