package auction_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/player-auction/internal/auction"
	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/config"
	"github.com/jensholdgaard/player-auction/internal/notify"
	"github.com/jensholdgaard/player-auction/internal/store"
	"github.com/jensholdgaard/player-auction/internal/store/memory"
)

var auctionDay = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

type fixture struct {
	repos   *store.Repositories
	broker  *notify.MemoryBroker
	session *auction.Session
	engine  *auction.Engine
}

type fixtureOption func(*fixtureOpts)

type fixtureOpts struct {
	policy auction.Policy
	wrap   func(*store.Repositories) *store.Repositories
	noInit bool
}

func withPolicy(p auction.Policy) fixtureOption {
	return func(o *fixtureOpts) { o.policy = p }
}

func withRepos(wrap func(*store.Repositories) *store.Repositories) fixtureOption {
	return func(o *fixtureOpts) { o.wrap = wrap }
}

func withoutInit() fixtureOption {
	return func(o *fixtureOpts) { o.noInit = true }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	o := fixtureOpts{policy: auction.Policy{AllowSelfRaise: true}}
	for _, opt := range opts {
		opt(&o)
	}

	repos := memory.New(clock.NewStep(auctionDay, time.Second)).Repositories()
	broker := notify.NewMemoryBroker()
	sess := auction.NewSession(repos.Sessions, broker, slog.Default(), noop.NewTracerProvider())
	if !o.noInit {
		_, err := sess.Init(context.Background(), config.AuctionConfig{
			MinBidIncrement:            100,
			UnsoldPriceReductionFactor: 0.5,
			AuctionDate:                auctionDay,
		})
		if err != nil {
			t.Fatalf("Init: %v", err)
		}
	}

	engineRepos := repos
	if o.wrap != nil {
		engineRepos = o.wrap(repos)
	}
	eng, err := auction.NewEngine(engineRepos, sess, o.policy, slog.Default(), noop.NewTracerProvider(), metricnoop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &fixture{repos: repos, broker: broker, session: sess, engine: eng}
}

func (f *fixture) addPlayer(t *testing.T, name string, basePrice int) *store.Player {
	t.Helper()
	p := &store.Player{Name: name, Role: "Batter", BasePrice: basePrice}
	if err := f.repos.Players.Create(context.Background(), p); err != nil {
		t.Fatalf("Create player %s: %v", name, err)
	}
	return p
}

func (f *fixture) addTeam(t *testing.T, name string, wallet int) *store.Team {
	t.Helper()
	team := &store.Team{Name: name, Wallet: wallet, InitialWallet: wallet}
	if err := f.repos.Teams.Create(context.Background(), team); err != nil {
		t.Fatalf("Create team %s: %v", name, err)
	}
	return team
}

// bid validates and records a bid the way the bidding surface does.
func (f *fixture) bid(t *testing.T, playerID, teamID string, amount int) error {
	t.Helper()
	_, err := f.engine.AcceptBid(context.Background(), playerID, teamID, amount, appendBid)
	return err
}

// forceBid writes a bid into the current lot without validation.
func (f *fixture) forceBid(t *testing.T, playerID, teamID string, amount int) {
	t.Helper()
	b := &store.Bid{PlayerID: playerID, TeamID: teamID, Amount: amount, Lot: f.sessionRecord(t).Lot}
	if err := f.repos.Bids.Append(context.Background(), b); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func appendBid(ctx context.Context, bids store.BidRepository, b *store.Bid) error {
	return bids.Append(ctx, b)
}

func (f *fixture) mustBid(t *testing.T, playerID, teamID string, amount int) {
	t.Helper()
	if err := f.bid(t, playerID, teamID, amount); err != nil {
		t.Fatalf("bid(%d): %v", amount, err)
	}
}

func (f *fixture) mustStart(t *testing.T, playerID string) {
	t.Helper()
	if _, err := f.engine.StartAuction(context.Background(), playerID); err != nil {
		t.Fatalf("StartAuction(%s): %v", playerID, err)
	}
}

func (f *fixture) player(t *testing.T, id string) *store.Player {
	t.Helper()
	p, err := f.repos.Players.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get player: %v", err)
	}
	return p
}

func (f *fixture) team(t *testing.T, id string) *store.Team {
	t.Helper()
	team, err := f.repos.Teams.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get team: %v", err)
	}
	return team
}

func (f *fixture) sessionRecord(t *testing.T) *store.Session {
	t.Helper()
	s, err := f.session.Get(context.Background())
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	return s
}

// failingPlayers fails MarkSold so a sale breaks after the debit.
type failingPlayers struct {
	store.PlayerRepository
	err error
}

func (f failingPlayers) MarkSold(context.Context, string, string, int) error { return f.err }

func failMarkSold(err error) func(*store.Repositories) *store.Repositories {
	return func(repos *store.Repositories) *store.Repositories {
		wrapped := *repos
		wrapped.Atomic = func(ctx context.Context, fn func(tx *store.Repositories) error) error {
			return repos.Atomic(ctx, func(tx *store.Repositories) error {
				txw := *tx
				txw.Players = failingPlayers{PlayerRepository: tx.Players, err: err}
				return fn(&txw)
			})
		}
		return &wrapped
	}
}

var errStorage = errors.New("storage unavailable")
