package ledger_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/ledger"
	"github.com/jensholdgaard/player-auction/internal/notify"
	"github.com/jensholdgaard/player-auction/internal/store"
	"github.com/jensholdgaard/player-auction/internal/store/memory"
)

var start = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func newLedger(t *testing.T) (*ledger.Ledger, *store.Repositories) {
	t.Helper()
	clk := clock.NewStep(start, time.Second)
	repos := memory.New(clk).Repositories()
	broker := notify.NewMemoryBroker()
	return ledger.New(repos.Bids, broker, slog.Default(), noop.NewTracerProvider(), clk), repos
}

func TestLedger_HighestTieBreak(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	for _, b := range []struct {
		team   string
		amount int
	}{
		{"teamA", 1000},
		{"teamB", 1500},
		{"teamA", 1500},
	} {
		if _, err := l.Record(ctx, 1, "p1", b.team, b.amount); err != nil {
			t.Fatalf("Record(%s, %d): %v", b.team, b.amount, err)
		}
	}

	best, err := l.Highest(ctx, "p1", 1)
	if err != nil {
		t.Fatalf("Highest: %v", err)
	}
	if best.TeamID != "teamB" || best.Amount != 1500 {
		t.Errorf("Highest = %s/%d, want teamB/1500", best.TeamID, best.Amount)
	}
}

func TestLedger_HighestByLot(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	if _, err := l.Record(ctx, 1, "p1", "teamA", 2000); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := l.Record(ctx, 2, "p1", "teamB", 1000); err != nil {
		t.Fatalf("Record: %v", err)
	}

	tests := []struct {
		lot      int
		wantTeam string
	}{
		{lot: 1, wantTeam: "teamA"},
		{lot: 2, wantTeam: "teamB"},
		{lot: 3},
	}
	for _, tt := range tests {
		best, err := l.Highest(ctx, "p1", tt.lot)
		if err != nil {
			t.Fatalf("Highest(lot %d): %v", tt.lot, err)
		}
		if tt.wantTeam == "" {
			if best != nil {
				t.Errorf("Highest(lot %d) = %+v, want nil", tt.lot, best)
			}
			continue
		}
		if best == nil || best.TeamID != tt.wantTeam || best.Lot != tt.lot {
			t.Errorf("Highest(lot %d) = %+v, want %s", tt.lot, best, tt.wantTeam)
		}
	}

	bids, err := l.BidsFor(ctx, "p1")
	if err != nil || len(bids) != 2 {
		t.Errorf("BidsFor = %d bids, %v; want full history of 2", len(bids), err)
	}
}

func TestLedger_HighestNoBids(t *testing.T) {
	l, _ := newLedger(t)
	best, err := l.Highest(context.Background(), "p1", 1)
	if err != nil {
		t.Fatalf("Highest: %v", err)
	}
	if best != nil {
		t.Errorf("Highest = %+v, want nil", best)
	}
}

func TestLedger_BidsForMostRecentFirst(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	for _, amount := range []int{1000, 1100, 1200} {
		if _, err := l.Record(ctx, 1, "p1", "teamA", amount); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if _, err := l.Record(ctx, 1, "p2", "teamA", 9000); err != nil {
		t.Fatalf("Record: %v", err)
	}

	bids, err := l.BidsFor(ctx, "p1")
	if err != nil {
		t.Fatalf("BidsFor: %v", err)
	}
	want := []int{1200, 1100, 1000}
	if len(bids) != len(want) {
		t.Fatalf("BidsFor returned %d bids, want %d", len(bids), len(want))
	}
	for i, b := range bids {
		if b.Amount != want[i] {
			t.Errorf("bids[%d].Amount = %d, want %d", i, b.Amount, want[i])
		}
	}
	if !bids[0].CreatedAt.After(bids[2].CreatedAt) {
		t.Errorf("timestamps not increasing: %v then %v", bids[2].CreatedAt, bids[0].CreatedAt)
	}
}

func TestLedger_RecordRejectsNonPositive(t *testing.T) {
	l, _ := newLedger(t)
	for _, amount := range []int{0, -5} {
		if _, err := l.Record(context.Background(), 1, "p1", "teamA", amount); !errors.Is(err, ledger.ErrInvalidAmount) {
			t.Errorf("Record(%d) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestLedger_AppendDoesNotPublish(t *testing.T) {
	l, repos := newLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan store.Bid, 1)
	if err := l.Subscribe(ctx, "p1", func(b store.Bid) { got <- b }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	b := &store.Bid{PlayerID: "p1", TeamID: "teamA", Amount: 1000, Lot: 1}
	if err := l.Append(ctx, repos.Bids, b); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if b.Seq == 0 || b.CreatedAt.IsZero() {
		t.Errorf("appended bid = %+v, want seq and timestamp set", b)
	}
	if err := l.Append(ctx, repos.Bids, &store.Bid{PlayerID: "p1", TeamID: "teamA"}); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("Append zero amount error = %v, want ErrInvalidAmount", err)
	}

	select {
	case n := <-got:
		t.Fatalf("Append published %+v", n)
	case <-time.After(50 * time.Millisecond):
	}

	l.Publish(ctx, b)
	select {
	case n := <-got:
		if n.ID != b.ID {
			t.Errorf("published %+v, want %+v", n, b)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification after Publish")
	}
}

func TestLedger_Subscribe(t *testing.T) {
	l, _ := newLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan store.Bid, 4)
	if err := l.Subscribe(ctx, "p1", func(b store.Bid) { got <- b }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := l.Record(ctx, 1, "p2", "teamA", 500); err != nil {
		t.Fatalf("Record: %v", err)
	}
	recorded, err := l.Record(ctx, 1, "p1", "teamB", 1200)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	select {
	case b := <-got:
		if b.ID != recorded.ID || b.Amount != 1200 || b.TeamID != "teamB" {
			t.Errorf("notified bid = %+v, want %+v", b, recorded)
		}
	case <-time.After(time.Second):
		t.Fatal("no notification received")
	}

	select {
	case b := <-got:
		t.Errorf("unexpected notification %+v", b)
	case <-time.After(50 * time.Millisecond):
	}
}
