package auction_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jensholdgaard/player-auction/internal/auction"
)

func TestValidateBid_MinimumIncrement(t *testing.T) {
	f := newFixture(t)
	teamA := f.addTeam(t, "A", 10000)
	teamB := f.addTeam(t, "B", 10000)
	p := f.addPlayer(t, "Asha", 1000)
	f.mustStart(t, p.ID)

	if err := f.bid(t, p.ID, teamA.ID, 999); !errors.Is(err, auction.ErrBidTooLow) {
		t.Fatalf("bid below base price error = %v, want ErrBidTooLow", err)
	}
	f.mustBid(t, p.ID, teamA.ID, 1000)

	err := f.bid(t, p.ID, teamB.ID, 1050)
	var low *auction.BidTooLowError
	if !errors.As(err, &low) {
		t.Fatalf("bid 1050 error = %v, want BidTooLowError", err)
	}
	if low.Minimum != 1100 || low.Amount != 1050 {
		t.Errorf("BidTooLowError = %+v, want minimum 1100", low)
	}

	if err := f.bid(t, p.ID, teamB.ID, 1100); err != nil {
		t.Errorf("bid 1100: %v", err)
	}
}

func TestValidateBid(t *testing.T) {
	tests := []struct {
		name    string
		policy  auction.Policy
		amount  int
		wallet  int
		self    bool
		other   bool
		noAuc   bool
		team    string
		wantErr error
	}{
		{name: "accepted", policy: auction.Policy{AllowSelfRaise: true}, amount: 1200, wallet: 5000},
		{name: "insufficient funds", policy: auction.Policy{AllowSelfRaise: true}, amount: 1200, wallet: 1150, wantErr: auction.ErrInsufficientFunds},
		{name: "self raise allowed", policy: auction.Policy{AllowSelfRaise: true}, amount: 1200, wallet: 5000, self: true},
		{name: "self raise rejected", policy: auction.Policy{}, amount: 1200, wallet: 5000, self: true, wantErr: auction.ErrSameBidder},
		{name: "player not on the block", policy: auction.Policy{AllowSelfRaise: true}, amount: 1200, wallet: 5000, other: true, wantErr: auction.ErrInvalidState},
		{name: "no auction running", policy: auction.Policy{AllowSelfRaise: true}, amount: 1200, wallet: 5000, noAuc: true, wantErr: auction.ErrInvalidState},
		{name: "unknown team", policy: auction.Policy{AllowSelfRaise: true}, amount: 1200, wallet: 5000, team: "missing", wantErr: auction.ErrNotFound},
		{name: "zero amount", policy: auction.Policy{AllowSelfRaise: true}, amount: 0, wallet: 5000, wantErr: auction.ErrBidTooLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, withPolicy(tt.policy))
			bidder := f.addTeam(t, "Bidder", tt.wallet)
			rival := f.addTeam(t, "Rival", 10000)
			p := f.addPlayer(t, "Asha", 1000)
			other := f.addPlayer(t, "Bilal", 1000)

			if !tt.noAuc {
				f.mustStart(t, p.ID)
				opener := rival.ID
				if tt.self {
					opener = bidder.ID
				}
				f.mustBid(t, p.ID, opener, 1000)
			}

			target := p.ID
			if tt.other {
				target = other.ID
			}
			teamID := bidder.ID
			if tt.team != "" {
				teamID = tt.team
			}

			q, err := f.engine.ValidateBid(context.Background(), target, teamID, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateBid error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && q.MinimumBid != 1100 {
				t.Errorf("MinimumBid = %d, want 1100", q.MinimumBid)
			}
		})
	}
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	team := f.addTeam(t, "A", 10000)
	p := f.addPlayer(t, "Asha", 1500)

	if _, err := f.engine.Quote(ctx, p.ID); !errors.Is(err, auction.ErrInvalidState) {
		t.Fatalf("Quote while idle error = %v, want ErrInvalidState", err)
	}

	f.mustStart(t, p.ID)
	q, err := f.engine.Quote(ctx, p.ID)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Highest != nil || q.MinimumBid != 1500 || q.EffectiveBasePrice != 1500 {
		t.Errorf("opening quote = %+v", q)
	}

	f.mustBid(t, p.ID, team.ID, 1700)
	q, err = f.engine.Quote(ctx, p.ID)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Highest == nil || q.Highest.Amount != 1700 || q.MinimumBid != 1800 {
		t.Errorf("quote after bid = %+v", q)
	}
	if q.Player.ID != p.ID || !q.Session.IsActive {
		t.Errorf("quote snapshot = %+v", q)
	}
}

func TestValidateBid_FreePlayer(t *testing.T) {
	f := newFixture(t)
	team := f.addTeam(t, "A", 10000)
	p := f.addPlayer(t, "Rookie", 0)
	f.mustStart(t, p.ID)

	if err := f.bid(t, p.ID, team.ID, 0); !errors.Is(err, auction.ErrBidTooLow) {
		t.Errorf("zero bid error = %v, want ErrBidTooLow", err)
	}
	if err := f.bid(t, p.ID, team.ID, 1); err != nil {
		t.Errorf("bid of 1 on a free player: %v", err)
	}
}
