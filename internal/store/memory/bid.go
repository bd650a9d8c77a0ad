package memory

import (
	"context"

	"github.com/jensholdgaard/player-auction/internal/store"
)

// BidRepo implements store.BidRepository in memory.
type BidRepo struct {
	db   *DB
	held bool
}

func (r *BidRepo) Append(_ context.Context, b *store.Bid) error {
	return r.db.write(r.held, func(st *state) error {
		if b.ID == "" {
			b.ID = newID()
		}
		st.bidSeq++
		b.Seq = st.bidSeq
		if b.CreatedAt.IsZero() {
			b.CreatedAt = r.db.clock.Now().UTC()
		}
		st.bids = append(st.bids, *b)
		return nil
	})
}

func (r *BidRepo) Highest(_ context.Context, playerID string, lot int) (*store.Bid, error) {
	var best *store.Bid
	err := r.db.read(r.held, func(st *state) error {
		// bids are held in seq order, so a strict comparison keeps the earliest on ties.
		for i := range st.bids {
			b := st.bids[i]
			if b.PlayerID != playerID || b.Lot != lot {
				continue
			}
			if best == nil || b.Amount > best.Amount {
				found := b
				best = &found
			}
		}
		return nil
	})
	return best, err
}

func (r *BidRepo) ListForPlayer(_ context.Context, playerID string) ([]store.Bid, error) {
	var out []store.Bid
	err := r.db.read(r.held, func(st *state) error {
		for i := len(st.bids) - 1; i >= 0; i-- {
			if st.bids[i].PlayerID == playerID {
				out = append(out, st.bids[i])
			}
		}
		return nil
	})
	return out, err
}
