// Package memory provides a store.Driver that keeps every record in process
// memory. Atomic blocks hold the write lock for their whole duration and
// restore a snapshot when they fail, so they behave like a serialisable
// transaction for the single process that owns the data.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/jensholdgaard/player-auction/internal/clock"
	"github.com/jensholdgaard/player-auction/internal/config"
	"github.com/jensholdgaard/player-auction/internal/event"
	"github.com/jensholdgaard/player-auction/internal/store"
)

func init() {
	store.Register("memory", openMemory)
}

func openMemory(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	return New(clk).Repositories(), nil
}

type state struct {
	players     map[string]store.Player
	playerOrder []string
	teams       map[string]store.Team
	teamOrder   []string
	bids        []store.Bid
	bidSeq      int64
	session     *store.Session
	events      []event.Event
}

func newState() *state {
	return &state{
		players: make(map[string]store.Player),
		teams:   make(map[string]store.Team),
	}
}

func (s *state) clone() *state {
	c := &state{
		players:     make(map[string]store.Player, len(s.players)),
		playerOrder: slices.Clone(s.playerOrder),
		teams:       make(map[string]store.Team, len(s.teams)),
		teamOrder:   slices.Clone(s.teamOrder),
		bids:        slices.Clone(s.bids),
		bidSeq:      s.bidSeq,
		events:      slices.Clone(s.events),
	}
	for id, p := range s.players {
		c.players[id] = p
	}
	for id, t := range s.teams {
		t.Players = slices.Clone(t.Players)
		c.teams[id] = t
	}
	if s.session != nil {
		sess := *s.session
		c.session = &sess
	}
	return c
}

// DB is an in-memory database shared by the repositories it hands out.
type DB struct {
	mu    sync.RWMutex
	st    *state
	clock clock.Clock
}

// New returns an empty DB.
func New(clk clock.Clock) *DB {
	return &DB{st: newState(), clock: clk}
}

// Repositories returns repositories that lock the DB per call.
func (db *DB) Repositories() *store.Repositories {
	r := db.repos(false)
	r.Ping = func(context.Context) error { return nil }
	r.Closer = closerFunc(func() error { return nil })
	return r
}

func (db *DB) repos(held bool) *store.Repositories {
	r := &store.Repositories{
		Players:  &PlayerRepo{db: db, held: held},
		Teams:    &TeamRepo{db: db, held: held},
		Bids:     &BidRepo{db: db, held: held},
		Sessions: &SessionRepo{db: db, held: held},
		Events:   &EventStore{db: db, held: held},
	}
	if held {
		r.Atomic = func(_ context.Context, fn func(tx *store.Repositories) error) error {
			return fn(r)
		}
	} else {
		r.Atomic = db.atomic
	}
	return r
}

func (db *DB) atomic(_ context.Context, fn func(tx *store.Repositories) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.st.clone()
	if err := fn(db.repos(true)); err != nil {
		db.st = snapshot
		return err
	}
	return nil
}

func (db *DB) read(held bool, fn func(st *state) error) error {
	if !held {
		db.mu.RLock()
		defer db.mu.RUnlock()
	}
	return fn(db.st)
}

func (db *DB) write(held bool, fn func(st *state) error) error {
	if !held {
		db.mu.Lock()
		defer db.mu.Unlock()
	}
	return fn(db.st)
}

func newID() string { return uuid.NewString() }

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }
