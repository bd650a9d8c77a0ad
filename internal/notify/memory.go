package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jensholdgaard/player-auction/internal/clock"
)

const subscriberBuffer = 128

// MemoryBroker is an in-process Broker.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	ch     chan []byte
	closed bool
}

// NewMemoryBroker returns an empty MemoryBroker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*subscriber]struct{})}
}

// Publish delivers payload to current subscribers of topic. Subscribers whose
// buffer is full miss the message rather than stall the publisher.
func (b *MemoryBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[topic] {
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber on topic until ctx is done.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	s := &subscriber{ch: make(chan []byte, subscriberBuffer)}

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*subscriber]struct{})
	}
	b.subs[topic][s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], s)
		if len(b.subs[topic]) == 0 {
			delete(b.subs, topic)
		}
		if !s.closed {
			s.closed = true
			close(s.ch)
		}
	}()

	return s.ch, nil
}

// MemoryLocker is an in-process Locker.
type MemoryLocker struct {
	mu    sync.Mutex
	clock clock.Clock
	held  map[string]memoryLock
}

type memoryLock struct {
	token   string
	expires time.Time
}

// NewMemoryLocker returns a MemoryLocker that reads expiry times from clk.
func NewMemoryLocker(clk clock.Clock) *MemoryLocker {
	return &MemoryLocker{clock: clk, held: make(map[string]memoryLock)}
}

// Acquire takes key for ttl. An expired lock is treated as free.
func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, ErrLockHeld
	}

	token := uuid.NewString()
	l.held[key] = memoryLock{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.held[key]; ok && cur.token == token {
				delete(l.held, key)
			}
		})
	}, nil
}
