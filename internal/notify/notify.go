// Package notify carries live auction updates to subscribers and provides
// the short-lived locks that serialise bids on a player.
package notify

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned by Locker.Acquire when another holder owns the key.
var ErrLockHeld = errors.New("lock already held")

// Topics.
const (
	SessionTopic   = "auction:session"
	bidTopicPrefix = "auction:bids:"
)

// BidTopic returns the topic that carries new bids for playerID.
func BidTopic(playerID string) string {
	return bidTopicPrefix + playerID
}

// Broker fans payloads out to every subscriber of a topic.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe returns a channel of payloads published to topic after the call.
	// The channel is closed when ctx is cancelled.
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
}

// Locker hands out exclusive, expiring locks.
type Locker interface {
	// Acquire returns an unlock func, or ErrLockHeld if key is taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
