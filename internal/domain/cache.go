package domain

import (
	"context"
	"time"
)

// ListingCache caches listing snapshots for the read-heavy tender board.
// Implementations must return ErrNotFound on a cache miss.
type ListingCache interface {
	Set(ctx context.Context, listing Listing) error
	Get(ctx context.Context, id string) (Listing, error)
	Invalidate(ctx context.Context, id string) error
}

// RateLimiter applies a sliding-window rate limit per key.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under the limit;
	// an allowed request is counted against the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides short-lived distributed locks, used to ensure that
// background sweeps (archive, notification redelivery) run on one instance
// at a time. It returns ErrLockHeld when the lock is taken.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Signal is one message received from a SignalBus subscription. Channel is
// the concrete channel the message was published on, which matters for
// pattern subscriptions.
type Signal struct {
	Channel string
	Payload []byte
}

// SignalBus carries settlement and tender events between the engine, the
// websocket hub, and any other interested subscriber.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of signals; channel may be a glob pattern.
	// The returned channel is closed when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan Signal, error)
}
