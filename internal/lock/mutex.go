// Package lock provides a distributed mutex capability for resources
// that are not guarded by database rows, such as promotion-code
// redemption counters shared across service instances.  Seat and
// booking correctness never depends on this package; the relational
// store's row locks and unique constraints carry those.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when another holder currently owns the
// resource.
var ErrNotAcquired = errors.New("mutex not acquired")

// Mutex acquires short-lived exclusive ownership of a named resource.
// Every acquisition carries a TTL so a crashed holder can never block
// the resource forever.  Release requires the token returned by
// Acquire so a holder cannot release a lock it lost to TTL takeover.
type Mutex interface {
	Acquire(ctx context.Context, resource string, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, resource, token string) error
}

// ExecuteWithMutex runs fn while holding the named resource, always
// releasing afterwards.  Callers get ErrNotAcquired unchanged when the
// resource is busy so they can decide between retrying and giving up.
func ExecuteWithMutex(ctx context.Context, m Mutex, resource string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token, err := m.Acquire(ctx, resource, ttl)
	if err != nil {
		return err
	}
	defer func() { _ = m.Release(context.WithoutCancel(ctx), resource, token) }()
	return fn(ctx)
}
