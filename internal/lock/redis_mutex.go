package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only when it still holds our
// token, making release safe against TTL takeover.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisMutex is the networked Mutex for horizontally scaled
// deployments: SET NX with a TTL acquires, a compare-and-delete
// script releases.  Redis expiry replaces the table takeover logic of
// the DB baseline.
type RedisMutex struct {
	client *redis.Client
	prefix string
}

// NewRedisMutex returns a RedisMutex.  Keys are namespaced under
// "mutex:" to keep them apart from anything else in the database.
func NewRedisMutex(client *redis.Client) *RedisMutex {
	return &RedisMutex{client: client, prefix: "mutex:"}
}

// Acquire sets the lock key if absent.  ErrNotAcquired is returned
// when another holder owns the resource.
func (m *RedisMutex) Acquire(ctx context.Context, resource string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, m.prefix+resource, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotAcquired
	}
	return token, nil
}

// Release removes the lock if the token still matches.
func (m *RedisMutex) Release(ctx context.Context, resource, token string) error {
	return releaseScript.Run(ctx, m.client, []string{m.prefix + resource}, token).Err()
}
