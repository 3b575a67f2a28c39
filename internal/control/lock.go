// Package control runs the three background reconciliation loops (timeout,
// retry, expiry) against the engine, each mutually excluded across server
// instances by a Redis-side lock so a second process sharing the same
// Redis database cannot run the same reconciliation concurrently.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock is a Redis-backed mutual-exclusion lock held for the duration of one
// reconciliation pass.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// AcquireLock attempts a SETNX lock with the given TTL. Returns (nil, nil)
// when another holder already owns it.
func AcquireLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.New().String()

	acquired, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !acquired {
		return nil, nil
	}

	return &Lock{client: client, key: key, token: token}, nil
}

var releaseScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
	return redis.call('del', KEYS[1])
else
	return 0
end
`)

// Release drops the lock, but only if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
