package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "zendesk-sync:ticket-lock:"
	defaultLockTTL   = 30 * time.Second
	defaultLockRetry = 100 * time.Millisecond
)

// releaseScript deletes the lock key only if this holder still owns it, so a
// slow holder whose TTL expired cannot release a successor's lock.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// RedisLock is the cross-process strategy: SET NX with a TTL, polled until
// acquired or the context ends. The TTL caps how long a crashed holder can
// block a ticket.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client, ttl: defaultLockTTL, retry: defaultLockRetry}
}

func (r *RedisLock) Acquire(ctx context.Context, ticketID int64) (func(), error) {
	key := fmt.Sprintf("%s%d", redisKeyPrefix, ticketID)
	token := uuid.NewString()

	for {
		acquired, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire ticket lock %d: %w", ticketID, err)
		}
		if acquired {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.client.Eval(ctx, releaseScript, []string{key}, token)
	}
	return release, nil
}
