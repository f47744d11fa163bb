package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix     = "lock:tx:"
	userKeyPrefix     = "roblox:user:"
	lockRetryInterval = 25 * time.Millisecond
	releaseTimeout    = 2 * time.Second
)

// releaseLockScript deletes the lock only if it is still held by the caller's token.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisAdapter struct {
	client  *redis.Client
	lockTTL time.Duration
	userTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, lockTTL, userTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, lockTTL: lockTTL, userTTL: userTTL}
}

// LockReference spins on SET NX until the lock is free or ctx is done.
// The TTL bounds how long a crashed holder can block other instances.
func (r *RedisAdapter) LockReference(ctx context.Context, tx string) (func(), error) {
	key := lockKeyPrefix + tx
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}

		t := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		_ = releaseLockScript.Run(ctx, r.client, []string{key}, token).Err()
	}, nil
}

func (r *RedisAdapter) GetUserID(ctx context.Context, username string) (int64, bool, error) {
	id, err := r.client.Get(ctx, userKey(username)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (r *RedisAdapter) SetUserID(ctx context.Context, username string, userID int64) error {
	return r.client.Set(ctx, userKey(username), userID, r.userTTL).Err()
}

// Roblox usernames are case-insensitive.
func userKey(username string) string {
	return userKeyPrefix + strings.ToLower(strings.TrimSpace(username))
}
