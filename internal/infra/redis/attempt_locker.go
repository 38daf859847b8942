package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only while the lock still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// AttemptLocker is an app.Locker shared by every service instance.
// Locks are SET NX with an expiry so a crashed holder cannot block an attempt forever;
// a live holder renews the expiry every ttl/3 until it unlocks.
type AttemptLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewAttemptLocker(client *redis.Client, ttl time.Duration) *AttemptLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &AttemptLocker{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

// Lock polls until key is free or ctx is done.
func (l *AttemptLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := l.key(key)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	done := make(chan struct{})
	go l.keepAlive(lockKey, token, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			_ = releaseScript.Run(context.Background(), l.client, []string{lockKey}, token).Err()
		})
	}, nil
}

// keepAlive renews the lock until done is closed or the lock is lost.
func (l *AttemptLocker) keepAlive(lockKey, token string, done <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := extendScript.Run(ctx, l.client, []string{lockKey}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				return
			}
		}
	}
}

func (l *AttemptLocker) key(key string) string {
	return "lock:" + key
}
