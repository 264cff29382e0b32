// README: Redis-backed keyed lock for multi-instance deployments.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const retryInterval = 25 * time.Millisecond

// Only the holder's token may release the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis acquires keys with SET NX PX. TTL bounds how long a crashed holder can
// block a ride; Wait bounds how long Lock polls before giving up.
type Redis struct {
	rdb  *redis.Client
	log  logrus.FieldLogger
	TTL  time.Duration
	Wait time.Duration
}

func NewRedis(rdb *redis.Client, ttl, wait time.Duration, log logrus.FieldLogger) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if wait <= 0 {
		wait = 3 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Redis{rdb: rdb, log: log, TTL: ttl, Wait: wait}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(r.Wait)
	for {
		ok, err := r.rdb.SetNX(ctx, key, token, r.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire %s: %w", key, ErrNotAcquired)
		}
		t := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be cancelled; release must still run.
			rctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			r.release(rctx, key, token)
		})
	}, nil
}

// release logs instead of failing: the write under the lock has already happened.
// A failed DEL leaves the key until TTL, and a zero result means the TTL ran out
// while the holder was still working.
func (r *Redis) release(ctx context.Context, key, token string) {
	n, err := releaseScript.Run(ctx, r.rdb, []string{key}, token).Int()
	fields := logrus.Fields{"key": key, "ttl": r.TTL}
	switch {
	case err != nil:
		r.log.WithFields(fields).WithError(err).Error("release lock; key held until ttl")
	case n == 0:
		r.log.WithFields(fields).Warn("lock expired before release")
	}
}
