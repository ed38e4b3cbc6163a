package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

const (
	defaultLockTTL   = 10 * time.Second
	defaultLockRetry = 25 * time.Millisecond
	lockKeyPrefix    = "lock:"
)

// deletes the key only while it still holds our token
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RootLock is a cross-process mutex on roadmap roots. A holder that dies keeps
// the key only until the TTL lapses.
type RootLock struct {
	rdb   *goredis.Client
	log   *logger.Logger
	ttl   time.Duration
	retry time.Duration
}

func NewRootLock(rdb *goredis.Client, ttl time.Duration, log *logger.Logger) *RootLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RootLock{
		rdb:   rdb,
		log:   log.With("service", "RedisRootLock"),
		ttl:   ttl,
		retry: defaultLockRetry,
	}
}

// Lock polls SET NX PX until it wins or ctx is done.
func (l *RootLock) Lock(ctx context.Context, key string) (func(), error) {
	k := lockKeyPrefix + key
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("acquire %s: %w", key, err)
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
	return func() { l.release(k, token) }, nil
}

func (l *RootLock) release(k, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, l.rdb, []string{k}, token).Int()
	if err != nil {
		l.log.Warn("root lock release failed", "key", k, "error", err)
		return
	}
	if n == 0 {
		l.log.Warn("root lock expired before release", "key", k, "ttl", l.ttl)
	}
}
