package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// releaseScript deletes the key only if this holder still owns it.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// RedisCmdable is the subset of *redis.Client the lock needs.
type RedisCmdable interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Redis is a cross-process Locker using SET NX PX with an owner token.
type Redis struct {
	client RedisCmdable
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

// NewRedis creates a Redis-backed Locker. The TTL bounds how long a crashed
// holder can block others.
func NewRedis(client RedisCmdable, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, poll: 100 * time.Millisecond}
}

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrapf(err, "lock: parse redis url")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "lock: redis ping")
	}
	return client, nil
}

// Acquire implements Locker.
func (r *Redis) Acquire(ctx context.Context, key string) (Lease, error) {
	full := r.prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, full, token, r.ttl).Result()
		if err != nil {
			return nil, eris.Wrapf(err, "lock: acquire %s", full)
		}
		if ok {
			return &redisLease{client: r.client, key: full, token: token}, nil
		}

		timer := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

type redisLease struct {
	client RedisCmdable
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	n, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return eris.Wrapf(err, "lock: release %s", l.key)
	}
	if n == 0 {
		zap.L().Warn("lock: lease expired before release", zap.String("key", l.key))
	}
	return nil
}
