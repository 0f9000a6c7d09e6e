// Package lock provides the run lock that keeps maintenance passes from
// overlapping across instances.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var ErrNotAcquired = errors.New("lock_not_acquired")

var Module = fx.Module("lock",
	fx.Provide(New),
)

type Locker interface {
	// Acquire takes the named lock for at most ttl. It returns
	// ErrNotAcquired when another holder owns it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

type Lease interface {
	Release(ctx context.Context) error
}

type Params struct {
	fx.In

	Redis *redis.Client `optional:"true"`
}

func New(p Params) Locker {
	if p.Redis == nil {
		return Noop{}
	}
	return NewRedis(p.Redis)
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "tallybook:lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	key := l.prefix + name
	token := ulid.Make().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &redisLease{client: l.client, key: key, token: token}, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// Noop always grants the lock. Used when Redis is not configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (Lease, error) {
	return noopLease{}, nil
}

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }
