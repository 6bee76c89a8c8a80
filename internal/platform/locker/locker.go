// Package locker provides short-lived named locks used to serialize booking
// work on a doctor-day across server instances.
package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is still held by someone else
// after the wait budget is spent.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker acquires a named lock. The returned release func must be called once
// the protected work is done; it never blocks for long.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// Options bound how long a lock lives and how long Acquire waits for it.
type Options struct {
	TTL          time.Duration
	Wait         time.Duration
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 10 * time.Second
	}
	if o.Wait < 0 {
		o.Wait = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 25 * time.Millisecond
	}
	return o
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker implements Locker with SET NX PX and an owner token.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	opts   Options
}

func NewRedisLocker(client redis.UniversalClient, prefix string, opts Options) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, opts: opts.withDefaults()}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	acquire := func() (bool, error) {
		return l.client.SetNX(ctx, fullKey, token, l.opts.TTL).Result()
	}
	if err := waitFor(ctx, l.opts, acquire); err != nil {
		return nil, fmt.Errorf("lock %s: %w", fullKey, err)
	}

	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Int()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", fullKey, err)
		}
		if n == 0 {
			return fmt.Errorf("release lock %s: lock expired or taken over", fullKey)
		}
		return nil
	}, nil
}

// waitFor polls try until it succeeds, fails, or the wait budget runs out.
func waitFor(ctx context.Context, opts Options, try func() (bool, error)) error {
	deadline := time.Now().Add(opts.Wait)
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.PollInterval):
		}
	}
}

// LocalLocker is an in-process Locker for single-instance deployments and
// tests. Keys expire after TTL like their redis counterparts.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localLock
	opts  Options
	nowFn func() time.Time
}

type localLock struct {
	token   string
	expires time.Time
}

func NewLocalLocker(opts Options) *LocalLocker {
	return &LocalLocker{held: make(map[string]localLock), opts: opts.withDefaults(), nowFn: time.Now}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	token := uuid.NewString()
	acquire := func() (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		now := l.nowFn()
		if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
			return false, nil
		}
		l.held[key] = localLock{token: token, expires: now.Add(l.opts.TTL)}
		return true, nil
	}
	if err := waitFor(ctx, l.opts, acquire); err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.token == token {
			delete(l.held, key)
			return nil
		}
		return fmt.Errorf("release lock %s: lock expired or taken over", key)
	}, nil
}

// Noop grants every lock immediately.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
