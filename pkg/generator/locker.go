package generator

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/redis"
)

// Locker serializes work on one (dataset, year). Lock fails with a conflict
// error when another caller holds the key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}

// LocalLocker serializes callers within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held: map[string]bool{},
	}
}

func (l *LocalLocker) Lock(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return nil, errors.Newf(errors.KindConflict, "%s is already being generated", key)
	}
	l.held[key] = true

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, nil
}

// heldLock is a lock that expires unless extended.
type heldLock interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// RedisLocker serializes callers across processes sharing a Redis. A held
// lock is extended every third of its TTL until it is released.
type RedisLocker struct {
	locker *redis.Locker
	ttl    time.Duration
	wait   time.Duration
	logger ectologger.Logger
}

// NewRedisLocker holds locks for ttl and waits up to wait for a busy key.
func NewRedisLocker(locker *redis.Locker, ttl, wait time.Duration, logger ectologger.Logger) *RedisLocker {
	return &RedisLocker{
		locker: locker,
		ttl:    ttl,
		wait:   wait,
		logger: logger,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	lock, err := l.locker.TryAcquire(ctx, key, l.ttl, l.wait)
	if stderrors.Is(err, redis.ErrLockNotAcquired) {
		return nil, errors.Newf(errors.KindConflict, "%s is already being generated", key)
	}
	if err != nil {
		return nil, errors.Newf(errors.KindIO, "failed to lock %s: %w", key, err)
	}
	return holdLock(ctx, lock, key, l.ttl, l.logger), nil
}

// holdLock extends lock until the returned unlock runs, then releases it.
func holdLock(ctx context.Context, lock heldLock, key string, ttl time.Duration, logger ectologger.Logger) func(context.Context) error {
	ctx = context.WithoutCancel(ctx)
	interval := max(ttl/3, time.Millisecond)
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := lock.Extend(ctx, ttl); err != nil {
					logger.WithContext(ctx).WithError(err).WithField("key", key).Error("Lost generation lock, concurrent generation is possible")
					return
				}
			}
		}
	}()

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() {
			close(done)
			<-stopped
		})
		return lock.Release(ctx)
	}
}
