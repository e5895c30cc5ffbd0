package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// DefaultLockWait bounds how long a booking queues behind another booking of
// the same provider day.
const DefaultLockWait = 3 * time.Second

const (
	minRetryBackoff = 10 * time.Millisecond
	maxRetryBackoff = 200 * time.Millisecond
)

// Locker guards the booking critical section of one provider day. Acquisition
// waits for the current holder; ErrLockNotAcquired is returned only when the
// wait bound elapses first.
type Locker interface {
	WithSlotLock(ctx context.Context, providerID uuid.UUID, date string, fn func(ctx context.Context) error) error
}

func slotKey(providerID uuid.UUID, date string) string {
	return fmt.Sprintf("lock:slot:%s:%s", providerID.String(), date)
}

// waitResult turns an expired wait into ErrLockNotAcquired unless the caller's
// own context is what ended it.
func waitResult(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	return ErrLockNotAcquired
}

type redisSlotLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisSlotLocker creates a locker that uses a per provider/date Redis key.
// A held key is polled with exponential backoff for up to wait.
func NewRedisSlotLocker(client redis.UniversalClient, ttl, wait time.Duration) Locker {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, providerID uuid.UUID, date string, fn func(ctx context.Context) error) error {
	key := slotKey(providerID, date)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// Release even if the caller's context was cancelled meanwhile.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisSlotLocker) acquire(ctx context.Context, key, token string) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	backoff := minRetryBackoff
	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil {
				return waitResult(ctx)
			}
			return fmt.Errorf("acquire slot lock: %w", err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			return waitResult(ctx)
		case <-timer.C:
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

// localSlotLocker serializes bookings inside one process. It is used when the
// service runs on a single node or without Redis.
type localSlotLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
	wait  time.Duration
}

// keyLock is a one-slot semaphore shared by everyone queued on a key. refs
// counts holders and waiters so the entry can be dropped when idle.
type keyLock struct {
	sem  chan struct{}
	refs int
}

func NewLocalSlotLocker(wait time.Duration) Locker {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &localSlotLocker{
		locks: make(map[string]*keyLock),
		wait:  wait,
	}
}

func (l *localSlotLocker) WithSlotLock(ctx context.Context, providerID uuid.UUID, date string, fn func(ctx context.Context) error) error {
	key := slotKey(providerID, date)

	kl := l.ref(key)
	defer l.unref(key, kl)

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	select {
	case kl.sem <- struct{}{}:
	case <-waitCtx.Done():
		return waitResult(ctx)
	}
	defer func() { <-kl.sem }()

	return fn(ctx)
}

func (l *localSlotLocker) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *localSlotLocker) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
