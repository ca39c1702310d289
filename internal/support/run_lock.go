package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRunLockTTL  = 10 * time.Minute
	renewalTimeout     = 5 * time.Second
	minRenewalInterval = time.Second
	renewalFraction    = 3
)

// ErrRunInProgress is returned when another run already holds the lock.
var ErrRunInProgress = errors.New("support: another run holds the store lock")

var (
	lockCounter atomic.Uint64

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// RunLock is a Redis-held lock that keeps two runs from touching the same
// store pair at once. It is renewed in the background until Release.
type RunLock struct {
	client    *redis.Client
	key       string
	value     string
	ttl       time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	stopRenew chan struct{}
	closeOnce sync.Once
}

// AcquireRunLock takes the lock with a single SET NX attempt. A held lock
// yields ErrRunInProgress; runs are not queued behind each other.
func AcquireRunLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*RunLock, error) {
	if client == nil {
		return nil, errors.New("support: run lock requires a redis client")
	}
	if ttl <= 0 {
		ttl = DefaultRunLockTTL
	}

	value := generateLockValue()
	ok, err := client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("support: acquire run lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrRunInProgress, key)
	}

	lockCtx, cancel := context.WithCancel(ctx)
	lock := &RunLock{
		client:    client,
		key:       key,
		value:     value,
		ttl:       ttl,
		ctx:       lockCtx,
		cancel:    cancel,
		stopRenew: make(chan struct{}),
	}
	go lock.renewLoop()

	log.Debug("run lock: acquired", "key", key)
	return lock, nil
}

// Context is cancelled when the lock is lost or released.
func (l *RunLock) Context() context.Context {
	return l.ctx
}

// Release stops renewal and deletes the key if this run still owns it.
func (l *RunLock) Release() {
	l.closeOnce.Do(func() {
		close(l.stopRenew)
		l.cancel()
		if err := l.releaseLock(); err != nil {
			log.Warn("run lock: release failed", "key", l.key, "error", err)
			return
		}
		log.Debug("run lock: released", "key", l.key)
	})
}

func (l *RunLock) renewLoop() {
	interval := l.ttl / renewalFraction
	if interval < minRenewalInterval {
		interval = minRenewalInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopRenew:
			return
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			if err := l.renewLock(); err != nil {
				log.Warn("run lock: renewal failed", "key", l.key, "error", err)
				l.cancel()
				return
			}
		}
	}
}

func (l *RunLock) renewLock() error {
	ctx, cancel := context.WithTimeout(context.Background(), renewalTimeout)
	defer cancel()

	res, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if updated, ok := res.(int64); ok && updated == 0 {
		return errors.New("lock lost")
	}
	return nil
}

func (l *RunLock) releaseLock() error {
	ctx, cancel := context.WithTimeout(context.Background(), renewalTimeout)
	defer cancel()

	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func generateLockValue() string {
	host, _ := os.Hostname()
	counter := lockCounter.Add(1)
	return fmt.Sprintf("%s-%d-%d-%d", host, os.Getpid(), time.Now().UnixNano(), counter)
}
