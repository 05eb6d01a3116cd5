// Package lock provides the period guard that keeps pipeline invocations from overlapping.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when another invocation holds the guard.
var ErrBusy = errors.New("pipeline busy")

// DefaultKey names the Redis key guarding the pipeline.
const DefaultKey = "forumwatch:pipeline"

// Release frees a held guard.
type Release func(ctx context.Context) error

// Guard admits a single holder at a time.
type Guard interface {
	// TryAcquire returns ErrBusy instead of blocking when the guard is held.
	TryAcquire(ctx context.Context) (Release, error)
}

// Local is an in-process guard.
type Local struct {
	mu sync.Mutex
}

// NewLocal builds an in-process guard.
func NewLocal() *Local { return &Local{} }

// TryAcquire implements Guard.
func (l *Local) TryAcquire(context.Context) (Release, error) {
	if !l.mu.TryLock() {
		return nil, ErrBusy
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, nil
}

// renewalDivisor sets how often a held Redis guard is extended, as a fraction of its TTL.
const renewalDivisor = 3

// Redis guards across processes with SET NX plus a per-holder token. While held, the key's TTL is
// extended every ttl/3, so a run longer than the TTL keeps the guard; a crashed holder stops
// renewing and the key expires.
type Redis struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// NewRedis builds a guard on key. The TTL bounds how long a crashed holder blocks others.
func NewRedis(client redis.UniversalClient, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// TryAcquire implements Guard.
func (r *Redis) TryAcquire(ctx context.Context) (Release, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go r.renew(context.WithoutCancel(ctx), token, done, stopped)

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() {
			close(done)
			<-stopped
		})
		if err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil {
			return fmt.Errorf("release lock: %w", err)
		}
		return nil
	}, nil
}

// renew extends the key until done closes or the token no longer owns it.
func (r *Redis) renew(ctx context.Context, token string, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(r.ttl / renewalDivisor)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			held, err := extendScript.Run(ctx, r.client, []string{r.key}, token, r.ttl.Milliseconds()).Int()
			if err == nil && held == 0 {
				return
			}
		}
	}
}
