package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"distledger/internal/domain"
)

// Redis obtains keys through redislock so several server instances serialize
// on the same ledger keys.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
	logger *logrus.Logger
}

func NewRedis(client redis.UniversalClient, ttl time.Duration, logger *logrus.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		client: redislock.New(client),
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		logger: logger,
	}
}

func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]*redislock.Lock, 0, len(keys))
	opts := &redislock.Options{RetryStrategy: redislock.LinearBackoff(r.retry)}

	for _, key := range keys {
		l, err := r.client.Obtain(ctx, "distledger:lock:"+key, r.ttl, opts)
		if err != nil {
			r.releaseAll(held)
			if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, fmt.Errorf("%w: could not obtain lock for %s", domain.ErrConflict, key)
			}
			return nil, fmt.Errorf("obtain lock %s: %w", key, err)
		}
		held = append(held, l)
	}

	var once sync.Once
	return func() { once.Do(func() { r.releaseAll(held) }) }, nil
}

func (r *Redis) releaseAll(held []*redislock.Lock) {
	// Release must not depend on the caller's request context, which may
	// already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := len(held) - 1; i >= 0; i-- {
		if err := held[i].Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			if r.logger != nil {
				r.logger.WithFields(logrus.Fields{
					"key": held[i].Key(),
				}).Warn("failed to release redis lock: " + err.Error())
			}
		}
	}
}
