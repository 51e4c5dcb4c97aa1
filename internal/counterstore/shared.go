package counterstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// incrementScript increments a counter and sets its expiry only when the
// window starts, so later hits never extend it.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if count == 1 or ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// SharedOptions configures a Shared store.
type SharedOptions struct {
	KeyPrefix string
	// OpTimeout bounds every redis round trip.
	OpTimeout time.Duration
	// FailoverAfter is the number of consecutive connectivity failures after
	// which the store stops using redis for the rest of the process lifetime.
	FailoverAfter int
	// OnFailover is called once when the store switches to its fallback.
	OnFailover func(err error)
}

// Shared is a redis-backed Store that degrades to a Local fallback.
type Shared struct {
	client   *redis.Client
	fallback *Local
	opts     SharedOptions
	now      func() time.Time

	failures atomic.Int32
	degraded atomic.Bool
}

// NewShared builds a Shared store. fallback serves every call redis cannot.
func NewShared(client *redis.Client, fallback *Local, opts SharedOptions) *Shared {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 200 * time.Millisecond
	}
	if opts.FailoverAfter <= 0 {
		opts.FailoverAfter = 1
	}
	return &Shared{
		client:   client,
		fallback: fallback,
		opts:     opts,
		now:      time.Now,
	}
}

// Degraded reports whether the store has permanently switched to its fallback.
func (s *Shared) Degraded() bool {
	return s.degraded.Load()
}

func (s *Shared) key(k string) string {
	return s.opts.KeyPrefix + k
}

func (s *Shared) Increment(ctx context.Context, key string, window time.Duration) (Entry, error) {
	if s.degraded.Load() {
		return s.fallback.Increment(ctx, key, window)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	ms := window.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	vals, err := incrementScript.Run(opCtx, s.client, []string{s.key(key)}, ms).Int64Slice()
	if err == nil && len(vals) != 2 {
		err = fmt.Errorf("unexpected increment reply of %d values", len(vals))
	}
	if err != nil {
		if ctx.Err() != nil {
			return Entry{}, ctx.Err()
		}
		s.recordFailure(err)
		return s.fallback.Increment(ctx, key, window)
	}

	s.failures.Store(0)
	return Entry{
		Count:   vals[0],
		ResetAt: s.now().Add(time.Duration(vals[1]) * time.Millisecond),
	}, nil
}

func (s *Shared) Get(ctx context.Context, key string) (Entry, bool, error) {
	if s.degraded.Load() {
		return s.fallback.Get(ctx, key)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	var getCmd *redis.StringCmd
	var ttlCmd *redis.DurationCmd
	_, err := s.client.Pipelined(opCtx, func(p redis.Pipeliner) error {
		getCmd = p.Get(opCtx, s.key(key))
		ttlCmd = p.PTTL(opCtx, s.key(key))
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return Entry{}, false, ctx.Err()
		}
		s.recordFailure(err)
		return s.fallback.Get(ctx, key)
	}

	count, err := getCmd.Int64()
	if err != nil {
		return Entry{}, false, fmt.Errorf("parse counter %s: %w", key, err)
	}
	ttl := ttlCmd.Val()
	if ttl < 0 {
		// no expiry or already gone between the two commands
		ttl = 0
	}
	s.failures.Store(0)
	return Entry{Count: count, ResetAt: s.now().Add(ttl)}, true, nil
}

func (s *Shared) Delete(ctx context.Context, key string) error {
	if s.degraded.Load() {
		return s.fallback.Delete(ctx, key)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	if err := s.client.Del(opCtx, s.key(key)).Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.recordFailure(err)
		return s.fallback.Delete(ctx, key)
	}
	s.failures.Store(0)
	return nil
}

// Cleanup sweeps the fallback; redis expires keys on its own.
func (s *Shared) Cleanup(ctx context.Context) (int, error) {
	return s.fallback.Cleanup(ctx)
}

func (s *Shared) recordFailure(err error) {
	n := int(s.failures.Add(1))
	logrus.WithError(err).WithField("consecutive_failures", n).Warn("shared counter store unreachable, serving from local")
	if n < s.opts.FailoverAfter {
		return
	}
	if s.degraded.CompareAndSwap(false, true) {
		logrus.WithError(err).Error("shared counter store disabled for this process, counters are now process-local")
		if s.opts.OnFailover != nil {
			s.opts.OnFailover(err)
		}
	}
}
