// Package circuit guards downstream work from runaway per-shop volume.
package circuit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"beacon-admission-service/internal/counterstore"
	"beacon-admission-service/internal/ratelimit"
)

// Config is the trip threshold per window and how long a trip lasts.
type Config struct {
	Threshold int64
	Window    time.Duration
	Cooldown  time.Duration
}

// State is the circuit of one shop as observed by a call.
type State struct {
	Tripped bool
	Count   int64
	ResetAt time.Time
}

// RetryAfter is how long a tripped circuit stays open from now.
func (s State) RetryAfter(now time.Time) time.Duration {
	if !s.Tripped || !s.ResetAt.After(now) {
		return 0
	}
	return s.ResetAt.Sub(now)
}

// Breaker keeps per-shop circuits in a counter store: a request counter for
// the closed state and a trip marker whose window is the cooldown.
type Breaker struct {
	store counterstore.Store
	cfg   Config
}

// New builds a Breaker.
func New(store counterstore.Store, cfg Config) *Breaker {
	return &Breaker{store: store, cfg: cfg}
}

func countKey(shop string) string {
	return "cb:count:" + ratelimit.SanitizeKeyPart(shop)
}

func tripKey(shop string) string {
	return "cb:trip:" + ratelimit.SanitizeKeyPart(shop)
}

// Increment records one request for shop. While tripped the call changes
// nothing and reports the open circuit.
func (b *Breaker) Increment(ctx context.Context, shop string) (State, error) {
	trip, tripped, err := b.store.Get(ctx, tripKey(shop))
	if err != nil {
		return State{}, fmt.Errorf("read circuit: %w", err)
	}
	if tripped {
		return State{Tripped: true, ResetAt: trip.ResetAt}, nil
	}

	entry, err := b.store.Increment(ctx, countKey(shop), b.cfg.Window)
	if err != nil {
		return State{}, fmt.Errorf("increment circuit: %w", err)
	}
	if entry.Count <= b.cfg.Threshold {
		return State{Count: entry.Count, ResetAt: entry.ResetAt}, nil
	}

	state, err := b.open(ctx, shop)
	if err != nil {
		return State{}, err
	}
	state.Count = entry.Count
	logrus.WithFields(logrus.Fields{
		"shop":      shop,
		"count":     entry.Count,
		"threshold": b.cfg.Threshold,
		"reset_at":  state.ResetAt,
	}).Warn("circuit breaker tripped")
	return state, nil
}

// Trip opens the circuit of shop for one cooldown. An open circuit keeps its
// original reset time.
func (b *Breaker) Trip(ctx context.Context, shop string) (State, error) {
	state, err := b.open(ctx, shop)
	if err != nil {
		return State{}, err
	}
	logrus.WithFields(logrus.Fields{"shop": shop, "reset_at": state.ResetAt}).Info("circuit breaker tripped manually")
	return state, nil
}

// Reset closes the circuit of shop and clears its request counter.
func (b *Breaker) Reset(ctx context.Context, shop string) error {
	if err := b.store.Delete(ctx, tripKey(shop)); err != nil {
		return fmt.Errorf("reset circuit: %w", err)
	}
	if err := b.store.Delete(ctx, countKey(shop)); err != nil {
		return fmt.Errorf("reset circuit counter: %w", err)
	}
	logrus.WithField("shop", shop).Info("circuit breaker reset")
	return nil
}

// Status reads the circuit of shop without counting a request.
func (b *Breaker) Status(ctx context.Context, shop string) (State, error) {
	trip, tripped, err := b.store.Get(ctx, tripKey(shop))
	if err != nil {
		return State{}, fmt.Errorf("read circuit: %w", err)
	}
	if tripped {
		return State{Tripped: true, ResetAt: trip.ResetAt}, nil
	}
	entry, ok, err := b.store.Get(ctx, countKey(shop))
	if err != nil {
		return State{}, fmt.Errorf("read circuit counter: %w", err)
	}
	if !ok {
		return State{}, nil
	}
	return State{Count: entry.Count, ResetAt: entry.ResetAt}, nil
}

func (b *Breaker) open(ctx context.Context, shop string) (State, error) {
	trip, err := b.store.Increment(ctx, tripKey(shop), b.cfg.Cooldown)
	if err != nil {
		return State{}, fmt.Errorf("trip circuit: %w", err)
	}
	// the next window after the cooldown starts from zero
	if err := b.store.Delete(ctx, countKey(shop)); err != nil {
		logrus.WithError(err).WithField("shop", shop).Warn("failed to clear circuit counter")
	}
	return State{Tripped: true, ResetAt: trip.ResetAt}, nil
}
