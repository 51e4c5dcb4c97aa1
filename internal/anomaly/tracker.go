// Package anomaly counts rejected beacons per shop and blocks shops whose
// rejections cross a threshold.
package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"beacon-admission-service/internal/counterstore"
	"beacon-admission-service/internal/ratelimit"
)

// Reason is why a beacon was counted as anomalous.
type Reason string

const (
	ReasonInvalidKey       Reason = "invalid_key"
	ReasonInvalidOrigin    Reason = "invalid_origin"
	ReasonInvalidTimestamp Reason = "invalid_timestamp"
	// ReasonComposite is only used as a block reason.
	ReasonComposite Reason = "composite"
)

var trackedReasons = []Reason{ReasonInvalidKey, ReasonInvalidOrigin, ReasonInvalidTimestamp}

var blockReasons = []Reason{ReasonInvalidOrigin, ReasonInvalidKey, ReasonInvalidTimestamp, ReasonComposite}

// Thresholds are the counts at which a shop gets blocked. Origin violations
// use a lower threshold than key or timestamp ones.
type Thresholds struct {
	InvalidKey       int64
	InvalidOrigin    int64
	InvalidTimestamp int64
	Composite        int64
}

func (t Thresholds) forReason(r Reason) int64 {
	switch r {
	case ReasonInvalidKey:
		return t.InvalidKey
	case ReasonInvalidOrigin:
		return t.InvalidOrigin
	case ReasonInvalidTimestamp:
		return t.InvalidTimestamp
	default:
		return t.Composite
	}
}

type Config struct {
	Window        time.Duration
	BlockCooldown time.Duration
	Thresholds    Thresholds
}

// BlockEntry is a shop under a temporary hard block.
type BlockEntry struct {
	Shop      string    `json:"shop"`
	Reason    Reason    `json:"reason"`
	BlockedAt time.Time `json:"blockedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Result describes what one Record call did.
type Result struct {
	// Skipped is set when the shop was already blocked and nothing was counted.
	Skipped      bool
	Blocked      bool
	NewlyBlocked bool
	Block        BlockEntry
	Count        int64
	Total        int64
}

// Tracker keeps reason counters and the blocklist in a counter store.
type Tracker struct {
	store counterstore.Store
	cfg   Config
}

// NewTracker builds a Tracker.
func NewTracker(store counterstore.Store, cfg Config) *Tracker {
	return &Tracker{store: store, cfg: cfg}
}

func counterKey(shop string, r Reason) string {
	return "anomaly:" + string(r) + ":" + ratelimit.SanitizeKeyPart(shop)
}

func blockKey(shop string) string {
	return "anomaly:block:" + ratelimit.SanitizeKeyPart(shop)
}

func blockReasonKey(shop string, r Reason) string {
	return "anomaly:block:" + ratelimit.SanitizeKeyPart(shop) + ":" + string(r)
}

// IsBlocked returns the active block of shop, if any.
func (t *Tracker) IsBlocked(ctx context.Context, shop string) (BlockEntry, bool, error) {
	entry, ok, err := t.store.Get(ctx, blockKey(shop))
	if err != nil {
		return BlockEntry{}, false, fmt.Errorf("read block: %w", err)
	}
	if !ok {
		return BlockEntry{}, false, nil
	}
	return BlockEntry{
		Shop:      shop,
		Reason:    t.blockReason(ctx, shop),
		BlockedAt: entry.ResetAt.Add(-t.cfg.BlockCooldown),
		ExpiresAt: entry.ResetAt,
	}, true, nil
}

func (t *Tracker) blockReason(ctx context.Context, shop string) Reason {
	for _, r := range blockReasons {
		if _, ok, err := t.store.Get(ctx, blockReasonKey(shop, r)); err == nil && ok {
			return r
		}
	}
	return ""
}

// Record counts one anomaly of reason r for shop. A blocked shop is left
// untouched so a sustained attack cannot grow counters or logs.
func (t *Tracker) Record(ctx context.Context, shop string, r Reason) (Result, error) {
	if block, blocked, err := t.IsBlocked(ctx, shop); err != nil {
		return Result{}, err
	} else if blocked {
		return Result{Skipped: true, Blocked: true, Block: block}, nil
	}

	entry, err := t.store.Increment(ctx, counterKey(shop, r), t.cfg.Window)
	if err != nil {
		return Result{}, fmt.Errorf("count anomaly: %w", err)
	}

	res := Result{Count: entry.Count, Total: entry.Count}
	for _, other := range trackedReasons {
		if other == r {
			continue
		}
		if o, ok, err := t.store.Get(ctx, counterKey(shop, other)); err == nil && ok {
			res.Total += o.Count
		}
	}

	var crossed Reason
	switch {
	case res.Count >= t.cfg.Thresholds.forReason(r):
		crossed = r
	case res.Total >= t.cfg.Thresholds.Composite:
		crossed = ReasonComposite
	default:
		return res, nil
	}

	return t.block(ctx, shop, crossed, res)
}

func (t *Tracker) block(ctx context.Context, shop string, reason Reason, res Result) (Result, error) {
	// The reason goes in before the block key becomes visible.
	if _, err := t.store.Increment(ctx, blockReasonKey(shop, reason), t.cfg.BlockCooldown); err != nil {
		logrus.WithError(err).WithField("shop", shop).Warn("failed to store block reason")
	}

	entry, err := t.store.Increment(ctx, blockKey(shop), t.cfg.BlockCooldown)
	if err != nil {
		return res, fmt.Errorf("create block: %w", err)
	}
	res.Blocked = true

	if entry.Count > 1 {
		// a concurrent caller created the block first
		existing := t.blockReason(ctx, shop)
		if existing == "" {
			existing = reason
		}
		res.Block = BlockEntry{
			Shop:      shop,
			Reason:    existing,
			BlockedAt: entry.ResetAt.Add(-t.cfg.BlockCooldown),
			ExpiresAt: entry.ResetAt,
		}
		return res, nil
	}

	for _, r := range trackedReasons {
		_ = t.store.Delete(ctx, counterKey(shop, r))
	}

	res.NewlyBlocked = true
	res.Block = BlockEntry{
		Shop:      shop,
		Reason:    reason,
		BlockedAt: entry.ResetAt.Add(-t.cfg.BlockCooldown),
		ExpiresAt: entry.ResetAt,
	}
	logrus.WithFields(logrus.Fields{
		"shop":       shop,
		"reason":     reason,
		"count":      res.Count,
		"total":      res.Total,
		"expires_at": entry.ResetAt,
	}).Warn("shop blocked after repeated anomalies")
	return res, nil
}

// Unblock lifts the block of shop and clears its counters.
func (t *Tracker) Unblock(ctx context.Context, shop string) error {
	if err := t.store.Delete(ctx, blockKey(shop)); err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	for _, r := range blockReasons {
		_ = t.store.Delete(ctx, blockReasonKey(shop, r))
	}
	for _, r := range trackedReasons {
		_ = t.store.Delete(ctx, counterKey(shop, r))
	}
	logrus.WithField("shop", shop).Info("shop block lifted")
	return nil
}
