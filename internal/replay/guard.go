// Package replay rejects beacons that repeat an already admitted
// (identifier, timestamp) pair.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"beacon-admission-service/internal/model"
	"beacon-admission-service/internal/repository"
)

// BuildNonce derives the nonce for an order or checkout identifier and the
// client-reported timestamp.
func BuildNonce(identifier string, timestampMs int64) string {
	sum := sha256.Sum256([]byte(identifier + ":" + strconv.FormatInt(timestampMs, 10)))
	return hex.EncodeToString(sum[:])
}

// Guard records nonces and detects replays. The uniqueness check is the
// repository's atomic insert, never a separate lookup.
type Guard struct {
	repo repository.NonceRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewGuard builds a Guard whose nonces live for ttl.
func NewGuard(repo repository.NonceRepository, ttl time.Duration) *Guard {
	return &Guard{repo: repo, ttl: ttl, now: time.Now}
}

// Check stores the nonce for the event and reports whether it was already
// live. An error means the check could not be made; callers fail open.
func (g *Guard) Check(ctx context.Context, shopID, eventType, identifier string, timestampMs int64) (bool, error) {
	nonce := model.ReplayNonce{
		ShopID:    shopID,
		Nonce:     BuildNonce(identifier, timestampMs),
		EventType: eventType,
		ExpiresAt: g.now().Add(g.ttl),
	}

	inserted, err := g.repo.InsertNonce(ctx, nonce)
	if err != nil {
		return false, fmt.Errorf("replay check: %w", err)
	}
	return !inserted, nil
}

// StartSweeper deletes expired nonces every interval until ctx is done.
func (g *Guard) StartSweeper(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := g.repo.DeleteExpired(ctx)
				if err != nil {
					logrus.WithError(err).Warn("nonce sweep failed")
					continue
				}
				if removed > 0 {
					logrus.WithField("removed", removed).Debug("expired nonces swept")
				}
			}
		}
	}()
	return done
}
