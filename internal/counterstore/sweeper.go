package counterstore

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// StartSweeper calls store.Cleanup every interval until ctx is done.
// The returned channel is closed once the sweeper has stopped.
func StartSweeper(ctx context.Context, store Store, interval time.Duration) <-chan struct{} {
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
				removed, err := store.Cleanup(ctx)
				if err != nil {
					logrus.WithError(err).Warn("counter sweep failed")
					continue
				}
				if removed > 0 {
					logrus.WithField("removed", removed).Debug("expired counters swept")
				}
			}
		}
	}()
	return done
}
