package counterstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type LocalStoreTestSuite struct {
	suite.Suite
	store *Local
	clock time.Time
}

func TestLocalStoreSuite(t *testing.T) {
	suite.Run(t, new(LocalStoreTestSuite))
}

func (s *LocalStoreTestSuite) SetupTest() {
	s.clock = time.Unix(1_700_000_000, 0)
	s.store = NewLocal(10)
	s.store.now = func() time.Time { return s.clock }
}

func (s *LocalStoreTestSuite) advance(d time.Duration) {
	s.clock = s.clock.Add(d)
}

func (s *LocalStoreTestSuite) TestIncrement_CountsWithinWindow() {
	ctx := context.Background()

	first, err := s.store.Increment(ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.advance(10 * time.Second)
	second, _ := s.store.Increment(ctx, "k", time.Minute)
	third, _ := s.store.Increment(ctx, "k", time.Minute)

	s.Equal(int64(1), first.Count)
	s.Equal(int64(2), second.Count)
	s.Equal(int64(3), third.Count)
	s.Equal(first.ResetAt, third.ResetAt, "later hits must not extend the window")
}

func (s *LocalStoreTestSuite) TestIncrement_RestartsAfterWindow() {
	ctx := context.Background()

	_, _ = s.store.Increment(ctx, "k", time.Minute)
	_, _ = s.store.Increment(ctx, "k", time.Minute)
	s.advance(time.Minute)

	entry, err := s.store.Increment(ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Equal(int64(1), entry.Count)
	s.Equal(s.clock.Add(time.Minute), entry.ResetAt)
}

func (s *LocalStoreTestSuite) TestGet_PassiveExpiry() {
	ctx := context.Background()

	_, _ = s.store.Increment(ctx, "k", time.Second)
	entry, ok, err := s.store.Get(ctx, "k")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(int64(1), entry.Count)

	s.advance(2 * time.Second)
	_, ok, _ = s.store.Get(ctx, "k")
	s.False(ok)
	s.Equal(0, s.store.Len())
}

func (s *LocalStoreTestSuite) TestDelete() {
	ctx := context.Background()

	_, _ = s.store.Increment(ctx, "k", time.Minute)
	s.Require().NoError(s.store.Delete(ctx, "k"))

	_, ok, _ := s.store.Get(ctx, "k")
	s.False(ok)
}

func (s *LocalStoreTestSuite) TestCleanup_RemovesOnlyExpired() {
	ctx := context.Background()

	_, _ = s.store.Increment(ctx, "short", time.Second)
	_, _ = s.store.Increment(ctx, "long", time.Hour)
	s.advance(time.Minute)

	removed, err := s.store.Cleanup(ctx)
	s.Require().NoError(err)
	s.Equal(1, removed)
	s.Equal(1, s.store.Len())
}

func (s *LocalStoreTestSuite) TestEviction_PrefersExpiredEntries() {
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _ = s.store.Increment(ctx, fmt.Sprintf("old-%d", i), time.Second)
	}
	s.advance(5 * time.Second)

	_, _ = s.store.Increment(ctx, "fresh", time.Minute)

	s.Equal(1, s.store.Len())
}

func (s *LocalStoreTestSuite) TestEviction_DropsSoonestExpiringDownToLoadFactor() {
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, _ = s.store.Increment(ctx, fmt.Sprintf("k-%d", i), time.Duration(i+1)*time.Minute)
	}

	_, _ = s.store.Increment(ctx, "new", time.Hour)

	s.Equal(8, s.store.Len(), "7 survivors plus the new key")
	for i := 0; i < 3; i++ {
		_, ok, _ := s.store.Get(ctx, fmt.Sprintf("k-%d", i))
		s.False(ok, "k-%d expires soonest and should be evicted", i)
	}
	_, ok, _ := s.store.Get(ctx, "k-9")
	s.True(ok)
}

func (s *LocalStoreTestSuite) TestIncrement_ConcurrentHitsNeverDoubleCount() {
	ctx := context.Background()
	const workers = 200

	seen := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, _ := s.store.Increment(ctx, "hot", time.Minute)
			seen <- entry.Count
		}()
	}
	wg.Wait()
	close(seen)

	counts := map[int64]bool{}
	for c := range seen {
		s.False(counts[c], "count %d observed twice", c)
		counts[c] = true
	}
	s.Len(counts, workers)
}
