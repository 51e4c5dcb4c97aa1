package service

import (
	"context"
	"testing"
	"time"

	"beacon-admission-service/internal/anomaly"
	"beacon-admission-service/internal/circuit"
	"beacon-admission-service/internal/counterstore"

	"github.com/stretchr/testify/suite"
)

type AdminServiceTestSuite struct {
	suite.Suite
	clock   time.Time
	tracker *anomaly.Tracker
	service *adminService
}

func TestAdminServiceSuite(t *testing.T) {
	suite.Run(t, new(AdminServiceTestSuite))
}

func (s *AdminServiceTestSuite) SetupTest() {
	s.clock = time.Unix(1_700_000_000, 0)
	now := func() time.Time { return s.clock }
	store := counterstore.NewLocalWithClock(100, now)
	breaker := circuit.New(store, circuit.Config{Threshold: 10, Window: time.Minute, Cooldown: 5 * time.Minute})
	s.tracker = anomaly.NewTracker(store, anomaly.Config{
		Window:        5 * time.Minute,
		BlockCooldown: 10 * time.Minute,
		Thresholds:    anomaly.Thresholds{InvalidKey: 1, InvalidOrigin: 5, InvalidTimestamp: 5, Composite: 10},
	})
	s.service = NewAdminService(breaker, s.tracker).(*adminService)
	s.service.now = now
}

func (s *AdminServiceTestSuite) TestRejectsInvalidShop() {
	for _, shop := range []string{"", "example.com", "a.b.myshopify.com", "-x.myshopify.com"} {
		_, err := s.service.CircuitStatus(context.Background(), shop)
		var verr *ValidationError
		s.Require().ErrorAs(err, &verr, shop)
		s.Equal("invalid_shop", verr.Code)
	}
}

func (s *AdminServiceTestSuite) TestTripStatusReset() {
	ctx := context.Background()

	status, err := s.service.TripCircuit(ctx, " Demo.MyShopify.com ")
	s.Require().NoError(err)
	s.Equal("demo.myshopify.com", status.Shop)
	s.True(status.Tripped)
	s.Equal(300, status.RetryAfterSeconds)
	s.Require().NotNil(status.ResetAt)

	s.clock = s.clock.Add(time.Minute)
	status, err = s.service.CircuitStatus(ctx, "demo.myshopify.com")
	s.Require().NoError(err)
	s.True(status.Tripped)
	s.Equal(240, status.RetryAfterSeconds)

	status, err = s.service.ResetCircuit(ctx, "demo.myshopify.com")
	s.Require().NoError(err)
	s.False(status.Tripped)

	status, err = s.service.CircuitStatus(ctx, "demo.myshopify.com")
	s.Require().NoError(err)
	s.False(status.Tripped)
	s.Zero(status.RetryAfterSeconds)
}

func (s *AdminServiceTestSuite) TestBlockStatusAndUnblock() {
	ctx := context.Background()

	status, err := s.service.BlockStatus(ctx, "demo.myshopify.com")
	s.Require().NoError(err)
	s.False(status.Blocked)
	s.Nil(status.ExpiresAt)

	_, err = s.tracker.Record(ctx, "demo.myshopify.com", anomaly.ReasonInvalidKey)
	s.Require().NoError(err)

	status, err = s.service.BlockStatus(ctx, "demo.myshopify.com")
	s.Require().NoError(err)
	s.True(status.Blocked)
	s.Equal(string(anomaly.ReasonInvalidKey), status.Reason)
	s.Require().NotNil(status.ExpiresAt)
	s.Equal(s.clock.Add(10*time.Minute), *status.ExpiresAt)

	_, err = s.service.Unblock(ctx, "demo.myshopify.com")
	s.Require().NoError(err)

	status, err = s.service.BlockStatus(ctx, "demo.myshopify.com")
	s.Require().NoError(err)
	s.False(status.Blocked)
}
