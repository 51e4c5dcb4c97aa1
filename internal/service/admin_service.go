package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"beacon-admission-service/internal/anomaly"
	"beacon-admission-service/internal/circuit"
	"beacon-admission-service/internal/model"
)

// ValidationError represents user input issues.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// AdminService exposes operator overrides for circuits and anomaly blocks.
type AdminService interface {
	CircuitStatus(ctx context.Context, shop string) (model.CircuitStatus, error)
	TripCircuit(ctx context.Context, shop string) (model.CircuitStatus, error)
	ResetCircuit(ctx context.Context, shop string) (model.CircuitStatus, error)
	BlockStatus(ctx context.Context, shop string) (model.BlockStatus, error)
	Unblock(ctx context.Context, shop string) (model.BlockStatus, error)
}

type adminService struct {
	breaker *circuit.Breaker
	tracker *anomaly.Tracker
	now     func() time.Time
}

// NewAdminService constructs an AdminService.
func NewAdminService(breaker *circuit.Breaker, tracker *anomaly.Tracker) AdminService {
	return &adminService{breaker: breaker, tracker: tracker, now: time.Now}
}

func (s *adminService) CircuitStatus(ctx context.Context, shop string) (model.CircuitStatus, error) {
	shop, err := normalizeShop(shop)
	if err != nil {
		return model.CircuitStatus{}, err
	}
	state, err := s.breaker.Status(ctx, shop)
	if err != nil {
		return model.CircuitStatus{}, fmt.Errorf("circuit status: %w", err)
	}
	return s.circuitStatus(shop, state), nil
}

func (s *adminService) TripCircuit(ctx context.Context, shop string) (model.CircuitStatus, error) {
	shop, err := normalizeShop(shop)
	if err != nil {
		return model.CircuitStatus{}, err
	}
	state, err := s.breaker.Trip(ctx, shop)
	if err != nil {
		return model.CircuitStatus{}, fmt.Errorf("trip circuit: %w", err)
	}
	logrus.WithField("shop", shop).Warn("circuit tripped by operator")
	return s.circuitStatus(shop, state), nil
}

func (s *adminService) ResetCircuit(ctx context.Context, shop string) (model.CircuitStatus, error) {
	shop, err := normalizeShop(shop)
	if err != nil {
		return model.CircuitStatus{}, err
	}
	if err := s.breaker.Reset(ctx, shop); err != nil {
		return model.CircuitStatus{}, fmt.Errorf("reset circuit: %w", err)
	}
	logrus.WithField("shop", shop).Info("circuit reset by operator")
	return model.CircuitStatus{Shop: shop}, nil
}

func (s *adminService) BlockStatus(ctx context.Context, shop string) (model.BlockStatus, error) {
	shop, err := normalizeShop(shop)
	if err != nil {
		return model.BlockStatus{}, err
	}
	entry, blocked, err := s.tracker.IsBlocked(ctx, shop)
	if err != nil {
		return model.BlockStatus{}, fmt.Errorf("block status: %w", err)
	}
	status := model.BlockStatus{Shop: shop, Blocked: blocked}
	if blocked {
		blockedAt, expiresAt := entry.BlockedAt, entry.ExpiresAt
		status.Reason = string(entry.Reason)
		status.BlockedAt = &blockedAt
		status.ExpiresAt = &expiresAt
	}
	return status, nil
}

func (s *adminService) Unblock(ctx context.Context, shop string) (model.BlockStatus, error) {
	shop, err := normalizeShop(shop)
	if err != nil {
		return model.BlockStatus{}, err
	}
	if err := s.tracker.Unblock(ctx, shop); err != nil {
		return model.BlockStatus{}, fmt.Errorf("unblock: %w", err)
	}
	logrus.WithField("shop", shop).Info("shop unblocked by operator")
	return model.BlockStatus{Shop: shop}, nil
}

func (s *adminService) circuitStatus(shop string, state circuit.State) model.CircuitStatus {
	status := model.CircuitStatus{Shop: shop, Tripped: state.Tripped, Count: state.Count}
	if !state.ResetAt.IsZero() {
		resetAt := state.ResetAt
		status.ResetAt = &resetAt
	}
	if retry := state.RetryAfter(s.now()); retry > 0 {
		status.RetryAfterSeconds = int((retry + time.Second - 1) / time.Second)
	}
	return status
}

func normalizeShop(shop string) (string, error) {
	shop = strings.ToLower(strings.TrimSpace(shop))
	if !shopDomainPattern.MatchString(shop) {
		return "", &ValidationError{Code: "invalid_shop", Message: "shop must be a myshopify.com domain"}
	}
	return shop, nil
}
