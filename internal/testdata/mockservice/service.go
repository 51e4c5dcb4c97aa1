package mockservice

import (
	"context"

	"beacon-admission-service/internal/model"

	"github.com/stretchr/testify/mock"
)

type AdminService struct {
	mock.Mock
}

func (m *AdminService) CircuitStatus(ctx context.Context, shop string) (model.CircuitStatus, error) {
	args := m.Called(ctx, shop)
	return args.Get(0).(model.CircuitStatus), args.Error(1)
}

func (m *AdminService) TripCircuit(ctx context.Context, shop string) (model.CircuitStatus, error) {
	args := m.Called(ctx, shop)
	return args.Get(0).(model.CircuitStatus), args.Error(1)
}

func (m *AdminService) ResetCircuit(ctx context.Context, shop string) (model.CircuitStatus, error) {
	args := m.Called(ctx, shop)
	return args.Get(0).(model.CircuitStatus), args.Error(1)
}

func (m *AdminService) BlockStatus(ctx context.Context, shop string) (model.BlockStatus, error) {
	args := m.Called(ctx, shop)
	return args.Get(0).(model.BlockStatus), args.Error(1)
}

func (m *AdminService) Unblock(ctx context.Context, shop string) (model.BlockStatus, error) {
	args := m.Called(ctx, shop)
	return args.Get(0).(model.BlockStatus), args.Error(1)
}
