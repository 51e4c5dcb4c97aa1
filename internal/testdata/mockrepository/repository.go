package mockrepository

import (
	"context"

	"beacon-admission-service/internal/model"
	"beacon-admission-service/internal/repository"

	"github.com/stretchr/testify/mock"
)

// Interface compliance check
var (
	_ repository.ShopRepository        = &ShopRepository{}
	_ repository.DestinationRepository = &DestinationRepository{}
	_ repository.NonceRepository       = &NonceRepository{}
	_ repository.ReceiptRepository     = &ReceiptRepository{}
	_ repository.ConversionRepository  = &ConversionRepository{}
)

type ShopRepository struct {
	mock.Mock
}

func (m *ShopRepository) ResolveShopForVerification(ctx context.Context, shopDomain string) (*model.Shop, error) {
	args := m.Called(ctx, shopDomain)
	if v := args.Get(0); v != nil {
		return v.(*model.Shop), args.Error(1)
	}
	return nil, args.Error(1)
}

type DestinationRepository struct {
	mock.Mock
}

func (m *DestinationRepository) ListActiveServerSideDestinations(ctx context.Context, shopID string) ([]model.Destination, error) {
	args := m.Called(ctx, shopID)
	if v := args.Get(0); v != nil {
		return v.([]model.Destination), args.Error(1)
	}
	return nil, args.Error(1)
}

type NonceRepository struct {
	mock.Mock
}

func (m *NonceRepository) InsertNonce(ctx context.Context, nonce model.ReplayNonce) (bool, error) {
	args := m.Called(ctx, nonce)
	if fn, ok := args.Get(0).(func(context.Context, model.ReplayNonce) bool); ok {
		return fn(ctx, nonce), args.Error(1)
	}
	return args.Bool(0), args.Error(1)
}

func (m *NonceRepository) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type ReceiptRepository struct {
	mock.Mock
}

func (m *ReceiptRepository) UpsertReceipt(ctx context.Context, receipt model.Receipt) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

func (m *ReceiptRepository) Exists(ctx context.Context, shopID, orderID, eventType string) (bool, error) {
	args := m.Called(ctx, shopID, orderID, eventType)
	return args.Bool(0), args.Error(1)
}

type ConversionRepository struct {
	mock.Mock
}

func (m *ConversionRepository) Upsert(ctx context.Context, record model.ConversionRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *ConversionRepository) UpsertBatch(ctx context.Context, records []model.ConversionRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}
