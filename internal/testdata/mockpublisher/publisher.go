package mockpublisher

import (
	"context"

	"beacon-admission-service/internal/model"

	"github.com/stretchr/testify/mock"
)

type Publisher struct {
	mock.Mock
}

func (m *Publisher) Publish(ctx context.Context, jobs ...model.ConversionJob) error {
	args := m.Called(ctx, jobs)
	return args.Error(0)
}

type Metrics struct {
	mock.Mock
}

func (m *Metrics) ConversionPublished(ok bool) {
	m.Called(ok)
}
