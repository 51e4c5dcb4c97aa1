package mockpipeline

import (
	"context"

	"beacon-admission-service/internal/pipeline"

	"github.com/stretchr/testify/mock"
)

type Pipeline struct {
	mock.Mock
}

func (m *Pipeline) Handle(ctx context.Context, req pipeline.Request) pipeline.Response {
	args := m.Called(ctx, req)
	return args.Get(0).(pipeline.Response)
}
