package mockkafka

import (
	"context"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
)

type Writer struct {
	mock.Mock
}

func (m *Writer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *Writer) Close() error {
	args := m.Called()
	return args.Error(0)
}
