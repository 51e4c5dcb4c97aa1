package mockworker

import (
	"beacon-admission-service/internal/model"
	"beacon-admission-service/internal/service"

	"github.com/stretchr/testify/mock"
)

var _ service.ConversionWorker = &Worker{}

type Worker struct {
	mock.Mock
}

func (m *Worker) Enqueue(records ...model.ConversionRecord) {
	m.Called(records)
}

func (m *Worker) Shutdown() {
	m.Called()
}
