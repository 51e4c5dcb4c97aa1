package mockmetrics

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// Metrics records every call. Tests usually register all methods with
// Maybe() and assert on the ones they care about.
type Metrics struct {
	mock.Mock
}

// AllowAll registers permissive expectations for every method.
func (m *Metrics) AllowAll() {
	m.On("Admission", mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("Rejection", mock.Anything).Maybe()
	m.On("ConsentDecision", mock.Anything).Maybe()
	m.On("ReplayDetected").Maybe()
	m.On("TimestampMissing").Maybe()
	m.On("AnomalyBlock", mock.Anything).Maybe()
}

func (m *Metrics) Admission(outcome, stage string, elapsed time.Duration) {
	m.Called(outcome, stage, elapsed)
}

func (m *Metrics) Rejection(reason string) {
	m.Called(reason)
}

func (m *Metrics) ConsentDecision(outcome string) {
	m.Called(outcome)
}

func (m *Metrics) ReplayDetected() {
	m.Called()
}

func (m *Metrics) TimestampMissing() {
	m.Called()
}

func (m *Metrics) AnomalyBlock(reason string) {
	m.Called(reason)
}
