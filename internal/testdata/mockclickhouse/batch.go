package mockclickhouse

import (
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// Batch mocks a prepared insert batch. Append expectations take the row
// values expanded.
type Batch struct {
	mock.Mock
	sent bool
}

var _ driver.Batch = &Batch{}

func (m *Batch) Append(v ...any) error {
	return m.Called(v...).Error(0)
}

func (m *Batch) AppendStruct(v any) error {
	return m.Called(v).Error(0)
}

func (m *Batch) Send() error {
	err := m.Called().Error(0)
	m.sent = err == nil
	return err
}

func (m *Batch) Abort() error {
	return m.Called().Error(0)
}

func (m *Batch) Flush() error {
	return m.Called().Error(0)
}

func (m *Batch) IsSent() bool {
	return m.sent
}

func (m *Batch) Column(int) driver.BatchColumn {
	return nil
}
