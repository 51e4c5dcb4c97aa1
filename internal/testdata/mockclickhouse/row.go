package mockclickhouse

import (
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// Row scans through the Run hook of the "Scan" expectation; dest arrives as []any.
type Row struct {
	mock.Mock
}

var _ driver.Row = &Row{}

func (m *Row) Err() error {
	return m.Called().Error(0)
}

func (m *Row) Scan(dest ...any) error {
	return m.Called(dest).Error(0)
}

func (m *Row) ScanStruct(dest any) error {
	return m.Called(dest).Error(0)
}
