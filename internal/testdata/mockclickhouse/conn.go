package mockclickhouse

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// Conn mocks a clickhouse connection. Exec and QueryRow expectations take the
// query arguments expanded after ctx and query.
type Conn struct {
	mock.Mock
}

var _ clickhouse.Conn = &Conn{}

func (m *Conn) Exec(ctx context.Context, query string, args ...any) error {
	return m.Called(append([]any{ctx, query}, args...)...).Error(0)
}

func (m *Conn) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	return m.Called(append([]any{ctx, query}, args...)...).Get(0).(driver.Row)
}

func (m *Conn) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	args := m.Called(ctx, query)
	if batch, ok := args.Get(0).(driver.Batch); ok {
		return batch, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Conn) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *Conn) Close() error {
	return m.Called().Error(0)
}

func (m *Conn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	mockArgs := m.Called(append([]any{ctx, query}, args...)...)
	rows, _ := mockArgs.Get(0).(driver.Rows)
	return rows, mockArgs.Error(1)
}

func (m *Conn) Select(ctx context.Context, dest any, query string, args ...any) error {
	return m.Called(append([]any{ctx, dest, query}, args...)...).Error(0)
}

func (m *Conn) AsyncInsert(ctx context.Context, query string, wait bool) error {
	return m.Called(ctx, query, wait).Error(0)
}

func (m *Conn) Contributors() []string {
	return nil
}

func (m *Conn) ServerVersion() (*driver.ServerVersion, error) {
	return &driver.ServerVersion{}, nil
}

func (m *Conn) Stats() driver.Stats {
	return driver.Stats{}
}
