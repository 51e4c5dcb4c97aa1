package mockpgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

type DB struct {
	mock.Mock
}

func (m *DB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	callArgs := []any{ctx, sql}
	callArgs = append(callArgs, args...)
	mockArgs := m.Called(callArgs...)
	return mockArgs.Get(0).(pgconn.CommandTag), mockArgs.Error(1)
}

func (m *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	callArgs := []any{ctx, sql}
	callArgs = append(callArgs, args...)
	mockArgs := m.Called(callArgs...)
	if v := mockArgs.Get(0); v != nil {
		return v.(pgx.Rows), mockArgs.Error(1)
	}
	return nil, mockArgs.Error(1)
}

func (m *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	callArgs := []any{ctx, sql}
	callArgs = append(callArgs, args...)
	return m.Called(callArgs...).Get(0).(pgx.Row)
}

// Row scans through the Run hook of the "Scan" expectation; dest arrives as []any.
type Row struct {
	mock.Mock
}

var _ pgx.Row = &Row{}

func (m *Row) Scan(dest ...any) error {
	return m.Called(dest).Error(0)
}

// Rows yields Data in order; each element is the column list of one row.
type Rows struct {
	Data    [][]any
	IterErr error
	ScanErr error
	idx     int
	closed  bool
}

var _ pgx.Rows = &Rows{}

func (r *Rows) Close() { r.closed = true }

func (r *Rows) Closed() bool { return r.closed }

func (r *Rows) Err() error { return r.IterErr }

func (r *Rows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *Rows) Next() bool {
	if r.closed || r.idx >= len(r.Data) {
		return false
	}
	r.idx++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.ScanErr != nil {
		return r.ScanErr
	}
	row := r.Data[r.idx-1]
	for i, d := range dest {
		if s, ok := d.(*string); ok {
			*s = row[i].(string)
		}
	}
	return nil
}

func (r *Rows) Values() ([]any, error) { return r.Data[r.idx-1], nil }

func (r *Rows) RawValues() [][]byte { return nil }

func (r *Rows) Conn() *pgx.Conn { return nil }
