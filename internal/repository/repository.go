package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// PgxDB is the subset of *pgxpool.Pool used by the Postgres repositories.
type PgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ PgxDB = (*pgxpool.Pool)(nil)

func nullIfEmpty(val string) interface{} {
	if val == "" {
		return nil
	}
	return val
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
