package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"beacon-admission-service/internal/testdata/mockclickhouse"
	"beacon-admission-service/internal/testdata/mockpgx"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations(t *testing.T) {
	conn := &mockclickhouse.Conn{}
	for _, stmt := range clickhouseMigrations {
		conn.On("Exec", mock.Anything, stmt).Return(nil).Once()
	}

	require.NoError(t, RunMigrations(context.Background(), conn))
	conn.AssertExpectations(t)
}

func TestRunMigrations_StopsOnError(t *testing.T) {
	conn := &mockclickhouse.Conn{}
	expectedErr := errors.New("readonly")
	conn.On("Exec", mock.Anything, clickhouseMigrations[0]).Return(expectedErr).Once()

	err := RunMigrations(context.Background(), conn)
	require.ErrorIs(t, err, expectedErr)
	conn.AssertNumberOfCalls(t, "Exec", 1)
}

func TestRunPostgresMigrations(t *testing.T) {
	pg := &mockpgx.DB{}
	for _, stmt := range postgresMigrations {
		pg.On("Exec", mock.Anything, stmt).Return(pgconn.NewCommandTag("CREATE TABLE"), nil).Once()
	}

	require.NoError(t, RunPostgresMigrations(context.Background(), pg))
	pg.AssertExpectations(t)
	require.True(t, strings.Contains(postgresMigrations[0], "PRIMARY KEY (shop_id, nonce, event_type)"))
}
