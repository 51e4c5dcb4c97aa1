package db

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jackc/pgx/v5/pgconn"
)

// RunMigrations ensures the ClickHouse tables exist. This keeps the service
// self-contained without an external migration step.
func RunMigrations(ctx context.Context, conn clickhouse.Conn) error {
	for _, stmt := range clickhouseMigrations {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

// RunPostgresMigrations creates the tables this service owns in Postgres.
// Shops and destinations belong to the merchant app and are only read.
func RunPostgresMigrations(ctx context.Context, db Execer) error {
	for _, stmt := range postgresMigrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply postgres migrations: %w", err)
		}
	}
	return nil
}

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var postgresMigrations = []string{`
CREATE TABLE IF NOT EXISTS replay_nonces
(
	shop_id    TEXT        NOT NULL,
	nonce      TEXT        NOT NULL,
	event_type TEXT        NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (shop_id, nonce, event_type)
);
`, `
CREATE INDEX IF NOT EXISTS replay_nonces_expires_at_idx ON replay_nonces (expires_at);
`}

var clickhouseMigrations = []string{`
CREATE TABLE IF NOT EXISTS purchase_receipts
(
	event_id             String,
	shop_id              String,
	order_id             String,
	event_type           LowCardinality(String),
	checkout_token       Nullable(String),
	has_order_id         Bool,
	trust_level          LowCardinality(String),
	untrusted_reason     Nullable(String),
	used_previous_secret Bool,
	origin_host          String,
	value                Nullable(Float64),
	currency             Nullable(String),
	consent_marketing    Nullable(Bool),
	consent_analytics    Nullable(Bool),
	sale_of_data_opt_out Bool,
	client_ts            DateTime64(3, 'UTC'),
	received_at          DateTime64(3, 'UTC')
)
ENGINE = ReplacingMergeTree(received_at)
PARTITION BY toYYYYMM(received_at)
ORDER BY (shop_id, event_type, order_id)
SETTINGS index_granularity = 8192;
`, `
CREATE TABLE IF NOT EXISTS conversion_records
(
	event_id    String,
	shop_id     String,
	order_id    String,
	platform    LowCardinality(String),
	event_type  LowCardinality(String),
	value       Nullable(Float64),
	currency    Nullable(String),
	trust_level LowCardinality(String),
	status      LowCardinality(String),
	created_at  DateTime64(3, 'UTC')
)
ENGINE = ReplacingMergeTree(created_at)
PARTITION BY toYYYYMM(created_at)
ORDER BY (shop_id, order_id, platform, event_type)
SETTINGS index_granularity = 8192;
`}
