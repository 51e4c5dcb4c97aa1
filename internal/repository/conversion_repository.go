package repository

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"

	"beacon-admission-service/internal/model"
)

// ConversionRepository records the intent to deliver an event to a platform.
type ConversionRepository interface {
	// Upsert writes a single record.
	Upsert(ctx context.Context, record model.ConversionRecord) error

	// UpsertBatch writes records in one ClickHouse batch.
	UpsertBatch(ctx context.Context, records []model.ConversionRecord) error
}

type conversionRepository struct {
	conn clickhouse.Conn
}

// NewConversionRepository creates a ConversionRepository backed by ClickHouse.
func NewConversionRepository(conn clickhouse.Conn) ConversionRepository {
	return &conversionRepository{conn: conn}
}

const conversionColumns = `event_id, shop_id, order_id, platform, event_type, value, currency, trust_level, status, created_at`

const insertConversionQuery = `INSERT INTO conversion_records (` + conversionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const batchConversionQuery = `INSERT INTO conversion_records (` + conversionColumns + `)`

func (r *conversionRepository) Upsert(ctx context.Context, rec model.ConversionRecord) error {
	err := r.conn.Exec(ctx, insertConversionQuery,
		rec.EventID,
		rec.ShopID,
		rec.OrderID,
		rec.Platform,
		rec.EventType,
		rec.Value,
		nullIfEmpty(rec.Currency),
		string(rec.TrustLevel),
		rec.Status,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert conversion record: %w", err)
	}
	return nil
}

func (r *conversionRepository) UpsertBatch(ctx context.Context, records []model.ConversionRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, batchConversionQuery)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, rec := range records {
		if err := batch.Append(
			rec.EventID,
			rec.ShopID,
			rec.OrderID,
			rec.Platform,
			rec.EventType,
			rec.Value,
			nullIfEmpty(rec.Currency),
			string(rec.TrustLevel),
			rec.Status,
			rec.CreatedAt,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
