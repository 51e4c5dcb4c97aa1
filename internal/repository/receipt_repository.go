package repository

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"

	"beacon-admission-service/internal/model"
)

// ReceiptRepository records admitted purchase beacons.
type ReceiptRepository interface {
	// UpsertReceipt is idempotent per (shop, order, event type).
	UpsertReceipt(ctx context.Context, receipt model.Receipt) error

	// Exists reports whether a receipt was already recorded for the order.
	Exists(ctx context.Context, shopID, orderID, eventType string) (bool, error)
}

type receiptRepository struct {
	conn clickhouse.Conn
}

// NewReceiptRepository creates a ReceiptRepository backed by ClickHouse.
func NewReceiptRepository(conn clickhouse.Conn) ReceiptRepository {
	return &receiptRepository{conn: conn}
}

const insertReceiptQuery = `
	INSERT INTO purchase_receipts (
		event_id, shop_id, order_id, event_type, checkout_token, has_order_id,
		trust_level, untrusted_reason, used_previous_secret, origin_host,
		value, currency, consent_marketing, consent_analytics, sale_of_data_opt_out,
		client_ts, received_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const receiptExistsQuery = `
	SELECT count()
	FROM purchase_receipts FINAL
	WHERE shop_id = ? AND order_id = ? AND event_type = ?
`

func (r *receiptRepository) UpsertReceipt(ctx context.Context, rc model.Receipt) error {
	err := r.conn.Exec(ctx, insertReceiptQuery,
		rc.EventID,
		rc.ShopID,
		rc.OrderID,
		rc.EventType,
		nullIfEmpty(rc.CheckoutToken),
		rc.HasOrderID,
		string(rc.TrustLevel),
		nullIfEmpty(rc.UntrustedReason),
		rc.UsedPreviousSecret,
		rc.OriginHost,
		rc.Value,
		nullIfEmpty(rc.Currency),
		rc.ConsentMarketing,
		rc.ConsentAnalytics,
		rc.SaleOfDataOptOut,
		rc.ClientTimestamp,
		rc.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert receipt: %w", err)
	}
	return nil
}

func (r *receiptRepository) Exists(ctx context.Context, shopID, orderID, eventType string) (bool, error) {
	var n uint64
	if err := r.conn.QueryRow(ctx, receiptExistsQuery, shopID, orderID, eventType).Scan(&n); err != nil {
		return false, fmt.Errorf("check receipt: %w", err)
	}
	return n > 0, nil
}
