package repository

import (
	"context"
	"fmt"

	"beacon-admission-service/internal/model"
)

// NonceRepository stores replay nonces behind a unique constraint.
type NonceRepository interface {
	// InsertNonce reports false when a live nonce with the same key exists.
	InsertNonce(ctx context.Context, nonce model.ReplayNonce) (bool, error)

	// DeleteExpired removes nonces past their expiry.
	DeleteExpired(ctx context.Context) (int64, error)
}

type nonceRepository struct {
	db PgxDB
}

// NewNonceRepository creates a NonceRepository backed by PostgreSQL.
func NewNonceRepository(db PgxDB) NonceRepository {
	return &nonceRepository{db: db}
}

// An expired row is reclaimed in the same statement; a live one leaves zero
// affected rows.
const insertNonceQuery = `
	INSERT INTO replay_nonces (shop_id, nonce, event_type, expires_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (shop_id, nonce, event_type) DO UPDATE
		SET expires_at = EXCLUDED.expires_at, created_at = now()
		WHERE replay_nonces.expires_at < now()
`

const deleteExpiredNoncesQuery = `DELETE FROM replay_nonces WHERE expires_at < now()`

func (r *nonceRepository) InsertNonce(ctx context.Context, nonce model.ReplayNonce) (bool, error) {
	tag, err := r.db.Exec(ctx, insertNonceQuery,
		nonce.ShopID,
		nonce.Nonce,
		nonce.EventType,
		nonce.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert nonce: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *nonceRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, deleteExpiredNoncesQuery)
	if err != nil {
		return 0, fmt.Errorf("delete expired nonces: %w", err)
	}
	return tag.RowsAffected(), nil
}
