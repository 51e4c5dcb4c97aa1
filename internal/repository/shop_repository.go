package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"beacon-admission-service/internal/model"
)

// ShopRepository reads the shop directory. It never writes shop records.
type ShopRepository interface {
	// ResolveShopForVerification returns the shop owning domain, or ErrNotFound.
	ResolveShopForVerification(ctx context.Context, shopDomain string) (*model.Shop, error)
}

type shopRepository struct {
	db PgxDB
}

// NewShopRepository creates a ShopRepository backed by PostgreSQL.
func NewShopRepository(db PgxDB) ShopRepository {
	return &shopRepository{db: db}
}

const resolveShopQuery = `
	SELECT id, shop_domain, is_active, ingestion_secret, previous_ingestion_secret,
	       previous_secret_expires_at, primary_domain, storefront_domains
	FROM shops
	WHERE shop_domain = $1
`

func (r *shopRepository) ResolveShopForVerification(ctx context.Context, shopDomain string) (*model.Shop, error) {
	var (
		shop            model.Shop
		current         *string
		previous        *string
		previousExpires *time.Time
		primary         *string
		storefronts     []string
	)

	err := r.db.QueryRow(ctx, resolveShopQuery, strings.ToLower(shopDomain)).Scan(
		&shop.ID,
		&shop.ShopDomain,
		&shop.IsActive,
		&current,
		&previous,
		&previousExpires,
		&primary,
		&storefronts,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve shop: %w", err)
	}

	shop.Secrets = model.IngestionSecrets{
		Current:           derefString(current),
		Previous:          derefString(previous),
		PreviousExpiresAt: previousExpires,
	}
	shop.PrimaryDomain = derefString(primary)
	shop.StorefrontDomains = storefronts
	return &shop, nil
}
