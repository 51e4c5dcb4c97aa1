package repository

import (
	"context"
	"fmt"

	"beacon-admission-service/internal/model"
)

// DestinationRepository reads the server-side destinations configured for a shop.
type DestinationRepository interface {
	ListActiveServerSideDestinations(ctx context.Context, shopID string) ([]model.Destination, error)
}

type destinationRepository struct {
	db PgxDB
}

// NewDestinationRepository creates a DestinationRepository backed by PostgreSQL.
func NewDestinationRepository(db PgxDB) DestinationRepository {
	return &destinationRepository{db: db}
}

const listDestinationsQuery = `
	SELECT platform
	FROM pixel_destinations
	WHERE shop_id = $1 AND is_active AND server_side_enabled
	ORDER BY platform
`

func (r *destinationRepository) ListActiveServerSideDestinations(ctx context.Context, shopID string) ([]model.Destination, error) {
	rows, err := r.db.Query(ctx, listDestinationsQuery, shopID)
	if err != nil {
		return nil, fmt.Errorf("list destinations: %w", err)
	}
	defer rows.Close()

	var destinations []model.Destination
	for rows.Next() {
		var d model.Destination
		if err := rows.Scan(&d.Platform); err != nil {
			return nil, fmt.Errorf("scan destination: %w", err)
		}
		destinations = append(destinations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate destinations: %w", err)
	}
	return destinations, nil
}
