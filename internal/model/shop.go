package model

import "time"

// IngestionSecrets is the current and, during rotation, previous shared secret of a shop.
type IngestionSecrets struct {
	Current           string
	Previous          string
	PreviousExpiresAt *time.Time
}

// Shop is the subset of a shop record needed to verify beacons.
type Shop struct {
	ID                string
	ShopDomain        string
	IsActive          bool
	Secrets           IngestionSecrets
	PrimaryDomain     string
	StorefrontDomains []string
}

// Destination is one server-side destination configured for a shop.
type Destination struct {
	Platform string
}
