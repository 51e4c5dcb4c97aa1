package model

import "time"

// ReplayNonce is the dedup token for one (order, timestamp) pair of a shop.
type ReplayNonce struct {
	ShopID    string
	Nonce     string
	EventType string
	ExpiresAt time.Time
}
