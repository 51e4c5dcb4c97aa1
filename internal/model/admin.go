package model

import "time"

// CircuitStatus is the admin view of one shop's circuit.
type CircuitStatus struct {
	Shop              string     `json:"shop"`
	Tripped           bool       `json:"tripped"`
	Count             int64      `json:"count"`
	ResetAt           *time.Time `json:"resetAt,omitempty"`
	RetryAfterSeconds int        `json:"retryAfterSeconds,omitempty"`
}

// BlockStatus is the admin view of one shop's anomaly block.
type BlockStatus struct {
	Shop      string     `json:"shop"`
	Blocked   bool       `json:"blocked"`
	Reason    string     `json:"reason,omitempty"`
	BlockedAt *time.Time `json:"blockedAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}
