package model

import "time"

// TrustLevel is the confidence attached to an admitted event.
type TrustLevel string

const (
	TrustTrusted   TrustLevel = "trusted"
	TrustPartial   TrustLevel = "partial"
	TrustUntrusted TrustLevel = "untrusted"
)

// Trust is the classification computed once per admitted event.
type Trust struct {
	Level           TrustLevel `json:"level"`
	UntrustedReason string     `json:"untrustedReason,omitempty"`
}

// Receipt records that a beacon for an order was admitted.
type Receipt struct {
	EventID            string
	ShopID             string
	OrderID            string
	EventType          string
	CheckoutToken      string
	HasOrderID         bool
	TrustLevel         TrustLevel
	UntrustedReason    string
	UsedPreviousSecret bool
	OriginHost         string
	Value              *float64
	Currency           string
	ConsentMarketing   *bool
	ConsentAnalytics   *bool
	SaleOfDataOptOut   bool
	ClientTimestamp    time.Time
	ReceivedAt         time.Time
}

// ConversionRecord is the intent to deliver one event to one platform.
type ConversionRecord struct {
	EventID    string
	ShopID     string
	OrderID    string
	Platform   string
	EventType  string
	Value      *float64
	Currency   string
	TrustLevel TrustLevel
	Status     string
	CreatedAt  time.Time
}

// ConversionStatusPending marks a record that has not been delivered yet.
const ConversionStatusPending = "pending"

// ConversionJob is published for downstream delivery workers.
type ConversionJob struct {
	EventID    string     `json:"eventId"`
	ShopID     string     `json:"shopId"`
	OrderID    string     `json:"orderId"`
	Platform   string     `json:"platform"`
	EventType  string     `json:"eventType"`
	Value      *float64   `json:"value,omitempty"`
	Currency   string     `json:"currency,omitempty"`
	TrustLevel TrustLevel `json:"trustLevel"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// JobFromRecord converts a persisted record into its published form.
func JobFromRecord(r ConversionRecord) ConversionJob {
	return ConversionJob{
		EventID:    r.EventID,
		ShopID:     r.ShopID,
		OrderID:    r.OrderID,
		Platform:   r.Platform,
		EventType:  r.EventType,
		Value:      r.Value,
		Currency:   r.Currency,
		TrustLevel: r.TrustLevel,
		CreatedAt:  r.CreatedAt,
	}
}
