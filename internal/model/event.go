package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Event names understood by the ingest endpoint.
const (
	EventCheckoutCompleted = "checkout_completed"

	EventPageViewed         = "page_viewed"
	EventProductViewed      = "product_viewed"
	EventProductAddedToCart = "product_added_to_cart"
	EventCartViewed         = "cart_viewed"
	EventCheckoutStarted    = "checkout_started"
	EventPaymentInfoAdded   = "payment_info_submitted"
)

// EventKind classifies an event name for routing.
type EventKind int

const (
	EventKindUnknown EventKind = iota
	EventKindPrimary
	EventKindFunnel
)

var funnelEvents = map[string]struct{}{
	EventPageViewed:         {},
	EventProductViewed:      {},
	EventProductAddedToCart: {},
	EventCartViewed:         {},
	EventCheckoutStarted:    {},
	EventPaymentInfoAdded:   {},
}

// KindOf returns how an event name is routed.
func KindOf(eventName string) EventKind {
	if eventName == EventCheckoutCompleted {
		return EventKindPrimary
	}
	if _, ok := funnelEvents[eventName]; ok {
		return EventKindFunnel
	}
	return EventKindUnknown
}

// Consent carries the visitor's privacy choices. A nil flag means "not stated".
type Consent struct {
	Marketing  *bool `json:"marketing,omitempty"`
	Analytics  *bool `json:"analytics,omitempty"`
	SaleOfData *bool `json:"saleOfData,omitempty"`
}

// EventData is the event-specific payload of a beacon.
type EventData struct {
	OrderID       *FlexibleID `json:"orderId,omitempty"`
	CheckoutToken *FlexibleID `json:"checkoutToken,omitempty"`
	Value         *float64    `json:"value,omitempty"`
	Currency      *string     `json:"currency,omitempty"`
	Items         []EventItem `json:"items,omitempty"`
}

// EventItem is one line item reported with a purchase.
type EventItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Quantity int     `json:"quantity,omitempty"`
}

// EventRequest represents an incoming beacon body.
type EventRequest struct {
	EventName  string     `json:"eventName"`
	ShopDomain string     `json:"shopDomain"`
	Timestamp  *float64   `json:"timestamp"`
	Consent    *Consent   `json:"consent,omitempty"`
	Data       *EventData `json:"data,omitempty"`
}

// TimestampMs returns the client timestamp in milliseconds.
func (r EventRequest) TimestampMs() int64 {
	if r.Timestamp == nil {
		return 0
	}
	return int64(*r.Timestamp)
}

// OrderIdentifier returns the trimmed order id, or "".
func (d *EventData) OrderIdentifier() string {
	if d == nil || d.OrderID == nil {
		return ""
	}
	return strings.TrimSpace(string(*d.OrderID))
}

// CheckoutIdentifier returns the trimmed checkout token, or "".
func (d *EventData) CheckoutIdentifier() string {
	if d == nil || d.CheckoutToken == nil {
		return ""
	}
	return strings.TrimSpace(string(*d.CheckoutToken))
}

// FlexibleID accepts identifiers sent either as JSON strings or numbers.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}
