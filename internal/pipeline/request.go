package pipeline

import (
	"regexp"
	"strings"
	"time"

	"beacon-admission-service/internal/consent"
	"beacon-admission-service/internal/model"
	"beacon-admission-service/internal/security"
)

// Request is the transport-independent view of an inbound beacon.
type Request struct {
	Method string
	Header func(name string) string
	Body   []byte
	// ContentLength is the declared length, or -1 when not sent.
	ContentLength int
}

var shopDomainPattern = regexp.MustCompile(`(?i)^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

// state is what earlier stages hand to later ones for a single request.
type state struct {
	req        Request
	receivedAt time.Time
	cors       map[string]string

	shopHint  string
	clientIP  string
	origin    security.Origin
	timestamp security.TimestampResult

	event model.EventRequest
	shop  *model.Shop

	key   security.KeyResult
	trust model.Trust

	orderID       string
	checkoutToken string
	identifier    string

	platforms []string
	eventID   string
	decision  consent.Decision
}

func (st *state) header(name string) string {
	if st.req.Header == nil {
		return ""
	}
	return st.req.Header(name)
}

// anomalyShop is the key anomalies are counted under: the resolved shop
// domain once known, else the hint header.
func (st *state) anomalyShop() string {
	if st.shop != nil {
		return st.shop.ShopDomain
	}
	if st.event.ShopDomain != "" {
		return st.event.ShopDomain
	}
	return st.shopHint
}

const gidOrderPrefix = "gid://shopify/Order/"

// normalizeOrderID reduces GraphQL order ids to their numeric part.
func normalizeOrderID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, gidOrderPrefix) {
		id = strings.TrimPrefix(id, gidOrderPrefix)
		if i := strings.IndexAny(id, "?#"); i >= 0 {
			id = id[:i]
		}
	}
	return id
}
