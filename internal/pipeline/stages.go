package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"beacon-admission-service/internal/anomaly"
	"beacon-admission-service/internal/model"
	"beacon-admission-service/internal/ratelimit"
	"beacon-admission-service/internal/repository"
	"beacon-admission-service/internal/security"
)

// Drop reasons. They are never sent to the client.
const (
	ReasonShopBlocked       = "shop_blocked"
	ReasonInvalidOrigin     = "invalid_origin"
	ReasonOriginNotAllowed  = "origin_not_allowed"
	ReasonInvalidTimestamp  = "invalid_timestamp"
	ReasonSecondaryEvent    = "secondary_event"
	ReasonUnknownShop       = "unknown_shop"
	ReasonNoIngestionSecret = security.ReasonNoIngestionSecret
	ReasonInvalidKey        = security.ReasonInvalidKey
	ReasonMissingKey        = security.ReasonMissingKey
	ReasonAlreadyRecorded   = "already_recorded"
	ReasonReplay            = "replay"
	ReasonShopLookupFailed  = "shop_lookup_failed"
)

func newEventID() string {
	return uuid.NewString()
}

func (p *Pipeline) methodCheck(_ context.Context, st *state) Outcome {
	switch st.req.Method {
	case http.MethodOptions:
		return Outcome{Kind: Accept, Response: Response{Status: http.StatusNoContent}}
	case http.MethodPost:
		return next()
	default:
		out := reject(http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
		out.Response.Headers = map[string]string{"Allow": corsMethods}
		return out
	}
}

func (p *Pipeline) contentTypeCheck(_ context.Context, st *state) Outcome {
	mediaType, _, err := mime.ParseMediaType(st.header("Content-Type"))
	if err != nil || !isJSONMediaType(mediaType) {
		return reject(http.StatusUnsupportedMediaType, CodeUnsupportedMediaType, "Content-Type must be application/json")
	}
	return next()
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func (p *Pipeline) originCheck(ctx context.Context, st *state) Outcome {
	// Only shop domains are trusted as hints.
	if hint := strings.ToLower(strings.TrimSpace(st.header(HeaderShopDomain))); shopDomainPattern.MatchString(hint) {
		st.shopHint = hint
	}
	st.clientIP = ratelimit.ClientIP(st.header)

	if st.shopHint != "" && p.isBlocked(ctx, st.shopHint) {
		return drop(ReasonShopBlocked)
	}

	origin, ok := security.ParseOrigin(st.header("Origin"), p.opts.AllowLocalhostOrigins)
	if !ok {
		p.recordAnomaly(ctx, st.shopHint, anomaly.ReasonInvalidOrigin)
		return drop(ReasonInvalidOrigin)
	}
	st.origin = origin
	return next()
}

func (p *Pipeline) timestampCheck(ctx context.Context, st *state) Outcome {
	st.timestamp = security.CheckTimestamp(st.header(HeaderPixelTimestamp), st.receivedAt, p.opts.TimestampWindow)

	switch {
	case st.timestamp.Status == security.TimestampMissing:
		p.deps.Metrics.TimestampMissing()
		logrus.WithField("shop", st.shopHint).Debug("beacon without timestamp header")
	case st.timestamp.Status.Rejected():
		p.recordAnomaly(ctx, st.shopHint, anomaly.ReasonInvalidTimestamp)
		return drop(ReasonInvalidTimestamp)
	}
	return next()
}

func (p *Pipeline) rateLimit(ctx context.Context, st *state) Outcome {
	return p.limit(ctx, ratelimit.EndpointPixelEvents, st)
}

// limit checks one named limiter and turns a limited result into a 429.
func (p *Pipeline) limit(ctx context.Context, endpoint string, st *state) Outcome {
	res := p.deps.Limiter.Check(ctx, endpoint, ratelimit.Identity{Shop: st.anomalyShop(), ClientIP: st.clientIP})
	if !res.Limited {
		return next()
	}
	return throttled(CodeRateLimited, "Too many requests", res.RetryAfterSeconds(), map[string]string{
		"X-RateLimit-Limit":     strconv.FormatInt(res.Limit, 10),
		"X-RateLimit-Remaining": strconv.FormatInt(res.Remaining, 10),
		"X-RateLimit-Reset":     strconv.FormatInt(res.ResetAt.Unix(), 10),
	})
}

func (p *Pipeline) bodySizeCheck(_ context.Context, st *state) Outcome {
	if st.req.ContentLength > p.opts.MaxBodyBytes || len(st.req.Body) > p.opts.MaxBodyBytes {
		return reject(http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Payload too large")
	}
	return next()
}

func (p *Pipeline) bodyParse(_ context.Context, st *state) Outcome {
	var ev model.EventRequest
	if err := json.Unmarshal(st.req.Body, &ev); err != nil {
		return reject(http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON body")
	}

	ev.EventName = strings.TrimSpace(ev.EventName)
	ev.ShopDomain = strings.ToLower(strings.TrimSpace(ev.ShopDomain))
	switch {
	case ev.EventName == "":
		return reject(http.StatusBadRequest, CodeInvalidRequest, "eventName is required")
	case !shopDomainPattern.MatchString(ev.ShopDomain):
		return reject(http.StatusBadRequest, CodeInvalidRequest, "shopDomain is invalid")
	case ev.Timestamp == nil:
		return reject(http.StatusBadRequest, CodeInvalidRequest, "timestamp is required")
	}

	if model.KindOf(ev.EventName) == model.EventKindPrimary &&
		ev.Data.OrderIdentifier() == "" && ev.Data.CheckoutIdentifier() == "" {
		return reject(http.StatusBadRequest, CodeMissingOrderIdentifier, "orderId or checkoutToken is required")
	}

	st.event = ev
	return next()
}

func (p *Pipeline) circuitBreaker(ctx context.Context, st *state) Outcome {
	cs, err := p.deps.Breaker.Increment(ctx, st.event.ShopDomain)
	if err != nil {
		logrus.WithError(err).WithField("shop", st.event.ShopDomain).Warn("circuit breaker unavailable")
		return next()
	}
	if !cs.Tripped {
		return next()
	}
	retry := int((cs.RetryAfter(p.now()) + time.Second - 1) / time.Second)
	return throttled(CodeCircuitOpen, "Too many events for this shop", retry, nil)
}

func (p *Pipeline) eventRouting(_ context.Context, st *state) Outcome {
	if model.KindOf(st.event.EventName) != model.EventKindPrimary {
		return drop(ReasonSecondaryEvent)
	}
	return next()
}

func (p *Pipeline) shopResolve(ctx context.Context, st *state) Outcome {
	domain := st.event.ShopDomain
	if domain != st.shopHint && p.isBlocked(ctx, domain) {
		return drop(ReasonShopBlocked)
	}

	shop, err := p.deps.Shops.ResolveShopForVerification(ctx, domain)
	if errors.Is(err, repository.ErrNotFound) {
		return drop(ReasonUnknownShop)
	}
	if err != nil {
		logrus.WithError(err).WithField("shop", domain).Error("shop lookup failed")
		out := internalError()
		out.Reason = ReasonShopLookupFailed
		return out
	}
	if !shop.IsActive {
		return reject(http.StatusForbidden, CodeShopInactive, "Shop is not active")
	}

	st.shop = shop
	return next()
}

func (p *Pipeline) originAllowlist(ctx context.Context, st *state) Outcome {
	allowed := security.NewAllowedHosts(st.shop.PrimaryDomain, st.shop.StorefrontDomains)
	if !allowed.Allows(st.origin, p.opts.AllowLocalhostOrigins) {
		p.recordAnomaly(ctx, st.shop.ShopDomain, anomaly.ReasonInvalidOrigin)
		if out := p.limit(ctx, ratelimit.EndpointInvalidOrigin, st); out.Kind != Continue {
			return out
		}
		return drop(ReasonOriginNotAllowed)
	}

	st.cors = shopCORS(st.origin.Raw)
	return next()
}

func (p *Pipeline) keyVerify(ctx context.Context, st *state) Outcome {
	st.key = security.VerifyKey(st.header(HeaderPixelKey), st.shop.Secrets, st.receivedAt)
	if st.key.Matched {
		return next()
	}

	if !st.key.SecretConfigured {
		if p.opts.AllowUnsignedEvents {
			return next()
		}
		logrus.WithField("shop", st.shop.ShopDomain).Warn("shop has no ingestion secret configured")
		return drop(ReasonNoIngestionSecret)
	}

	p.recordAnomaly(ctx, st.shop.ShopDomain, anomaly.ReasonInvalidKey)
	if out := p.limit(ctx, ratelimit.EndpointInvalidKey, st); out.Kind != Continue {
		return out
	}
	if p.opts.AllowUnsignedEvents {
		return next()
	}
	if !st.key.KeyPresented {
		return drop(ReasonMissingKey)
	}
	return drop(ReasonInvalidKey)
}

func (p *Pipeline) trustCompute(_ context.Context, st *state) Outcome {
	st.trust = security.Classify(st.key)
	return next()
}

func (p *Pipeline) identifierResolve(_ context.Context, st *state) Outcome {
	st.orderID = normalizeOrderID(st.event.Data.OrderIdentifier())
	st.checkoutToken = st.event.Data.CheckoutIdentifier()

	st.identifier = st.orderID
	if st.identifier == "" {
		st.identifier = st.checkoutToken
	}
	if st.identifier == "" {
		return reject(http.StatusBadRequest, CodeMissingOrderIdentifier, "orderId or checkoutToken is required")
	}
	return next()
}

func (p *Pipeline) duplicateCheck(ctx context.Context, st *state) Outcome {
	exists, err := p.deps.Receipts.Exists(ctx, st.shop.ID, st.identifier, st.event.EventName)
	if err != nil {
		logrus.WithError(err).WithField("shop", st.shop.ShopDomain).Warn("receipt lookup failed, continuing")
		return next()
	}
	if exists {
		// a resubmission that arrives after the first one was recorded
		p.deps.Metrics.ReplayDetected()
		return drop(ReasonAlreadyRecorded)
	}
	return next()
}

func (p *Pipeline) destinationResolve(ctx context.Context, st *state) Outcome {
	destinations, err := p.deps.Destinations.ListActiveServerSideDestinations(ctx, st.shop.ID)
	if err != nil {
		logrus.WithError(err).WithField("shop", st.shop.ShopDomain).Warn("destination lookup failed, continuing without destinations")
	}
	st.platforms = make([]string, 0, len(destinations))
	for _, d := range destinations {
		st.platforms = append(st.platforms, d.Platform)
	}
	return next()
}

func (p *Pipeline) replayGuard(ctx context.Context, st *state) Outcome {
	replayed, err := p.deps.Replay.Check(ctx, st.shop.ID, st.event.EventName, st.identifier, st.event.TimestampMs())
	if err != nil {
		logrus.WithError(err).WithField("shop", st.shop.ShopDomain).Warn("replay check failed, continuing")
		return next()
	}
	if replayed {
		p.deps.Metrics.ReplayDetected()
		return drop(ReasonReplay)
	}
	return next()
}

func (p *Pipeline) recordReceipt(ctx context.Context, st *state) Outcome {
	st.eventID = p.newID()

	ev := st.event
	receipt := model.Receipt{
		EventID:            st.eventID,
		ShopID:             st.shop.ID,
		OrderID:            st.identifier,
		EventType:          ev.EventName,
		CheckoutToken:      st.checkoutToken,
		HasOrderID:         st.orderID != "",
		TrustLevel:         st.trust.Level,
		UntrustedReason:    st.trust.UntrustedReason,
		UsedPreviousSecret: st.key.UsedPreviousSecret,
		OriginHost:         st.origin.Host,
		ClientTimestamp:    time.UnixMilli(ev.TimestampMs()).UTC(),
		ReceivedAt:         st.receivedAt.UTC(),
	}
	if ev.Data != nil {
		receipt.Value = ev.Data.Value
		if ev.Data.Currency != nil {
			receipt.Currency = strings.ToUpper(*ev.Data.Currency)
		}
	}
	if ev.Consent != nil {
		receipt.ConsentMarketing = ev.Consent.Marketing
		receipt.ConsentAnalytics = ev.Consent.Analytics
		receipt.SaleOfDataOptOut = ev.Consent.SaleOfData != nil && !*ev.Consent.SaleOfData
	}

	if err := p.deps.Receipts.UpsertReceipt(ctx, receipt); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"shop":     st.shop.ShopDomain,
			"event_id": st.eventID,
		}).Error("failed to record receipt")
	}
	return next()
}

func (p *Pipeline) consentFilter(_ context.Context, st *state) Outcome {
	st.decision = p.deps.Consent.Apply(st.event.Consent, st.platforms)
	p.deps.Metrics.ConsentDecision(string(st.decision.Outcome))
	return next()
}

func (p *Pipeline) fanoutRecord(_ context.Context, st *state) Outcome {
	if len(st.decision.Admitted) > 0 {
		records := make([]model.ConversionRecord, 0, len(st.decision.Admitted))
		for _, platform := range st.decision.Admitted {
			rec := model.ConversionRecord{
				EventID:    st.eventID,
				ShopID:     st.shop.ID,
				OrderID:    st.identifier,
				Platform:   platform,
				EventType:  st.event.EventName,
				TrustLevel: st.trust.Level,
				Status:     model.ConversionStatusPending,
				CreatedAt:  st.receivedAt.UTC(),
			}
			if st.event.Data != nil {
				rec.Value = st.event.Data.Value
				if st.event.Data.Currency != nil {
					rec.Currency = strings.ToUpper(*st.event.Data.Currency)
				}
			}
			records = append(records, rec)
		}
		p.deps.Fanout.Enqueue(records...)
	}

	return accept(http.StatusOK, AcceptedBody{
		Success:    true,
		EventID:    st.eventID,
		TrustLevel: string(st.trust.Level),
		Destinations: DestinationsBody{
			Admitted: st.decision.Admitted,
			Skipped:  st.decision.Skipped,
		},
		Consent: ConsentStatusBody{SaleOfDataOptOut: st.decision.SaleOfDataOptOut},
	})
}

func (p *Pipeline) isBlocked(ctx context.Context, shop string) bool {
	block, blocked, err := p.deps.Anomaly.IsBlocked(ctx, shop)
	if err != nil {
		logrus.WithError(err).WithField("shop", shop).Warn("blocklist unavailable")
		return false
	}
	if blocked {
		logrus.WithFields(logrus.Fields{
			"shop":       shop,
			"reason":     block.Reason,
			"expires_at": block.ExpiresAt,
		}).Debug("blocked shop")
	}
	return blocked
}

// recordAnomaly counts reason against shop. Without a shop key the anomaly
// only shows up in metrics.
func (p *Pipeline) recordAnomaly(ctx context.Context, shop string, reason anomaly.Reason) {
	if shop == "" {
		return
	}
	res, err := p.deps.Anomaly.Record(ctx, shop, reason)
	if err != nil {
		logrus.WithError(err).WithField("shop", shop).Warn("anomaly tracking failed")
		return
	}
	if res.NewlyBlocked {
		p.deps.Metrics.AnomalyBlock(string(res.Block.Reason))
	}
}
