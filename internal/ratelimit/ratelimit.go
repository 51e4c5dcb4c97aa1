// Package ratelimit implements fixed-window request limiting keyed by
// (endpoint, shop, client address).
package ratelimit

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"beacon-admission-service/internal/counterstore"
)

// Endpoint names double as the names of their limit configurations.
const (
	EndpointAPI           = "api"
	EndpointPixelEvents   = "pixel-events"
	EndpointInvalidKey    = "invalid-key"
	EndpointInvalidOrigin = "invalid-origin"
)

const (
	maxKeyPartLength = 100
	unknownPart      = "unknown"
)

// Config is one fixed window: at most MaxRequests per Window.
type Config struct {
	MaxRequests int64
	Window      time.Duration
}

// Identity is who a request is counted against.
type Identity struct {
	Shop     string
	ClientIP string
}

// Result is the outcome of one Check.
type Result struct {
	Limited    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (r Result) RetryAfterSeconds() int {
	secs := int((r.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter counts requests in a counterstore.Store.
type Limiter struct {
	store   counterstore.Store
	configs map[string]Config
	now     func() time.Time
}

// New builds a Limiter. configs must contain EndpointAPI, used for unknown endpoints.
func New(store counterstore.Store, configs map[string]Config) *Limiter {
	return &Limiter{store: store, configs: configs, now: time.Now}
}

// ConfigFor returns the limit applied to endpoint.
func (l *Limiter) ConfigFor(endpoint string) Config {
	if cfg, ok := l.configs[endpoint]; ok {
		return cfg
	}
	return l.configs[EndpointAPI]
}

// Check counts one request and reports whether it exceeds the endpoint's limit.
// A store failure lets the request through.
func (l *Limiter) Check(ctx context.Context, endpoint string, id Identity) Result {
	cfg := l.ConfigFor(endpoint)
	key := Key(endpoint, id)

	entry, err := l.store.Increment(ctx, key, cfg.Window)
	if err != nil {
		logrus.WithError(err).WithField("endpoint", endpoint).Warn("rate limit check failed, allowing request")
		return Result{Limit: cfg.MaxRequests, Remaining: cfg.MaxRequests, ResetAt: l.now().Add(cfg.Window)}
	}

	remaining := cfg.MaxRequests - entry.Count
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Limited:   entry.Count > cfg.MaxRequests,
		Limit:     cfg.MaxRequests,
		Remaining: remaining,
		ResetAt:   entry.ResetAt,
	}
	if res.Limited {
		res.RetryAfter = entry.ResetAt.Sub(l.now())
		if res.RetryAfter < 0 {
			res.RetryAfter = 0
		}
	}
	return res
}

// Key builds the counter key for endpoint and id. Every part is sanitized.
func Key(endpoint string, id Identity) string {
	return "rl:" + SanitizeKeyPart(endpoint) + ":" + SanitizeKeyPart(id.Shop) + ":" + SanitizeKeyPart(id.ClientIP)
}

// SanitizeKeyPart maps s onto [A-Za-z0-9._-], replacing anything else with
// '_', and caps it at 100 characters. Empty input becomes "unknown".
func SanitizeKeyPart(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return unknownPart
	}
	var b strings.Builder
	b.Grow(min(len(s), maxKeyPartLength))
	for _, r := range s {
		if b.Len() >= maxKeyPartLength {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ClientIP picks the client address from forwarding headers: the first
// X-Forwarded-For entry, else X-Real-IP, else "unknown".
func ClientIP(header func(string) string) string {
	if xff := header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(header("X-Real-IP")); realIP != "" {
		return realIP
	}
	return unknownPart
}
