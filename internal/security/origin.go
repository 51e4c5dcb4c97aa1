// Package security holds the request checks that do not need shared state:
// origin validation, timestamp freshness, key verification and trust
// classification.
package security

import (
	"net/url"
	"strings"
)

// Origin is a structurally valid Origin header.
type Origin struct {
	// Raw is the header value as sent, used when echoing CORS headers.
	Raw  string
	Host string
}

// ParseOrigin performs the stage-1 origin check. It accepts only https
// origins made of scheme and host with an optional port. With allowLocalhost
// plain http is accepted for localhost and 127.0.0.1.
func ParseOrigin(header string, allowLocalhost bool) (Origin, bool) {
	raw := strings.TrimSpace(header)
	if raw == "" || strings.EqualFold(raw, "null") {
		return Origin{}, false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Origin{}, false
	}
	if u.User != nil || u.Opaque != "" || u.RawQuery != "" || u.Fragment != "" || u.ForceQuery {
		return Origin{}, false
	}
	if u.Path != "" {
		return Origin{}, false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Origin{}, false
	}

	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if !allowLocalhost || !isLocalhost(host) {
			return Origin{}, false
		}
	default:
		return Origin{}, false
	}

	return Origin{Raw: raw, Host: host}, true
}

func isLocalhost(host string) bool {
	return host == "localhost" || host == "127.0.0.1"
}

// AllowedHosts is the stage-2 allowlist of a shop.
type AllowedHosts map[string]struct{}

// NewAllowedHosts builds the allowlist from the shop's primary domain and its
// storefront domains. Entries may be bare hosts or full URLs.
func NewAllowedHosts(primaryDomain string, storefrontDomains []string) AllowedHosts {
	hosts := make(AllowedHosts, len(storefrontDomains)+1)
	for _, d := range append([]string{primaryDomain}, storefrontDomains...) {
		if h := normalizeHost(d); h != "" {
			hosts[h] = struct{}{}
		}
	}
	return hosts
}

// Allows reports whether origin passes the stage-2 check.
func (a AllowedHosts) Allows(origin Origin, allowLocalhost bool) bool {
	if allowLocalhost && isLocalhost(origin.Host) {
		return true
	}
	_, ok := a[origin.Host]
	return ok
}

func normalizeHost(domain string) string {
	d := strings.TrimSpace(domain)
	if d == "" {
		return ""
	}
	if !strings.Contains(d, "://") {
		d = "https://" + d
	}
	u, err := url.Parse(d)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
