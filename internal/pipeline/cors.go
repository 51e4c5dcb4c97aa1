package pipeline

const (
	HeaderPixelKey       = "X-Pixel-Key"
	HeaderPixelTimestamp = "X-Pixel-Timestamp"
	HeaderShopDomain     = "X-Shop-Domain"
)

const (
	corsMethods = "POST, OPTIONS"
	corsHeaders = "Content-Type, " + HeaderPixelKey + ", " + HeaderPixelTimestamp + ", " + HeaderShopDomain
	corsMaxAge  = "86400"
)

// genericCORS is sent before the shop and its allowlist are known.
func genericCORS() map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": corsMethods,
		"Access-Control-Allow-Headers": corsHeaders,
		"Access-Control-Max-Age":       corsMaxAge,
	}
}

// shopCORS echoes an origin that passed the shop's allowlist.
func shopCORS(origin string) map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  origin,
		"Access-Control-Allow-Methods": corsMethods,
		"Access-Control-Allow-Headers": corsHeaders,
		"Access-Control-Max-Age":       corsMaxAge,
		"Vary":                         "Origin",
	}
}
