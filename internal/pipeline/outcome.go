package pipeline

import (
	"net/http"
	"strconv"
)

// Kind tags the result of a stage.
type Kind int

const (
	// Continue hands the request to the next stage.
	Continue Kind = iota
	// Accept ends the pipeline with a success response.
	Accept
	// Drop ends the pipeline with a bare 204.
	Drop
	// Reject ends the pipeline with an explicit error response.
	Reject
)

func (k Kind) String() string {
	switch k {
	case Continue:
		return "continue"
	case Accept:
		return "accept"
	case Drop:
		return "drop"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Error codes returned in explicit rejections.
const (
	CodeMethodNotAllowed       = "method_not_allowed"
	CodeUnsupportedMediaType   = "unsupported_media_type"
	CodePayloadTooLarge        = "payload_too_large"
	CodeInvalidJSON            = "invalid_json"
	CodeInvalidRequest         = "invalid_request"
	CodeMissingOrderIdentifier = "missing_order_identifier"
	CodeShopInactive           = "shop_inactive"
	CodeRateLimited            = "rate_limited"
	CodeCircuitOpen            = "circuit_open"
	CodeInternalError          = "internal_error"
)

// Response is what the transport writes back. A nil Body means no body.
type Response struct {
	Status  int
	Headers map[string]string
	Body    any
}

// ErrorBody is the JSON body of explicit rejections.
type ErrorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// AcceptedBody is the JSON body of an admitted beacon.
type AcceptedBody struct {
	Success      bool              `json:"success"`
	EventID      string            `json:"eventId"`
	TrustLevel   string            `json:"trustLevel"`
	Destinations DestinationsBody  `json:"destinations"`
	Consent      ConsentStatusBody `json:"consent"`
}

type DestinationsBody struct {
	Admitted []string `json:"admitted"`
	Skipped  []string `json:"skipped"`
}

type ConsentStatusBody struct {
	SaleOfDataOptOut bool `json:"saleOfDataOptOut"`
}

// Outcome is the tagged result of one stage. Reason names why a request was
// dropped or rejected and feeds logs and metrics.
type Outcome struct {
	Kind     Kind
	Response Response
	Reason   string
}

func next() Outcome {
	return Outcome{Kind: Continue}
}

func accept(status int, body any) Outcome {
	return Outcome{Kind: Accept, Response: Response{Status: status, Body: body}}
}

func drop(reason string) Outcome {
	return Outcome{Kind: Drop, Reason: reason, Response: Response{Status: http.StatusNoContent}}
}

func reject(status int, code, message string) Outcome {
	return Outcome{
		Kind:     Reject,
		Reason:   code,
		Response: Response{Status: status, Body: ErrorBody{Error: message, Code: code}},
	}
}

// PayloadTooLargeResponse is the 413 for bodies the transport refuses before
// the pipeline runs. It matches the pipeline's own 413.
func PayloadTooLargeResponse() Response {
	return finalize(reject(http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Payload too large").Response, genericCORS())
}

func internalError() Outcome {
	return reject(http.StatusInternalServerError, CodeInternalError, "Internal server error")
}

// throttled builds a 429 carrying Retry-After in seconds.
func throttled(code, message string, retryAfter int, extra map[string]string) Outcome {
	if retryAfter < 1 {
		retryAfter = 1
	}
	out := reject(http.StatusTooManyRequests, code, message)
	out.Response.Body = ErrorBody{Error: message, Code: code, RetryAfter: retryAfter}
	out.Response.Headers = map[string]string{"Retry-After": strconv.Itoa(retryAfter)}
	for k, v := range extra {
		out.Response.Headers[k] = v
	}
	return out
}
