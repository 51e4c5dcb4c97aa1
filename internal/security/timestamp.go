package security

import (
	"strconv"
	"strings"
	"time"
)

// TimestampStatus is the outcome of a client timestamp check.
type TimestampStatus int

const (
	TimestampValid TimestampStatus = iota
	// TimestampMissing is tolerated for older clients.
	TimestampMissing
	TimestampMalformed
	TimestampOutOfWindow
)

func (s TimestampStatus) String() string {
	switch s {
	case TimestampValid:
		return "valid"
	case TimestampMissing:
		return "missing"
	case TimestampMalformed:
		return "malformed"
	case TimestampOutOfWindow:
		return "out_of_window"
	default:
		return "unknown"
	}
}

// Rejected reports whether the request must be dropped.
func (s TimestampStatus) Rejected() bool {
	return s == TimestampMalformed || s == TimestampOutOfWindow
}

// TimestampResult carries the parsed value and how far it is from server time.
type TimestampResult struct {
	Status TimestampStatus
	Millis int64
	Skew   time.Duration
}

// CheckTimestamp validates a millisecond epoch header against now ± window.
func CheckTimestamp(header string, now time.Time, window time.Duration) TimestampResult {
	v := strings.TrimSpace(header)
	if v == "" {
		return TimestampResult{Status: TimestampMissing}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return TimestampResult{Status: TimestampMalformed}
	}

	skew := now.Sub(time.UnixMilli(ms))
	res := TimestampResult{Status: TimestampValid, Millis: ms, Skew: skew}
	if skew > window || skew < -window {
		res.Status = TimestampOutOfWindow
	}
	return res
}
