// internal/retry_after.go
// -----------------------
// Helpers for interpreting server throttling headers. Retry-After arrives
// either as delay seconds or as an HTTP date; both forms collapse to a
// duration from now.
package internal

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseRetryAfter converts a Retry-After header value into a wait duration.
// Unparseable or past values yield zero.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
