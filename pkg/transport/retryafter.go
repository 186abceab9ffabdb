package transport

import (
	"net/http"
	"strconv"
	"time"
)

// parseRetryAfter accepts both the numeric-seconds and HTTP-date forms of
// the Retry-After header (original_source/src/utils/pydantic_retry_transport.py
// relies on httpx's wait_retry_after, which accepts both; spec.md §4.2
// only states the numeric/HTTP-date split abstractly as "seconds or
// HTTP-date").
func parseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		d := time.Until(when)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
