package ratelimit

import (
	"math"
	"net/http"
	"strconv"
)

// WriteHeaders sets the X-RateLimit-* headers from info, and Retry-After when
// the request was denied.
func WriteHeaders(h http.Header, info Info, allowed bool) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

	if !allowed {
		h.Set("Retry-After", strconv.Itoa(RetryAfterSeconds(info)))
	}
}

// RetryAfterSeconds rounds the wait up to whole seconds, never below one.
func RetryAfterSeconds(info Info) int {
	secs := int(math.Ceil(info.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
