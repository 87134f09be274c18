package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/getmockd/eventsock/pkg/httputil"
)

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. A nil limiter passes every request through.
func Middleware(l *Limiter, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, retryAfter := l.Allow(l.ClientIP(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Burst()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			secs := max(1, int(math.Ceil(retryAfter.Seconds())))
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			httputil.WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many connection attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}
