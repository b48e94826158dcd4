package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
)

// RateLimiter limits API requests per client address.
type RateLimiter struct {
	limiter ratelimit.RateLimiter
	perMin  int
}

// NewRateLimiter allows perMinute requests per client with bursts of the
// same size. It returns nil when perMinute is not positive.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		limiter: ratelimit.New(&ratelimit.Config{
			Rate:     perMinute,
			Burst:    perMinute,
			Interval: time.Minute,
		}),
		perMin: perMinute,
	}
}

// Handler returns the middleware. A nil limiter passes every request.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limiter.Allow(r.Context(), clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.perMin))
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Close releases the limiter.
func (l *RateLimiter) Close() error {
	if l == nil {
		return nil
	}
	return l.limiter.Close()
}

// clientKey keys on the remote host. RealIP runs first, so proxies are
// already accounted for.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
