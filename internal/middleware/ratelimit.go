package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"
)

type rateErr struct {
	Error string `json:"error"`
}

// RateLimitMiddleware applies one token bucket to all callers. A nil limiter
// disables limiting.
func RateLimitMiddleware(l *rate.Limiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Allow() {
				next.ServeHTTP(w, r)
				return
			}
			httpRateLimited.Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(l.Limit())))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(rateErr{Error: "too_many_requests"})
		})
	}
}

// retryAfterSeconds is the time to earn one token, rounded up, never below 1.
func retryAfterSeconds(limit rate.Limit) int {
	if limit <= 0 || limit == rate.Inf {
		return 1
	}
	secs := int(math.Ceil(1 / float64(limit)))
	if secs < 1 {
		return 1
	}
	return secs
}

func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
