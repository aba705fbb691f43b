package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tair/commerce-ledger/pkg/cache"
	"github.com/tair/commerce-ledger/pkg/logger"
)

// RateLimitMiddleware limits each actor of an outlet. It runs after AuthMiddleware
// and lets requests through when the limiter backend fails.
func RateLimitMiddleware(limiter *cache.RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	if limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rc, ok := RequestContextFrom(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		identifier := fmt.Sprintf("%d:%d:%d", rc.TenantID, rc.OutletID, rc.ActorID)
		decision, err := limiter.Allow(r.Context(), identifier)
		if err != nil {
			logger.WithContext(r.Context()).Error().
				Err(err).
				Str("identifier", identifier).
				Msg("Rate limiter error")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))

		if !decision.Allowed {
			logger.WithContext(r.Context()).Warn().
				Str("identifier", identifier).
				Int("limit", decision.Limit).
				Msg("Rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(decision.Reset).Seconds())+1))
			respondError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	}
}
