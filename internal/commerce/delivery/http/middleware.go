package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/tair/commerce-ledger/internal/commerce/domain"
	"github.com/tair/commerce-ledger/pkg/auth"
)

type contextKey string

const requestContextKey contextKey = "request_context"

// AuthMiddleware validates the bearer token and scopes the request to its tenant and outlet
func AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondError(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := auth.ValidateToken(parts[1])
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		rc := domain.RequestContext{
			TenantID: claims.TenantID,
			OutletID: claims.OutletID,
			ActorID:  claims.UserID,
			Role:     domain.Role(strings.ToUpper(claims.Role)),
		}
		if err := rc.Validate(); err != nil {
			respondError(w, http.StatusUnauthorized, "Token is not scoped to an outlet")
			return
		}

		ctx := context.WithValue(r.Context(), requestContextKey, rc)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// RequestContextFrom returns the scope set by AuthMiddleware
func RequestContextFrom(ctx context.Context) (domain.RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey).(domain.RequestContext)
	return rc, ok
}
