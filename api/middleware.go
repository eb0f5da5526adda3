/*
middleware.go - Authentication and role enforcement

PURPOSE:
  Bearer-token authentication and role checks run before any core logic.
  Verified claims are stashed in the request context for handlers that
  need the acting identity (audit attribution).

STATUS MAPPING:
  Missing/invalid token -> 401
  Valid token, insufficient role -> 403
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/warp/finops-engine/identity"
)

type contextKey string

const claimsKey contextKey = "claims"

// ClaimsFrom extracts the verified session claims, or nil when the
// request is unauthenticated.
func ClaimsFrom(ctx context.Context) *identity.Claims {
	claims, _ := ctx.Value(claimsKey).(*identity.Claims)
	return claims
}

// RequireAuth rejects requests without a valid bearer token.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}
		claims, err := h.Identity.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", nil)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects authenticated requests whose role is below the
// required level. Must be mounted inside RequireAuth.
func (h *Handler) RequireRole(required identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFrom(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
				return
			}
			if !identity.Role(claims.Role).Allows(required) {
				writeError(w, http.StatusForbidden, "Insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
