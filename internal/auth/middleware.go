package auth

import (
	"net/http"
	"strings"

	"github.com/vaultgate/vaultgate/internal/platform/httpx"
	"github.com/vaultgate/vaultgate/internal/shared"
	"github.com/vaultgate/vaultgate/internal/token"
)

// TokenVerifier validates a bearer token string.
type TokenVerifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// RequireAuth guards protected routes. A missing header, a wrong
// scheme, and an invalid or expired token are all rejected identically
// with 401 so callers learn nothing about which check failed.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, raw, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || raw == "" {
				httpx.Problem(w, http.StatusUnauthorized, "unauthorized", "")
				return
			}
			claims, err := verifier.Verify(raw)
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "invalid token", "")
				return
			}
			ctx := shared.ContextWithIdentity(r.Context(), shared.Identity{
				UserID: claims.UserID,
				Email:  claims.Email,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
