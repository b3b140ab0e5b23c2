package auth

import (
	"net/http"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Middleware authenticates bearer tokens and attaches the actor to context.
type Middleware struct {
	Issuer *TokenIssuer
}

// RequireAuth rejects requests without a valid bearer token.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			httpx.Fail(w, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}
		actor, err := m.Issuer.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			httpx.Fail(w, http.StatusUnauthorized, "invalid bearer token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}
