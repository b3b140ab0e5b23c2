package rbac

import (
	"log/slog"
	"net/http"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Middleware wires role checks for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// Require ensures the current actor holds one of the given roles.
func (m Middleware) Require(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorFromContext(r.Context())
			if actor == nil {
				httpx.Fail(w, http.StatusUnauthorized, "missing bearer token", nil)
				return
			}
			if !Allowed(actor.Role, roles...) {
				if m.Logger != nil {
					m.Logger.Warn("role denied",
						slog.String("role", actor.Role),
						slog.String("path", r.URL.Path))
				}
				httpx.Fail(w, http.StatusForbidden, "insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
