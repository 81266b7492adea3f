package middleware

import (
	"net/http"

	"github.com/frahmantamala/course-checkout/internal"
	"github.com/frahmantamala/course-checkout/internal/transport"
	"github.com/frahmantamala/course-checkout/pkg/logger"
)

// RequireRoles rejects callers whose role is not listed. It must run after Authenticate.
func RequireRoles(base *transport.BaseHandler, roles ...internal.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := internal.PrincipalFromContext(r.Context())
			if !ok {
				base.HandleError(w, internal.ErrMissingToken)
				return
			}

			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			logger.From(r.Context()).Warn("access denied: role not allowed",
				"user_id", p.UserID,
				"role", p.Role,
				"allowed_roles", roles)
			base.HandleError(w, internal.ErrRoleDenied)
		})
	}
}
