package middleware

import (
	"net/http"

	"github.com/frahmantamala/course-checkout/internal"
	"github.com/frahmantamala/course-checkout/internal/auth"
	"github.com/frahmantamala/course-checkout/internal/transport"
	"github.com/frahmantamala/course-checkout/pkg/logger"
)

// Authenticate validates the bearer token and attaches the caller to the request context.
func Authenticate(validator auth.TokenValidator, base *transport.BaseHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := transport.BearerToken(r)
			if token == "" {
				base.HandleError(w, internal.ErrMissingToken)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				base.HandleServiceError(w, err)
				return
			}

			p := claims.Principal()
			ctx := internal.ContextWithPrincipal(r.Context(), p)
			ctx = logger.With(ctx, "user_id", p.UserID, "role", string(p.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
