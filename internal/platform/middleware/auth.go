// Package middleware holds HTTP middleware that depends on internal domain
// packages and therefore cannot live under pkg/.
package middleware

import (
	"log/slog"
	"net/http"

	"realreview/internal/policy"
	id "realreview/pkg/domain"
	"realreview/pkg/platform/httputil"
	"realreview/pkg/requestcontext"
)

// RequireRole admits only principals holding one of roles. Run after
// auth.RequireAuth.
func RequireRole(logger *slog.Logger, roles ...id.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			decision := policy.Require(requestcontext.Role(ctx), roles...)
			if !decision.Allowed {
				logger.WarnContext(ctx, "forbidden",
					"reason", decision.Reason,
					"path", r.URL.Path,
					"user_id", requestcontext.UserID(ctx).String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, decision.Err())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
