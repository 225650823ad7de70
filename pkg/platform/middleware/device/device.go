package device

import (
	"net/http"

	"realreview/pkg/requestcontext"
)

// Labeler turns a raw User-Agent into a short display label.
type Labeler func(userAgent string) string

// Middleware stores a device label for the request's User-Agent. Run after
// metadata.ClientMetadata.
func Middleware(label Labeler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ua := requestcontext.UserAgent(ctx)
			if ua == "" {
				ua = r.Header.Get("User-Agent")
			}
			ctx = requestcontext.WithDevice(ctx, label(ua))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
