// Package requesttime gives every operation within one HTTP request the same
// "now", keeping upload timestamps, rating timestamps and moderation events
// consistent.
package requesttime

import (
	"net/http"
	"time"

	"realreview/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
