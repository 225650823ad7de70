package testutil

import (
	"net/http"

	id "realreview/pkg/domain"
	"realreview/pkg/requestcontext"
)

// withPrincipal simulates what the auth middleware does for an
// authenticated request.
func withPrincipal(req *http.Request, userID id.UserID, email string, role id.Role) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), userID, email, role))
}

// WithUser authenticates req as a USER with the given id.
func WithUser(req *http.Request, userID id.UserID) *http.Request {
	return withPrincipal(req, userID, "user@example.com", id.RoleUser)
}

// WithAdmin authenticates req as an ADMIN with the given id.
func WithAdmin(req *http.Request, userID id.UserID) *http.Request {
	return withPrincipal(req, userID, "admin@example.com", id.RoleAdmin)
}
