// Package policy holds the role-based authorization rules. Services and the
// RequireRole middleware both call Require so there is a single decision
// point.
package policy

import (
	"fmt"
	"slices"

	id "realreview/pkg/domain"
	dErrors "realreview/pkg/domain-errors"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Err converts a denial into a forbidden error; nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, d.Reason)
}

// Require allows subject when it holds any of the required roles.
func Require(subject id.Role, required ...id.Role) Decision {
	if !subject.IsValid() {
		return Decision{Reason: "authentication required"}
	}
	if slices.Contains(required, subject) {
		return Decision{Allowed: true}
	}
	return Decision{Reason: fmt.Sprintf("role %s is not permitted", subject)}
}

// RequireAdmin is Require(subject, ADMIN).
func RequireAdmin(subject id.Role) Decision {
	return Require(subject, id.RoleAdmin)
}
