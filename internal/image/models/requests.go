package models

import (
	"strings"

	dErrors "realreview/pkg/domain-errors"
)

const maxReasonLength = 500

// RejectRequest is the optional body of a rejection.
type RejectRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 500 characters")
	}
	return nil
}
