package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: record or file does not exist
//   - ErrAlreadyUsed: a unique key (user email, rating pair) is taken
//   - ErrInvalidState: record is in the wrong state for the requested change
//   - ErrUnavailable: backing service cannot be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
