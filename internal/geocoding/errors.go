package geocoding

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for geocoding calls.
type ErrorCategory string

const (
	// ErrorNotFound means the address did not resolve to any place.
	ErrorNotFound ErrorCategory = "not_found"
	// ErrorTimeout means the provider did not answer within the deadline.
	ErrorTimeout ErrorCategory = "timeout"
	// ErrorBadData means the response could not be decoded.
	ErrorBadData ErrorCategory = "bad_data"
	// ErrorAuthentication means the API key was refused.
	ErrorAuthentication ErrorCategory = "authentication"
	// ErrorRateLimited means the quota is exhausted.
	ErrorRateLimited ErrorCategory = "rate_limited"
	// ErrorProviderOutage means the provider is unreachable or failing.
	ErrorProviderOutage ErrorCategory = "provider_outage"
)

// ProviderError wraps geocoding failures with a category.
type ProviderError struct {
	Category   ErrorCategory
	Provider   string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("geocoder %s [%s]: %s: %v", e.Provider, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("geocoder %s [%s]: %s", e.Provider, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewProviderError builds a categorised error. Retryable is informational;
// nothing in this package retries.
func NewProviderError(category ErrorCategory, provider, message string, underlying error) *ProviderError {
	return &ProviderError{
		Category:   category,
		Provider:   provider,
		Message:    message,
		Underlying: underlying,
		Retryable: category == ErrorTimeout ||
			category == ErrorProviderOutage ||
			category == ErrorRateLimited,
	}
}

// CategoryOf extracts the category, or ErrorProviderOutage for foreign errors.
func CategoryOf(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorProviderOutage
}

// IsNotFound reports whether err means the address is not a real place.
func IsNotFound(err error) bool {
	return CategoryOf(err) == ErrorNotFound
}
