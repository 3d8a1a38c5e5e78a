package articles

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFetchParams is returned when perTopic or maxConcurrent is out of range.
	ErrInvalidFetchParams = errors.New("invalid fetch parameters")
	// ErrMissingAPIKey is returned when a provider that needs a key is built without one.
	ErrMissingAPIKey = errors.New("news api key is required")
)

// StatusError is a non-2xx answer from an article provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether the provider may answer differently later.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
