package api

import (
	"errors"
	"fmt"
)

// Remote error taxonomy. Callers branch on these with errors.Is; everything
// else the client returns is a terminal, non-retryable failure.
var (
	// ErrNotFound is returned for HTTP 404 responses, e.g. an unknown
	// category filter or a deleted account. Never retried.
	ErrNotFound = errors.New("api: resource not found")

	// ErrUnavailable is returned for network errors, timeouts and 5xx
	// responses. Safe to retry with backoff.
	ErrUnavailable = errors.New("api: remote unavailable")

	// ErrUnauthorized is returned for HTTP 401/403 responses. Not retried;
	// the token is wrong, not the weather.
	ErrUnauthorized = errors.New("api: unauthorized")
)

// IsNotFound reports whether err indicates a missing remote resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether err is worth retrying against the same cursor.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// ClassifyError returns a label for the error type, used as a metrics label.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "other"
	}
}

// statusError wraps one of the sentinel errors with the HTTP status that
// produced it.
func statusError(sentinel error, status int, url string) error {
	return fmt.Errorf("%w: %d from %s", sentinel, status, url)
}
