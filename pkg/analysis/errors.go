package analysis

import (
	"errors"
	"fmt"
)

// Errors returned by the client.
var (
	// ErrNetwork indicates the server could not be reached.
	ErrNetwork = errors.New("network error communicating with the model server")

	// ErrInvalidResponse indicates the reply could not be understood.
	ErrInvalidResponse = errors.New("invalid response from the model server")

	// ErrNoAnalyzer is returned when analysis is requested with no
	// analyzer configured.
	ErrNoAnalyzer = errors.New("no analyzer configured")
)

// APIError is a non-2xx reply from the model server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("model server error: %d %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err is worth retrying later.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
