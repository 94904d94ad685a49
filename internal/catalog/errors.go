package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is a non-2xx backend response. Message carries the server-provided
// error text when the body was parseable JSON, else a synthesized
// "HTTP <status>: <statusText>" message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NetworkError is a transport failure other than a timeout.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError is reported after the per-attempt timeout fired on every
// attempt, retries included.
type TimeoutError struct {
	URL      string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %d attempt(s)", e.URL, e.Attempts)
}

// newAPIError builds an APIError from a non-2xx response body.
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &APIError{Status: status, Message: payload.Error}
	}
	return &APIError{Status: status, Message: fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))}
}
