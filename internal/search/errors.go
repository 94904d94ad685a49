package search

import "errors"

// ErrSuperseded is returned when a search completes after a newer search was
// dispatched on the same slot. The late result set must be discarded, never
// shown over the newer one.
var ErrSuperseded = errors.New("search superseded by a newer request")

// ValidationError is bad user input, detected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
