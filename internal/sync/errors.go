package sync

import "fmt"

// ErrorKind classifies a sync failure for API status mapping.
type ErrorKind string

const (
	// ErrInProgress means another sync already holds the listing lock.
	ErrInProgress ErrorKind = "in_progress"
	// ErrCredential means no usable access token could be acquired.
	ErrCredential ErrorKind = "credential"
	// ErrUpstream means the booking source could not be reached or
	// returned an error for the whole fetch.
	ErrUpstream ErrorKind = "upstream"
	// ErrNotFound means the listing does not exist.
	ErrNotFound ErrorKind = "not_found"
	// ErrDisabled means the listing exists but syncing is turned off.
	ErrDisabled ErrorKind = "disabled"
	// ErrValidation means the listing record itself is unusable, for
	// example a missing upstream property id.
	ErrValidation ErrorKind = "validation"
)

// Error is a sync failure with a classification the handlers map to
// HTTP statuses and the scheduler uses for logging.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sync %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("sync %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }
