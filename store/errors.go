package store

import "errors"

// Error kinds returned by lifecycle operations. All are recoverable by
// the caller; none are retried by the engine itself. Callers test them
// with errors.Is.
var (
	// ErrNotFound reports an unknown task id.
	ErrNotFound = errors.New("not found")

	// ErrConflict reports that a transition guard failed: another
	// caller owns the task or changed its status first.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition reports an operation that is not defined
	// for the task's current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrValidation reports bad input, such as a self-blocking edge
	// or an unmarshalable metadata payload.
	ErrValidation = errors.New("invalid input")
)
