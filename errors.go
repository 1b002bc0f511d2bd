package refine

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request failed validation.
	ErrValidation = errors.New("validation error")

	// ErrNoPreviousRequest indicates Regenerate() was called on a session
	// that has not run anything yet.
	ErrNoPreviousRequest = errors.New("no previous request to regenerate")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")
)
