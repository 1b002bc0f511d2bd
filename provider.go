// Package refine defines the domain types for the prompt-enhancement
// pipeline: requests, tone modes, streaming events, error classification,
// and the Provider/Stream contracts implemented by gateway backends.
package refine

import "context"

// StreamState indicates the current state of a Stream.
type StreamState int

const (
	StreamStateNew       StreamState = iota // Before Next() is ever called.
	StreamStateStreaming                    // Mid-stream, receiving deltas.
	StreamStateComplete                     // Next() returned io.EOF.
	StreamStateError                        // Next() returned non-EOF error.
	StreamStateClosed                       // Close() called before terminal state.
)

// Stream uses a pull-based iterator pattern. Cancellation flows through the
// context passed to Provider.Enhance().
//
// State() returns the current StreamState. Callers can use it to determine
// whether Result() describes a partial or terminal outcome.
//
// Result() returns the accumulated enhancement. Behavior by stream state:
//   - StreamStateComplete: Outcome = OutcomeCompleted, full text.
//   - StreamStateError: Outcome = OutcomeFailed with the classified Kind,
//     or OutcomeAborted when the failure was context cancellation.
//   - StreamStateStreaming: partial text so far, no terminal outcome yet.
//   - StreamStateNew: zero-value Result, non-nil error.
//   - StreamStateClosed: Outcome = OutcomeAborted with the text received
//     before Close(). If a terminal state was reached first, Result()
//     returns the terminal-state outcome.
type Stream interface {
	Next() (Event, error)
	State() StreamState
	Result() (Result, error)
	Close() error
}

// Provider is a strategy pattern interface for enhancement backends.
// Implementations own transport, retry, and wire-format concerns. The
// text accumulated by the returned Stream is cumulative and append-only
// within one attempt; a transport-level retry starts over from empty.
type Provider interface {
	Enhance(ctx context.Context, req Request) (Stream, error)
}
