package mock

import (
	"io"
	"strings"

	"github.com/refinekit/refine"
)

// Interface compliance check.
var _ refine.Stream = (*Stream)(nil)

// Stream is a test double for refine.Stream.
// Set the function fields for the methods you need. NextFn and ResultFn
// panic when nil to catch missing setup. CloseFn and StateFn are nil-safe
// (no-op and zero value) because test code commonly calls defer stream.Close()
// and these methods rarely need custom behavior.
type Stream struct {
	NextFn   func() (refine.Event, error)
	StateFn  func() refine.StreamState
	ResultFn func() (refine.Result, error)
	CloseFn  func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (refine.Event, error) {
	return s.NextFn()
}

// State delegates to StateFn. Returns StreamStateNew when StateFn is nil.
func (s *Stream) State() refine.StreamState {
	if s.StateFn == nil {
		return refine.StreamStateNew
	}
	return s.StateFn()
}

// Result delegates to ResultFn.
func (s *Stream) Result() (refine.Result, error) {
	return s.ResultFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// ScriptStream returns a Stream that plays the given deltas as
// cumulative EventDelta events, then reports io.EOF and a completed
// Result carrying the concatenated text.
func ScriptStream(deltas ...string) *Stream {
	var (
		i    int
		text strings.Builder
		done bool
	)
	s := &Stream{}
	s.NextFn = func() (refine.Event, error) {
		if i >= len(deltas) {
			done = true
			return nil, io.EOF
		}
		d := deltas[i]
		i++
		text.WriteString(d)
		return refine.EventDelta{Delta: d, Text: text.String()}, nil
	}
	s.StateFn = func() refine.StreamState {
		switch {
		case done:
			return refine.StreamStateComplete
		case i > 0:
			return refine.StreamStateStreaming
		default:
			return refine.StreamStateNew
		}
	}
	s.ResultFn = func() (refine.Result, error) {
		return refine.Result{Text: text.String(), Outcome: refine.OutcomeCompleted}, nil
	}
	return s
}
