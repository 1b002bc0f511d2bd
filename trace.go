package refine

import (
	"context"
	"time"
)

// Trace collects optional hooks invoked by providers during one
// enhancement call, in the manner of net/http/httptrace. Hooks may be
// nil. Hooks are called from the goroutine driving the call; they must
// not block.
type Trace struct {
	// Connecting fires before each connection attempt. attempt is
	// zero-based; a value above zero means a retry.
	Connecting func(attempt int)

	// RetryWait fires before the backoff sleep preceding a retry.
	RetryWait func(attempt int, delay time.Duration, kind Kind)
}

type traceKey struct{}

// WithTrace returns a context carrying the trace. Providers read it with
// ContextTrace; a nil trace is stored as absent.
func WithTrace(ctx context.Context, t *Trace) context.Context {
	if t == nil {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, t)
}

// ContextTrace returns the Trace carried by ctx, or nil.
func ContextTrace(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceKey{}).(*Trace)
	return t
}

// compose returns a Trace that invokes t then next for each hook.
func (t *Trace) compose(next *Trace) *Trace {
	if next == nil {
		return t
	}
	out := &Trace{}
	out.Connecting = func(attempt int) {
		if t.Connecting != nil {
			t.Connecting(attempt)
		}
		if next.Connecting != nil {
			next.Connecting(attempt)
		}
	}
	out.RetryWait = func(attempt int, delay time.Duration, kind Kind) {
		if t.RetryWait != nil {
			t.RetryWait(attempt, delay, kind)
		}
		if next.RetryWait != nil {
			next.RetryWait(attempt, delay, kind)
		}
	}
	return out
}
