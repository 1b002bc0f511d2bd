package refine

import (
	"context"
	"io"
	"sync"
	"time"
)

// State is an observable snapshot of a Session.
type State struct {
	Text       string
	Stage      Stage
	Err        error
	Kind       Kind
	RetryCount int
	Running    bool
}

// Session wraps a Provider with per-call state: accumulated text, the
// display stage, the last classified error, the transport retry count,
// and the most recent request for Regenerate.
//
// Concurrency policy is cancel-then-start: starting a new call while one
// is in flight aborts the previous call before proceeding, so at most
// one network stream is ever active per Session and only the current
// call writes to the accumulator. State mutations from a superseded call
// are discarded.
type Session struct {
	provider Provider

	mu     sync.Mutex
	gen    int
	cancel context.CancelFunc
	last   *Request
	state  State
}

// NewSession creates a Session backed by the given provider.
func NewSession(p Provider) *Session {
	return &Session{provider: p}
}

// RunOption configures a single Run invocation.
type RunOption func(*runConfig)

type runConfig struct {
	onEvent func(Event)
	trace   *Trace
}

// WithEventHandler sets a callback that receives each streaming event
// during the run. If nil or not set, events are silently discarded.
func WithEventHandler(h func(Event)) RunOption {
	return func(c *runConfig) {
		c.onEvent = h
	}
}

// WithRunTrace attaches additional trace hooks for this run, composed
// after the Session's own retry accounting.
func WithRunTrace(t *Trace) RunOption {
	return func(c *runConfig) {
		c.trace = t
	}
}

// Run executes one enhancement call. Any call still in flight on this
// Session is canceled first. The returned error is nil for both
// OutcomeCompleted and OutcomeAborted; cancellation is a normal outcome,
// not a failure.
func (s *Session) Run(ctx context.Context, req Request, opts ...RunOption) (Result, error) {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	r := req
	s.last = &r
	s.state = State{Stage: StageConnecting, Running: true}
	s.mu.Unlock()

	res, err := s.execute(ctx, gen, req, &cfg)

	s.mu.Lock()
	if gen == s.gen {
		s.cancel = nil
		s.state.Running = false
	}
	s.mu.Unlock()
	cancel()
	return res, err
}

// Regenerate re-issues the most recent request. It fails fast with
// ErrNoPreviousRequest, performing no network call, when the Session has
// not run anything yet.
func (s *Session) Regenerate(ctx context.Context, opts ...RunOption) (Result, error) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		return Result{}, ErrNoPreviousRequest
	}
	return s.Run(ctx, *last, opts...)
}

// Cancel aborts the in-flight call, if any. The call terminates with
// OutcomeAborted; no retry is attempted.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}

// State returns a snapshot of the session's observable state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) execute(ctx context.Context, gen int, req Request, cfg *runConfig) (Result, error) {
	trace := &Trace{
		RetryWait: func(attempt int, delay time.Duration, kind Kind) {
			s.mu.Lock()
			if gen == s.gen {
				s.state.RetryCount++
			}
			s.mu.Unlock()
		},
	}
	ctx = WithTrace(ctx, trace.compose(cfg.trace))

	stream, err := s.provider.Enhance(ctx, req)
	if err != nil {
		return s.finishErr(gen, err)
	}
	defer stream.Close()

	for {
		evt, nerr := stream.Next()
		if nerr == io.EOF {
			break
		}
		if nerr != nil {
			// The terminal disposition is captured in stream.Result().
			break
		}
		s.observe(gen, evt)
		if cfg.onEvent != nil {
			cfg.onEvent(evt)
		}
	}

	res, rerr := stream.Result()
	if rerr != nil {
		return s.finishErr(gen, rerr)
	}

	s.mu.Lock()
	if gen == s.gen {
		s.state.Text = res.Text
		if res.Outcome == OutcomeFailed {
			s.state.Kind = res.Kind
			s.state.Err = &Error{Kind: res.Kind, Message: res.Message}
		}
	}
	s.mu.Unlock()

	if res.Outcome == OutcomeFailed {
		return res, &Error{Kind: res.Kind, Message: res.Message}
	}
	return res, nil
}

// finishErr converts a provider error into a terminal Result. Aborts are
// normal outcomes and carry a nil error.
func (s *Session) finishErr(gen int, err error) (Result, error) {
	kind := KindOf(err)
	if kind == KindAbort {
		return Result{Outcome: OutcomeAborted, Kind: KindAbort}, nil
	}
	res := Result{Outcome: OutcomeFailed, Kind: kind, Message: err.Error()}
	s.mu.Lock()
	if gen == s.gen {
		s.state.Kind = kind
		s.state.Err = err
	}
	s.mu.Unlock()
	return res, err
}

// observe folds a streaming event into the session state, unless the
// call has been superseded.
func (s *Session) observe(gen int, evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	switch e := evt.(type) {
	case EventDelta:
		s.state.Text = e.Text
	case EventStage:
		s.state.Stage = e.Stage
	}
}
