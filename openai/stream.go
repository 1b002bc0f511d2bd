package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/refinekit/refine"
)

// stream implements [refine.Stream] by reading the response body in raw
// chunks and driving the LineDecoder/frame parser loop. Text accumulates
// monotonically; nothing observed after the terminal sentinel is ever
// appended.
type stream struct {
	body   io.ReadCloser
	ctx    context.Context
	cancel context.CancelFunc
	dec    LineDecoder
	rbuf   []byte

	queue  []refine.Event
	state  refine.StreamState
	text   strings.Builder
	deltas int
	stage  refine.Stage
	usage  refine.Usage
	done   bool // sentinel observed; remaining frames are discarded
	eof    bool
	kind   refine.Kind
	err    error
}

// Interface compliance check.
var _ refine.Stream = (*stream)(nil)

func newStream(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser) *stream {
	s := &stream{
		body:   body,
		ctx:    ctx,
		cancel: cancel,
		rbuf:   make([]byte, 4096),
		state:  refine.StreamStateNew,
		stage:  refine.StageAnalyzing,
	}
	s.queue = append(s.queue, refine.EventStage{Stage: refine.StageAnalyzing})
	return s
}

// Next returns the next semantic event. Returns io.EOF when the stream
// completes normally (terminal sentinel or clean connection close).
func (s *stream) Next() (refine.Event, error) {
	switch s.state {
	case refine.StreamStateComplete:
		return nil, io.EOF
	case refine.StreamStateError:
		return nil, s.err
	case refine.StreamStateClosed:
		return nil, fmt.Errorf("openai: %w", refine.ErrStreamClosed)
	}

	for {
		if len(s.queue) > 0 {
			evt := s.queue[0]
			s.queue = s.queue[1:]
			s.state = refine.StreamStateStreaming
			return evt, nil
		}
		if s.done || s.eof {
			s.state = refine.StreamStateComplete
			return nil, io.EOF
		}

		// Cancellation is checked at every read iteration.
		if err := s.ctx.Err(); err != nil {
			s.terminate(err)
			return nil, s.err
		}

		n, err := s.body.Read(s.rbuf)
		if n > 0 {
			s.ingest(s.rbuf[:n])
		}
		if err == io.EOF {
			s.eof = true
			s.flush()
		} else if err != nil {
			s.terminate(err)
			return nil, s.err
		}
	}
}

// ingest runs decoded lines through the frame parser. The last extracted
// line is pushed back on parse failure (split-frame boundary); a failing
// line with complete lines after it is genuinely malformed and skipped
// without failing the stream.
func (s *stream) ingest(p []byte) {
	lines := s.dec.Write(p)
	for i, line := range lines {
		if s.done {
			return
		}
		f := parseFrame(line)
		if f.kind == frameBad && i == len(lines)-1 {
			s.dec.PushBack(line)
			return
		}
		s.apply(f)
	}
}

// flush best-effort parses the residual unterminated line at stream end.
// A line that still fails to parse is silently ignored.
func (s *stream) flush() {
	line, ok := s.dec.Flush()
	if !ok || s.done {
		return
	}
	s.apply(parseFrame(line))
}

func (s *stream) apply(f frame) {
	if f.usage != nil {
		s.usage = *f.usage
	}
	switch f.kind {
	case frameDone:
		s.done = true
		s.setStage(refine.StageFinalizing)
	case frameDelta:
		s.text.WriteString(f.delta)
		s.deltas++
		s.queue = append(s.queue, refine.EventDelta{Delta: f.delta, Text: s.text.String()})
		if s.deltas > enhancingThreshold {
			s.setStage(refine.StageEnhancing)
		}
	}
}

func (s *stream) setStage(stage refine.Stage) {
	if s.stage == stage {
		return
	}
	s.stage = stage
	s.queue = append(s.queue, refine.EventStage{Stage: stage})
}

// terminate records a terminal error. Context cancellation maps to an
// aborted outcome, everything else to a classified failure.
func (s *stream) terminate(err error) {
	s.state = refine.StreamStateError
	kind := refine.Classify(0, err.Error(), err)
	if s.ctx.Err() != nil {
		kind = refine.Classify(0, "", s.ctx.Err())
	}
	s.kind = kind
	if kind == refine.KindAbort {
		s.err = err
		return
	}
	s.err = &refine.Error{Kind: kind, Message: err.Error()}
}

// State returns the current stream state.
func (s *stream) State() refine.StreamState {
	return s.state
}

// Result returns the terminal outcome. Partial text is discarded for
// aborted and failed outcomes; consumers that rendered deltas already
// have it.
func (s *stream) Result() (refine.Result, error) {
	switch s.state {
	case refine.StreamStateNew:
		return refine.Result{}, fmt.Errorf("openai: no data received yet")
	case refine.StreamStateComplete:
		return refine.Result{
			Text:    s.text.String(),
			Outcome: refine.OutcomeCompleted,
			Usage:   s.usage,
		}, nil
	case refine.StreamStateError:
		if s.kind == refine.KindAbort {
			return refine.Result{Outcome: refine.OutcomeAborted, Kind: refine.KindAbort}, nil
		}
		msg := s.err.Error()
		var e *refine.Error
		if errors.As(s.err, &e) {
			msg = e.Message
		}
		return refine.Result{Outcome: refine.OutcomeFailed, Kind: s.kind, Message: msg}, nil
	case refine.StreamStateClosed:
		return refine.Result{Outcome: refine.OutcomeAborted, Kind: refine.KindAbort}, nil
	}
	return refine.Result{Text: s.text.String(), Outcome: refine.OutcomePending}, nil
}

// Close closes the underlying response body and releases the per-call
// deadline, if any.
func (s *stream) Close() error {
	if s.state != refine.StreamStateComplete && s.state != refine.StreamStateError {
		s.state = refine.StreamStateClosed
	}
	if s.cancel != nil {
		s.cancel()
	}
	return s.body.Close()
}
