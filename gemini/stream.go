package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/refinekit/refine"
)

// Interface compliance check.
var _ refine.Stream = (*stream)(nil)

// stream implements [refine.Stream] by wrapping the genai SDK's
// streaming iterator. Chunk text is accumulated and re-emitted as
// cumulative delta events, mirroring the OpenAI stream's behavior so
// callers see the same event shapes from both providers.
type stream struct {
	ctx   context.Context
	pull  func() (*genai.GenerateContentResponse, error, bool)
	stop  func()
	queue  []refine.Event
	state  refine.StreamState
	text   strings.Builder
	deltas int
	stage  refine.Stage
	usage  refine.Usage
	kind   refine.Kind
	err    error
}

func newStream(ctx context.Context, iterFn iter.Seq2[*genai.GenerateContentResponse, error]) *stream {
	next, stop := iter.Pull2(iterFn)
	s := &stream{
		ctx:   ctx,
		pull:  next,
		stop:  stop,
		state: refine.StreamStateNew,
	}
	s.setStage(refine.StageAnalyzing)
	return s
}

func (s *stream) Next() (refine.Event, error) {
	for {
		if len(s.queue) > 0 {
			evt := s.queue[0]
			s.queue = s.queue[1:]
			if s.state == refine.StreamStateNew {
				s.state = refine.StreamStateStreaming
			}
			return evt, nil
		}

		switch s.state {
		case refine.StreamStateComplete:
			return nil, io.EOF
		case refine.StreamStateError:
			return nil, s.err
		case refine.StreamStateClosed:
			return nil, refine.ErrStreamClosed
		}

		if err := s.ctx.Err(); err != nil {
			return nil, s.terminate(err)
		}

		resp, err, ok := s.pull()
		if !ok {
			s.setStage(refine.StageFinalizing)
			s.state = refine.StreamStateComplete
			continue
		}
		if err != nil {
			return nil, s.terminate(err)
		}
		s.apply(resp)
	}
}

// apply folds one response chunk into the stream: usage metadata, text
// deltas, and the stage heuristic.
func (s *stream) apply(resp *genai.GenerateContentResponse) {
	if resp.UsageMetadata != nil {
		s.usage = refine.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text == "" || part.Thought {
			continue
		}
		s.text.WriteString(part.Text)
		s.deltas++
		s.queue = append(s.queue, refine.EventDelta{Delta: part.Text, Text: s.text.String()})
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

// terminate moves the stream to the error state, classifying the
// failure. Context errors take precedence so a cancellation mid-pull is
// always reported as abort (or timeout) regardless of what the SDK
// surfaced.
func (s *stream) terminate(err error) error {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		err = ctxErr
	}

	status := 0
	msg := err.Error()
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.Code
		if apiErr.Message != "" {
			msg = apiErr.Message
		}
	}

	s.state = refine.StreamStateError
	s.kind = refine.Classify(status, msg, err)
	s.err = &refine.Error{Kind: s.kind, Status: status, Message: msg}
	return s.err
}

func (s *stream) State() refine.StreamState {
	return s.state
}

func (s *stream) Result() (refine.Result, error) {
	switch s.state {
	case refine.StreamStateNew:
		return refine.Result{}, fmt.Errorf("gemini: no data received yet")
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
		var e *refine.Error
		msg := s.err.Error()
		if errors.As(s.err, &e) {
			msg = e.Message
		}
		return refine.Result{Outcome: refine.OutcomeFailed, Kind: s.kind, Message: msg}, nil
	case refine.StreamStateClosed:
		return refine.Result{Outcome: refine.OutcomeAborted, Kind: refine.KindAbort}, nil
	}
	return refine.Result{Text: s.text.String(), Outcome: refine.OutcomePending}, nil
}

func (s *stream) Close() error {
	if s.state != refine.StreamStateComplete && s.state != refine.StreamStateError {
		s.state = refine.StreamStateClosed
	}
	s.stop()
	return nil
}
