package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinekit/refine"
	"github.com/refinekit/refine/openai"
	"github.com/refinekit/refine/retry"
)

// fastPolicy keeps retry tests quick and deterministic.
func fastPolicy(maxRetries int, statuses ...int) retry.Policy {
	return retry.Policy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		Statuses:   statuses,
		Jitter:     func() float64 { return 0.5 },
	}
}

func sseHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}

const helloSSE = "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n\n" +
	"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":12,\"completion_tokens\":3}}\n\n" +
	"data: [DONE]\n\n"

func TestClient_RequestFormat(t *testing.T) {
	t.Parallel()

	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)

		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)

		sseHandler(helloSSE)(w, r)
	}))
	defer srv.Close()

	temp := 0.7
	client := openai.New("test-api-key", openai.WithBaseURL(srv.URL))
	s, err := client.Enhance(context.Background(), refine.Request{
		Content:     "Fix my prompt",
		Mode:        refine.ModeTechnical,
		FileType:    "python",
		Model:       "gpt-4o",
		MaxTokens:   512,
		Temperature: &temp,
	})
	require.NoError(t, err)
	defer s.Close()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(captured, &body))

	assert.Equal(t, "gpt-4o", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, float64(512), body["max_tokens"])
	assert.Equal(t, 0.7, body["temperature"])

	streamOpts := body["stream_options"].(map[string]interface{})
	assert.Equal(t, true, streamOpts["include_usage"])

	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 2)

	sys := msgs[0].(map[string]interface{})
	assert.Equal(t, "system", sys["role"])
	assert.Contains(t, sys["content"], "precise and unambiguous")
	assert.Contains(t, sys["content"], "python")

	user := msgs[1].(map[string]interface{})
	assert.Equal(t, "user", user["role"])
	assert.Equal(t, "Fix my prompt", user["content"])
}

func TestClient_DefaultModel(t *testing.T) {
	t.Parallel()

	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		sseHandler(helloSSE)(w, r)
	}))
	defer srv.Close()

	client := openai.New("k", openai.WithBaseURL(srv.URL))
	s, err := client.Enhance(context.Background(), refine.Request{Content: "hi", Mode: refine.ModeFormal})
	require.NoError(t, err)
	defer s.Close()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(captured, &body))
	assert.Equal(t, "gpt-4.1-mini", body["model"])
}

func TestClient_AttachmentsAsDataURIs(t *testing.T) {
	t.Parallel()

	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		sseHandler(helloSSE)(w, r)
	}))
	defer srv.Close()

	client := openai.New("k", openai.WithBaseURL(srv.URL))
	s, err := client.Enhance(context.Background(), refine.Request{
		Content: "describe this",
		Mode:    refine.ModeCasual,
		Attachments: []refine.Attachment{
			{Name: "dot.png", MimeType: "image/png", Data: []byte{0x89, 0x50}},
		},
	})
	require.NoError(t, err)
	defer s.Close()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(captured, &body))

	user := body["messages"].([]interface{})[1].(map[string]interface{})
	parts := user["content"].([]interface{})
	require.Len(t, parts, 2)

	text := parts[0].(map[string]interface{})
	assert.Equal(t, "text", text["type"])
	assert.Equal(t, "describe this", text["text"])

	img := parts[1].(map[string]interface{})
	assert.Equal(t, "image_url", img["type"])
	url := img["image_url"].(map[string]interface{})["url"].(string)
	assert.Equal(t, "data:image/png;base64,iVA=", url)
}

func TestStream_Events(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(sseHandler(helloSSE))
	defer srv.Close()

	client := openai.New("k", openai.WithBaseURL(srv.URL))
	s, err := client.Enhance(context.Background(), refine.Request{Content: "hi", Mode: refine.ModeFormal})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, refine.StreamStateNew, s.State())

	// First event is the analyzing stage transition.
	evt, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, refine.EventStage{Stage: refine.StageAnalyzing}, evt)
	assert.Equal(t, refine.StreamStateStreaming, s.State())

	evt, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, refine.EventDelta{Delta: "Hi", Text: "Hi"}, evt)

	evt, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, refine.EventDelta{Delta: " there", Text: "Hi there"}, evt)

	// Finalizing fires on the terminal sentinel.
	evt, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, refine.EventStage{Stage: refine.StageFinalizing}, evt)

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, refine.StreamStateComplete, s.State())

	res, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, refine.OutcomeCompleted, res.Outcome)
	assert.Equal(t, "Hi there", res.Text)
	assert.Equal(t, refine.Usage{InputTokens: 12, OutputTokens: 3}, res.Usage)
}

func TestStream_IgnoresNoise(t *testing.T) {
	t.Parallel()

	body := ": keep-alive comment\n" +
		"event: something\n" +
		"\n" +
		"data: {\"choices\":[{\"delta\":{}}]}\n" + // no content
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n" +
		"data: [DONE]\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"after done\"}}]}\n"

	srv := httptest.NewServer(sseHandler(body))
	defer srv.Close()

	client := openai.New("k", openai.WithBaseURL(srv.URL))
	s, err := client.Enhance(context.Background(), refine.Request{Content: "hi", Mode: refine.ModeFormal})
	require.NoError(t, err)
	defer s.Close()

	text := drain(t, s)
	assert.Equal(t, "ok", text, "frames after the sentinel are discarded")
}

func TestStream_SplitFrameAcrossChunks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fl, ok := w.(http.Flusher)
		require.True(t, ok)

		// The JSON frame is split mid-payload across two network writes.
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"cont"))
		fl.Flush()
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write([]byte("ent\":\"whole\"}}]}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	client := openai.New("k", openai.WithBaseURL(srv.URL))
	s, err := client.Enhance(context.Background(), refine.Request{Content: "hi", Mode: refine.ModeFormal})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "whole", drain(t, s))
}

func TestStream_CleanCloseWithoutSentinel(t *testing.T) {
	t.Parallel()

	// A server that closes the connection without [DONE] still yields a
	// completed result; the residual unterminated frame is recovered.
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" tail\"}}]}"

	srv := httptest.NewServer(sseHandler(body))
	defer srv.Close()

	client := openai.New("k", openai.WithBaseURL(srv.URL))
	s, err := client.Enhance(context.Background(), refine.Request{Content: "hi", Mode: refine.ModeFormal})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "partial tail", drain(t, s))

	res, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, refine.OutcomeCompleted, res.Outcome)
}

func TestClient_RateLimitNoRetry(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit exceeded. Please slow down."}}`))
	}))
	defer srv.Close()

	client := openai.New("k", openai.WithBaseURL(srv.URL))
	_, err := client.Enhance(context.Background(), refine.Request{Content: "hi", Mode: refine.ModeFormal})
	require.Error(t, err)

	var e *refine.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, refine.KindRateLimit, e.Kind)
	assert.Equal(t, 429, e.Status)
	assert.Equal(t, "Rate limit exceeded. Please slow down.", e.Message)
	assert.Equal(t, int32(1), attempts.Load(), "429 is never retried")
}

func TestClient_ServerErrorRetriesExhausted(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer srv.Close()

	client := openai.New("k",
		openai.WithBaseURL(srv.URL),
		openai.WithRetryPolicy(fastPolicy(2, 503)),
	)

	var connects atomic.Int32
	ctx := refine.WithTrace(context.Background(), &refine.Trace{
		Connecting: func(attempt int) { connects.Add(1) },
	})

	_, err := client.Enhance(ctx, refine.Request{Content: "hi", Mode: refine.ModeFormal})
	require.Error(t, err)

	var e *refine.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, refine.KindServerError, e.Kind)
	assert.Equal(t, "overloaded", e.Message, "bare-string error body is honored")
	assert.Equal(t, int32(3), attempts.Load(), "initial attempt plus two retries")
	assert.Equal(t, int32(3), connects.Load())
}

func TestClient_BadRequestClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want refine.Kind
	}{
		{name: "too long", body: `{"error":{"message":"This model's maximum context length is exceeded"}}`, want: refine.KindContentTooLong},
		{name: "invalid", body: `{"error":{"message":"invalid request"}}`, want: refine.KindInvalidContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := openai.New("k", openai.WithBaseURL(srv.URL))
			_, err := client.Enhance(context.Background(), refine.Request{Content: "hi", Mode: refine.ModeFormal})
			require.Error(t, err)

			var e *refine.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.want, e.Kind)
			assert.Equal(t, int32(1), attempts.Load(), "400 is never retried")
		})
	}
}

func TestClient_NonJSONErrorBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte("payment required"))
	}))
	defer srv.Close()

	client := openai.New("k", openai.WithBaseURL(srv.URL))
	_, err := client.Enhance(context.Background(), refine.Request{Content: "hi", Mode: refine.ModeFormal})
	require.Error(t, err)

	var e *refine.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, refine.KindPayment, e.Kind)
	assert.Contains(t, e.Message, "402")
}

func TestClient_NetworkErrorRetries(t *testing.T) {
	t.Parallel()

	// Point at a server that is already closed: every dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := openai.New("k",
		openai.WithBaseURL(url),
		openai.WithRetryPolicy(fastPolicy(1)),
	)

	var connects atomic.Int32
	ctx := refine.WithTrace(context.Background(), &refine.Trace{
		Connecting: func(attempt int) { connects.Add(1) },
	})

	_, err := client.Enhance(ctx, refine.Request{Content: "hi", Mode: refine.ModeFormal})
	require.Error(t, err)
	assert.Equal(t, refine.KindNetwork, refine.KindOf(err))
	assert.Equal(t, int32(2), connects.Load(), "initial attempt plus one retry")
}

func TestStream_CancelMidStream(t *testing.T) {
	t.Parallel()

	firstDelta := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fl := w.(http.Flusher)
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\n"))
		fl.Flush()
		close(firstDelta)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := openai.New("k", openai.WithBaseURL(srv.URL))
	s, err := client.Enhance(ctx, refine.Request{Content: "hi", Mode: refine.ModeFormal})
	require.NoError(t, err)
	defer s.Close()

	// Stage event, then the first delta.
	_, err = s.Next()
	require.NoError(t, err)
	evt, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, refine.EventDelta{Delta: "Hi", Text: "Hi"}, evt)

	<-firstDelta
	cancel()

	_, err = s.Next()
	require.Error(t, err)
	assert.Equal(t, refine.KindAbort, refine.KindOf(err))

	res, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, refine.OutcomeAborted, res.Outcome)
	assert.Equal(t, refine.KindAbort, res.Kind)
	assert.Empty(t, res.Text, "aborted results carry no text")
}

func TestClient_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := openai.New("k",
		openai.WithBaseURL(srv.URL),
		openai.WithTimeout(20*time.Millisecond),
	)
	s, err := client.Enhance(context.Background(), refine.Request{Content: "hi", Mode: refine.ModeFormal})
	require.NoError(t, err)
	defer s.Close()

	for {
		_, nerr := s.Next()
		if nerr != nil {
			require.NotEqual(t, io.EOF, nerr)
			assert.Equal(t, refine.KindTimeout, refine.KindOf(nerr))
			break
		}
	}

	res, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, refine.OutcomeFailed, res.Outcome)
	assert.Equal(t, refine.KindTimeout, res.Kind)
}

func TestStream_ResultBeforeData(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(sseHandler(helloSSE))
	defer srv.Close()

	client := openai.New("k", openai.WithBaseURL(srv.URL))
	s, err := client.Enhance(context.Background(), refine.Request{Content: "hi", Mode: refine.ModeFormal})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Result()
	assert.Error(t, err, "result is unavailable before any event")
}

func TestStream_ClosedStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(sseHandler(helloSSE))
	defer srv.Close()

	client := openai.New("k", openai.WithBaseURL(srv.URL))
	s, err := client.Enhance(context.Background(), refine.Request{Content: "hi", Mode: refine.ModeFormal})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.Equal(t, refine.StreamStateClosed, s.State())

	_, err = s.Next()
	assert.ErrorIs(t, err, refine.ErrStreamClosed)

	res, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, refine.OutcomeAborted, res.Outcome)
}

// drain consumes the stream to completion and returns the final text.
func drain(t *testing.T, s refine.Stream) string {
	t.Helper()
	text := ""
	for {
		evt, err := s.Next()
		if err == io.EOF {
			return text
		}
		require.NoError(t, err)
		if d, ok := evt.(refine.EventDelta); ok {
			text = d.Text
		}
	}
}
