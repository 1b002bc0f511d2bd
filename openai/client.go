package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/refinekit/refine"
	"github.com/refinekit/refine/prompt"
	"github.com/refinekit/refine/retry"
)

// Interface compliance check.
var _ refine.Provider = (*Client)(nil)

// Client implements [refine.Provider] for OpenAI-compatible gateways.
//
// Connection failures and retryable statuses are retried with jittered
// exponential backoff before a stream is handed out; once streaming has
// begun, failures are terminal. The default policy excludes 429 from the
// retryable set so rate limits surface immediately as a classified
// failure instead of burning the retry budget.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	policy     retry.Policy
	timeout    time.Duration
	systemFn   func(refine.Request) string
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithModel sets the default model ID.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithRetryPolicy replaces the retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithTimeout imposes an overall deadline on each call, covering both
// the connection attempts and the full stream. Zero means no deadline
// beyond the transport's own. Expiry classifies as a timeout failure,
// distinct from user cancellation.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithSystemPrompt replaces the system prompt template function.
func WithSystemPrompt(fn func(refine.Request) string) Option {
	return func(c *Client) { c.systemFn = fn }
}

// New creates a new [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	p := retry.Default()
	p.Statuses = []int{408, 500, 502, 503, 504}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: http.DefaultClient,
		policy:     p,
		systemFn:   prompt.System,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Enhance issues the streaming completion request and returns a
// [refine.Stream] of enhancement events. The request body is serialized
// once; retried attempts re-send it verbatim.
func (c *Client) Enhance(ctx context.Context, req refine.Request) (refine.Stream, error) {
	body, err := c.buildRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	resp, err := c.connect(ctx, body)
	if err != nil {
		cancel()
		return nil, err
	}
	return newStream(ctx, cancel, resp.Body), nil
}

// connect performs the request/classify/retry loop and returns a 200
// response ready for streaming.
func (c *Client) connect(ctx context.Context, body []byte) (*http.Response, error) {
	trace := refine.ContextTrace(ctx)
	url := c.baseURL + completionsPath

	for attempt := 0; ; attempt++ {
		if trace != nil && trace.Connecting != nil {
			trace.Connecting(attempt)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			kind := refine.Classify(0, err.Error(), err)
			e := &refine.Error{Kind: kind, Message: err.Error()}
			if kind != refine.KindNetwork || !c.policy.ShouldRetry(attempt) {
				return nil, e
			}
			if err := c.wait(ctx, trace, attempt, kind); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			msg := errorMessage(resp)
			kind := refine.Classify(resp.StatusCode, msg, nil)
			e := &refine.Error{Kind: kind, Status: resp.StatusCode, Message: msg}
			if !c.policy.RetryStatus(resp.StatusCode) || !c.policy.ShouldRetry(attempt) {
				return nil, e
			}
			if err := c.wait(ctx, trace, attempt, kind); err != nil {
				return nil, err
			}
			continue
		}

		return resp, nil
	}
}

// wait sleeps for the backoff delay. Cancellation during the sleep is
// honored and reported as abort (or timeout for an expired deadline).
func (c *Client) wait(ctx context.Context, trace *refine.Trace, attempt int, kind refine.Kind) error {
	delay := c.policy.Backoff(attempt)
	if trace != nil && trace.RetryWait != nil {
		trace.RetryWait(attempt, delay, kind)
	}
	if err := retry.Sleep(ctx, delay); err != nil {
		k := refine.Classify(0, "", err)
		if k == refine.KindAbort {
			return err
		}
		return &refine.Error{Kind: k, Message: err.Error()}
	}
	return nil
}

func (c *Client) buildRequestBody(req refine.Request) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	apiReq := apiRequest{
		Model: model,
		Messages: []apiMessage{
			{Role: "system", Content: c.systemFn(req)},
			{Role: "user", Content: userContent(req)},
		},
		Stream:        true,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		StreamOptions: &apiStreamOptions{IncludeUsage: true},
	}
	return json.Marshal(apiReq)
}

// userContent returns a plain string for text-only requests and a part
// list when attachments ride along as base64 data URIs.
func userContent(req refine.Request) any {
	if len(req.Attachments) == 0 {
		return req.Content
	}
	parts := []apiContentPart{{Type: "text", Text: req.Content}}
	for _, a := range req.Attachments {
		uri := "data:" + a.MimeType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
		parts = append(parts, apiContentPart{Type: "image_url", ImageURL: &apiImageURL{URL: uri}})
	}
	return parts
}

// errorMessage extracts the failure message from a non-2xx response. The
// body's `error` field is used when present, else a generic message
// carrying the status. The body is always drained and closed.
func errorMessage(resp *http.Response) string {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil {
		var env apiErrorEnvelope
		if json.Unmarshal(body, &env) == nil && len(env.Error) > 0 {
			var s string
			if json.Unmarshal(env.Error, &s) == nil && s != "" {
				return s
			}
			var obj struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(env.Error, &obj) == nil && obj.Message != "" {
				return obj.Message
			}
		}
	}
	return fmt.Sprintf("Request failed: %d", resp.StatusCode)
}
