package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/refinekit/refine"
	"github.com/refinekit/refine/prompt"
)

// Interface compliance check.
var _ refine.Provider = (*Client)(nil)

// Client implements [refine.Provider] for the Google Gemini API.
//
// The genai SDK handles transport-level retries itself, so unlike the
// OpenAI client there is no retry loop here; failures surface through
// the stream already classified.
type Client struct {
	client   *genai.Client
	model    string
	systemFn func(refine.Request) string
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model ID. Default is gemini-2.5-flash.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithSystemPrompt replaces the system prompt template function.
func WithSystemPrompt(fn func(refine.Request) string) Option {
	return func(c *Client) { c.systemFn = fn }
}

// New creates a new Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c := &Client{
		client:   gc,
		model:    defaultModel,
		systemFn: prompt.System,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Enhance sends a streaming request to the Gemini API and returns a
// [refine.Stream] of enhancement events.
func (c *Client) Enhance(ctx context.Context, req refine.Request) (refine.Stream, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	contents := ConvertRequest(req)
	config := c.buildConfig(req)

	iter := c.client.Models.GenerateContentStream(ctx, model, contents, config)
	return newStream(ctx, iter), nil
}

func (c *Client) buildConfig(req refine.Request) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: c.systemFn(req)}},
		},
	}

	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		config.Temperature = &temp
	}

	return config
}

// ConvertRequest converts a refine Request to genai Contents: the prompt
// text as the leading part, followed by any attachments as inline data.
// Exported for testing.
func ConvertRequest(req refine.Request) []*genai.Content {
	parts := []*genai.Part{{Text: req.Content}}
	for _, a := range req.Attachments {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: a.MimeType,
				Data:     a.Data,
			},
		})
	}
	return []*genai.Content{{Role: "user", Parts: parts}}
}
