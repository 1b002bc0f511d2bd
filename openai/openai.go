// Package openai implements [refine.Provider] against an OpenAI-compatible
// chat-completions gateway. Responses stream as server-sent events of the
// form `data: {json}` terminated by `data: [DONE]`; the package owns the
// chunk decoding, frame parsing, failure classification, and bounded
// retry of the upstream call.
package openai

import "encoding/json"

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	completionsPath = "/chat/completions"
	defaultModel    = "gpt-4.1-mini"
)

// Display stage advances from analyzing to enhancing once more than this
// many deltas have arrived. Heuristic, not correctness-bearing.
const enhancingThreshold = 10

type apiRequest struct {
	Model         string            `json:"model"`
	Messages      []apiMessage      `json:"messages"`
	Stream        bool              `json:"stream"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	StreamOptions *apiStreamOptions `json:"stream_options,omitempty"`
}

type apiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// apiMessage carries either a plain string or a part list in Content,
// matching the chat-completions content union.
type apiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type apiContentPart struct {
	Type     string       `json:"type"` // "text" or "image_url"
	Text     string       `json:"text,omitempty"`
	ImageURL *apiImageURL `json:"image_url,omitempty"`
}

type apiImageURL struct {
	URL string `json:"url"`
}

// apiChunk is one streamed completion frame.
type apiChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *apiUsage `json:"usage"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// apiErrorEnvelope tolerates both error-body shapes seen from gateways:
// a bare string (`{"error":"slow down"}`) and the object form with a
// message field.
type apiErrorEnvelope struct {
	Error json.RawMessage `json:"error"`
}
