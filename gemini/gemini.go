// Package gemini implements [refine.Provider] for the Google Gemini API.
//
// It wraps the google.golang.org/genai SDK, translating between refine's
// domain types and the Gemini API types. Streaming uses the SDK's iter.Seq2
// iterator, wrapped into the pull-based [refine.Stream] interface.
package gemini

const (
	defaultModel     = "gemini-2.5-flash"
	defaultMaxTokens = 8192

	// Deltas received before the stage heuristic flips from analyzing
	// to enhancing.
	enhancingThreshold = 10
)
