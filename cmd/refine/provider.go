package main

import (
	"context"
	"fmt"
	"time"

	"github.com/refinekit/refine"
	"github.com/refinekit/refine/gemini"
	"github.com/refinekit/refine/openai"
)

// providerConfig carries the resolved provider settings. All env var
// values are passed in as fields; env is only read in main().
type providerConfig struct {
	Provider     string
	Model        string
	BaseURL      string
	APIKey       string
	OpenAIEnvKey string
	GeminiEnvKey string
	Timeout      time.Duration
}

// resolveProvider selects and constructs the provider.
func resolveProvider(ctx context.Context, cfg providerConfig) (refine.Provider, error) {
	provider := cfg.Provider

	// Auto-detect from env vars if no flag.
	if provider == "" {
		hasOpenAI := cfg.OpenAIEnvKey != ""
		hasGemini := cfg.GeminiEnvKey != ""
		switch {
		case hasOpenAI && hasGemini:
			return nil, fmt.Errorf("multiple API keys found (OPENAI_API_KEY, GEMINI_API_KEY): use -provider flag to select")
		case hasOpenAI:
			provider = "openai"
		case hasGemini:
			provider = "gemini"
		default:
			return nil, fmt.Errorf("no API key found: set OPENAI_API_KEY or GEMINI_API_KEY (or use -provider and -api-key flags)")
		}
	}

	// Resolve API key: explicit flag overrides env var.
	key := cfg.APIKey
	switch provider {
	case "openai":
		if key == "" {
			key = cfg.OpenAIEnvKey
		}
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set (use -api-key flag or environment variable)")
		}
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(cfg.Timeout))
		}
		return openai.New(key, opts...), nil
	case "gemini":
		if key == "" {
			key = cfg.GeminiEnvKey
		}
		if key == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not set (use -api-key flag or environment variable)")
		}
		var opts []gemini.Option
		if cfg.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.Model))
		}
		client, err := gemini.New(ctx, key, opts...)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown provider %q: must be \"openai\" or \"gemini\"", provider)
	}
}
