// Command refine is a terminal client for streaming prompt enhancement.
//
// Usage:
//
//	OPENAI_API_KEY=sk-... refine [flags] [prompt]
//	GEMINI_API_KEY=gk-... refine -provider gemini [flags] [prompt]
//
// With a prompt argument (or -plain) the enhanced text streams to
// stdout; without one an interactive TUI starts.
//
// Flags:
//
//	-provider string   Provider: openai, gemini (auto-detected from env vars if omitted)
//	-model string      Model ID (default: provider default)
//	-mode string       Enhancement mode: formal, casual, creative, technical, concise
//	-type string       File type hint (e.g. "python", "email")
//	-attach glob       Image attachment glob, repeatable (png, jpg, gif, webp)
//	-base-url string   Override the OpenAI-compatible API base URL
//	-api-key string    API key (overrides provider's env var)
//	-timeout duration  Overall per-call deadline (0 = none)
//	-history string    History database path (default ~/.refine/history.db)
//	-export string     Export history to a JSON file and exit
//	-plain             Non-interactive mode: read prompt from args or stdin
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/refinekit/refine"
	"github.com/refinekit/refine/attach"
	bt "github.com/refinekit/refine/bubbletea"
	"github.com/refinekit/refine/history"
	refinejson "github.com/refinekit/refine/json"
	"github.com/refinekit/refine/ratelimit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "refine: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		providerFlag = flag.String("provider", "", "Provider: openai, gemini (auto-detected from env vars if omitted)")
		model        = flag.String("model", "", "Model ID (provider-specific)")
		modeFlag     = flag.String("mode", string(refine.ModeFormal), "Enhancement mode")
		fileType     = flag.String("type", "", "File type hint")
		baseURL      = flag.String("base-url", "", "Override the OpenAI-compatible API base URL")
		apiKey       = flag.String("api-key", "", "API key (overrides provider's env var)")
		timeout      = flag.Duration("timeout", 0, "Overall per-call deadline (0 = none)")
		historyPath  = flag.String("history", defaultHistoryPath(), "History database path")
		exportPath   = flag.String("export", "", "Export history to a JSON file and exit")
		plain        = flag.Bool("plain", false, "Non-interactive mode: read prompt from args or stdin")
	)
	var attachGlobs []string
	flag.Func("attach", "Image attachment glob, repeatable", func(v string) error {
		attachGlobs = append(attachGlobs, v)
		return nil
	})
	flag.Parse()

	// Handle OS signals for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := history.Open(*historyPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if *exportPath != "" {
		return exportHistory(store, *exportPath)
	}

	mode := refine.Mode(*modeFlag)
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q: must be one of %s", *modeFlag, modeList())
	}

	attachments, err := attach.Resolve(attachGlobs)
	if err != nil {
		return err
	}

	provider, err := resolveProvider(ctx, providerConfig{
		Provider:     *providerFlag,
		Model:        *model,
		BaseURL:      *baseURL,
		APIKey:       *apiKey,
		OpenAIEnvKey: os.Getenv("OPENAI_API_KEY"),
		GeminiEnvKey: os.Getenv("GEMINI_API_KEY"),
		Timeout:      *timeout,
	})
	if err != nil {
		return err
	}
	provider = ratelimit.Wrap(provider, ratelimit.Default(), "local")

	session := refine.NewSession(provider)

	if *plain || flag.NArg() > 0 {
		content, err := plainContent(flag.Args())
		if err != nil {
			return err
		}
		req := refine.Request{
			Content:     content,
			Mode:        mode,
			FileType:    *fileType,
			Attachments: attachments,
		}
		return runPlain(ctx, session, store, req)
	}

	return runTUI(ctx, session, store, mode, *fileType, attachments)
}

// runPlain streams the enhanced text to stdout and exits.
func runPlain(ctx context.Context, session *refine.Session, store *history.Store, req refine.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	res, err := session.Run(ctx, req, refine.WithEventHandler(func(evt refine.Event) {
		if d, ok := evt.(refine.EventDelta); ok {
			fmt.Print(d.Delta)
		}
	}))
	if err != nil {
		fmt.Println()
		return err
	}
	fmt.Println()

	switch res.Outcome {
	case refine.OutcomeAborted:
		fmt.Fprintln(os.Stderr, "refine: canceled")
		return nil
	case refine.OutcomeCompleted:
		saveRecord(store, req, res)
		if res.Usage != (refine.Usage{}) {
			fmt.Fprintf(os.Stderr, "tokens: %d in / %d out\n", res.Usage.InputTokens, res.Usage.OutputTokens)
		}
	}
	return nil
}

// runTUI starts the interactive program, saving completed enhancements
// to history as a side effect of each run.
func runTUI(ctx context.Context, session *refine.Session, store *history.Store, mode refine.Mode, fileType string, attachments []refine.Attachment) error {
	enhanceFn := func(ctx context.Context, req refine.Request, onEvent func(refine.Event)) error {
		res, err := session.Run(ctx, req, refine.WithEventHandler(onEvent))
		if err == nil && res.Outcome == refine.OutcomeCompleted {
			saveRecord(store, req, res)
		}
		return err
	}
	regenFn := func(ctx context.Context, onEvent func(refine.Event)) error {
		_, err := session.Regenerate(ctx, refine.WithEventHandler(onEvent))
		return err
	}

	tuiModel := bt.New(enhanceFn, regenFn, refine.DefaultTheme(),
		bt.WithMode(mode),
		bt.WithFileType(fileType),
		bt.WithAttachments(attachments),
		bt.WithStateFunc(session.State),
	)

	if err := bt.Run(ctx, tuiModel); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	return nil
}

// saveRecord persists a completed enhancement. History is best-effort;
// a write failure must not fail the enhancement itself.
func saveRecord(store *history.Store, req refine.Request, res refine.Result) {
	_, err := store.Save(history.Record{
		Original: req.Content,
		Enhanced: res.Text,
		Mode:     req.Mode,
		FileType: req.FileType,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "refine: save history: %v\n", err)
	}
}

func exportHistory(store *history.Store, path string) error {
	recs, err := store.List(0)
	if err != nil {
		return err
	}
	if err := refinejson.Save(path, recs); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported %d records to %s\n", len(recs), path)
	return nil
}

// plainContent joins prompt args, falling back to stdin when none given.
func plainContent(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".refine", "history.db")
}

func modeList() string {
	modes := refine.Modes()
	parts := make([]string, len(modes))
	for i, m := range modes {
		parts[i] = string(m)
	}
	return strings.Join(parts, ", ")
}
