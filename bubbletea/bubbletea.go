// Package bubbletea provides a Bubble Tea TUI for interactive prompt
// enhancement.
package bubbletea

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/refinekit/refine"
)

// EnhanceFunc starts one enhancement run. The onEvent callback is called
// for each streaming event. The function blocks until the run completes
// or the context is cancelled.
type EnhanceFunc func(ctx context.Context, req refine.Request, onEvent func(refine.Event)) error

// RegenerateFunc re-runs the last enhancement. Same contract as
// [EnhanceFunc]; fails with [refine.ErrNoPreviousRequest] when nothing
// has been run yet.
type RegenerateFunc func(ctx context.Context, onEvent func(refine.Event)) error

// Run creates and runs the Bubble Tea TUI program. It blocks until the
// program exits. When the context is cancelled, the program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// StreamEventMsg wraps a streaming event for delivery to the Bubble Tea model.
type StreamEventMsg struct {
	Event refine.Event
}

// EnhanceDoneMsg signals that the enhancement run has completed.
type EnhanceDoneMsg struct {
	Err error
}
