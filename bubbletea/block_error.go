package bubbletea

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/refinekit/refine"
)

var _ MessageBlock = (*ErrorBlock)(nil)

// ErrorBlock renders a failed enhancement with a hint keyed off the
// error kind.
type ErrorBlock struct {
	err    error
	styles Styles
}

// NewErrorBlock creates an ErrorBlock.
func NewErrorBlock(err error, styles Styles) *ErrorBlock {
	return &ErrorBlock{err: err, styles: styles}
}

func (b *ErrorBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *ErrorBlock) View(width int) string {
	content := b.styles.Error.Render(fmt.Sprintf("Error: %v", b.err))
	if hint := kindHint(b.err); hint != "" {
		content += "\n" + b.styles.Muted.Render(hint)
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}

func kindHint(err error) string {
	var e *refine.Error
	if !errors.As(err, &e) {
		return ""
	}
	switch e.Kind {
	case refine.KindRateLimit:
		return "Wait a moment before trying again."
	case refine.KindPayment:
		return "Check your account balance or plan."
	case refine.KindContentTooLong:
		return "Shorten the prompt and retry."
	case refine.KindNetwork, refine.KindTimeout, refine.KindServerError:
		return "Press Ctrl+R to retry."
	}
	return ""
}
