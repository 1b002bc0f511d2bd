package bubbletea

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/refinekit/refine"
)

var _ MessageBlock = (*PromptBlock)(nil)

// PromptBlock renders the submitted prompt with a "> " prefix and the
// mode it was submitted under.
type PromptBlock struct {
	text   string
	mode   refine.Mode
	styles Styles
}

// NewPromptBlock creates a PromptBlock.
func NewPromptBlock(text string, mode refine.Mode, styles Styles) *PromptBlock {
	return &PromptBlock{text: text, mode: mode, styles: styles}
}

func (b *PromptBlock) Update(msg tea.Msg) (MessageBlock, tea.Cmd) {
	return b, nil
}

func (b *PromptBlock) View(width int) string {
	content := b.styles.Input.Render("> ") + b.text +
		" " + b.styles.Muted.Render("["+string(b.mode)+"]")
	return lipgloss.NewStyle().Width(width).Render(content)
}
