package bubbletea

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/refinekit/refine"
)

var _ tea.Model = Model{}

// Model is the Bubble Tea model for the refine TUI.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable output area. Exported for test access.
	Viewport viewport.Model

	run    EnhanceFunc
	regen  RegenerateFunc
	state  func() refine.State
	theme  refine.Theme
	styles Styles

	mode        refine.Mode
	fileType    string
	attachments []refine.Attachment

	blocks []MessageBlock
	output *OutputBlock // active output block for the current run

	running bool
	stage   refine.Stage
	cancel  context.CancelFunc
	eventCh chan refine.Event
	doneCh  chan error
	err     error
	ready   bool
}

// ModelOption configures a [Model].
type ModelOption func(*Model)

// WithMode sets the starting enhancement mode. Default is formal.
func WithMode(mode refine.Mode) ModelOption {
	return func(m *Model) { m.mode = mode }
}

// WithFileType sets the file type hint attached to every request.
func WithFileType(ft string) ModelOption {
	return func(m *Model) { m.fileType = ft }
}

// WithAttachments sets the attachments sent with every request.
func WithAttachments(atts []refine.Attachment) ModelOption {
	return func(m *Model) { m.attachments = atts }
}

// WithStateFunc sets the snapshot source used for the retry counter in
// the status line. Typically (*refine.Session).State.
func WithStateFunc(fn func() refine.State) ModelOption {
	return func(m *Model) { m.state = fn }
}

// New creates a new TUI Model with the given run functions and theme.
func New(run EnhanceFunc, regen RegenerateFunc, theme refine.Theme, opts ...ModelOption) Model {
	ti := textinput.New()
	ti.Placeholder = "Enter a prompt to enhance..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	m := Model{
		Input:  ti,
		run:    run,
		regen:  regen,
		theme:  theme,
		styles: NewStyles(theme),
		mode:   refine.ModeFormal,
	}
	for _, o := range opts {
		o(&m)
	}
	return m
}

// Running returns whether an enhancement is currently running.
func (m Model) Running() bool { return m.running }

// Err returns the last error, if any.
func (m Model) Err() error { return m.err }

// Mode returns the currently selected enhancement mode.
func (m Model) Mode() refine.Mode { return m.mode }

// SetRunning is a test helper that puts the model in a running state.
func SetRunning(m Model) (Model, tea.Cmd) {
	m.running = true
	return m, nil
}

// SetRunningWithCancel is a test helper that puts the model in a running state
// with a cancel function.
func SetRunningWithCancel(m Model, cancel func()) (Model, tea.Cmd) {
	m.running = true
	m.cancel = cancel
	return m, nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.handleWindowSize(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamEventMsg:
		m = m.processEvent(msg.Event)
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		if m.eventCh != nil {
			return m, listenForEvent(m.eventCh, m.doneCh)
		}
		return m, nil

	case EnhanceDoneMsg:
		m.running = false
		m.cancel = nil
		m.eventCh = nil
		m.doneCh = nil
		m.output = nil
		if msg.Err != nil && !isAbort(msg.Err) {
			m.err = msg.Err
			m.blocks = append(m.blocks, NewErrorBlock(msg.Err, m.styles))
			m.Viewport.SetContent(m.renderContent())
			m.Viewport.GotoBottom()
		}
		cmd := m.Input.Focus()
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	// Pass remaining messages to sub-components.
	// Viewport always receives messages for scrolling (keyboard and mouse).
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	if !m.running {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder

	// Output area.
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")

	// Status line.
	b.WriteString(m.statusLine())
	b.WriteString("\n")

	// Input area.
	b.WriteString(m.Input.View())

	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputH := 1
	statusHeight := 1
	borderHeight := 2 // newlines between sections
	vpHeight := msg.Height - inputH - statusHeight - borderHeight

	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m.Viewport.SetContent(m.renderContent())
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
		// Blocks wrap to the viewport width, so content must be
		// re-rendered after a resize.
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
	}

	m.Input.Width = msg.Width
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEnter:
		if m.running {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		return m.submitInput(text)

	case tea.KeyCtrlR:
		if m.running || m.regen == nil {
			return m, nil
		}
		return m.regenerate()

	case tea.KeyTab:
		if !m.running {
			m.mode = nextMode(m.mode)
		}
		return m, nil
	}

	// When idle, pass keys to both the input (for typing) and viewport
	// (for scrolling). Only forward non-character keys to viewport to avoid
	// conflicts (e.g. 'j'/'k' are viewport scroll AND text characters).
	if !m.running {
		var cmd tea.Cmd
		var cmds []tea.Cmd

		if msg.Type != tea.KeyRunes {
			m.Viewport, cmd = m.Viewport.Update(msg)
			cmds = append(cmds, cmd)
		}

		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)

		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m Model) submitInput(text string) (tea.Model, tea.Cmd) {
	m.Input.SetValue("")

	req := refine.Request{
		Content:     text,
		Mode:        m.mode,
		FileType:    m.fileType,
		Attachments: m.attachments,
	}
	if err := req.Validate(); err != nil {
		m.err = err
		m.blocks = append(m.blocks, NewErrorBlock(err, m.styles))
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		return m, nil
	}

	m.blocks = append(m.blocks, NewPromptBlock(text, m.mode, m.styles))
	run := m.run
	return m.start(func(ctx context.Context, onEvent func(refine.Event)) error {
		return run(ctx, req, onEvent)
	})
}

func (m Model) regenerate() (tea.Model, tea.Cmd) {
	regen := m.regen
	return m.start(func(ctx context.Context, onEvent func(refine.Event)) error {
		return regen(ctx, onEvent)
	})
}

// start kicks off one enhancement run with fresh channels and context.
func (m Model) start(run func(ctx context.Context, onEvent func(refine.Event)) error) (tea.Model, tea.Cmd) {
	m.err = nil
	m.output = nil
	m.stage = refine.StageConnecting
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.eventCh = make(chan refine.Event, 256)
	m.doneCh = make(chan error, 1)
	m.running = true

	m.Input.Blur()

	return m, tea.Batch(
		startEnhance(run, ctx, m.eventCh, m.doneCh),
		listenForEvent(m.eventCh, m.doneCh),
	)
}

func (m Model) renderContent() string {
	if len(m.blocks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, block := range m.blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(block.View(m.Viewport.Width))
	}
	return b.String()
}

// processEvent routes a streaming event to the appropriate block.
func (m Model) processEvent(evt refine.Event) Model {
	switch e := evt.(type) {
	case refine.EventDelta:
		if m.output == nil {
			m.output = NewOutputBlock(m.theme)
			m.blocks = append(m.blocks, m.output)
		}
		// Deltas carry the full accumulated text, so replace rather
		// than append. This also self-heals after a dropped event.
		m.output.SetText(e.Text)
	case refine.EventStage:
		m.stage = e.Stage
	}
	return m
}

func (m Model) statusLine() string {
	width := m.Viewport.Width
	if m.err != nil {
		return truncate(m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err)), width)
	}
	if m.running {
		label := stageLabel(m.stage)
		if m.state != nil {
			if rc := m.state().RetryCount; rc > 0 {
				label += fmt.Sprintf(" (retry %d)", rc)
			}
		}
		return truncate(m.styles.Muted.Render(label+" · Ctrl+C to cancel"), width)
	}
	idle := fmt.Sprintf("Enter to enhance · Tab mode: %s · Ctrl+R regenerate · Ctrl+C quit", m.mode)
	return truncate(m.styles.Muted.Render(idle), width)
}

func stageLabel(stage refine.Stage) string {
	switch stage {
	case refine.StageConnecting:
		return "Connecting..."
	case refine.StageAnalyzing:
		return "Analyzing prompt..."
	case refine.StageEnhancing:
		return "Enhancing..."
	case refine.StageFinalizing:
		return "Finalizing..."
	}
	return "Working..."
}

// nextMode cycles through the enhancement modes in declaration order.
func nextMode(mode refine.Mode) refine.Mode {
	modes := refine.Modes()
	for i, md := range modes {
		if md == mode {
			return modes[(i+1)%len(modes)]
		}
	}
	return modes[0]
}

func isAbort(err error) bool {
	return errors.Is(err, context.Canceled) || refine.KindOf(err) == refine.KindAbort
}

// startEnhance runs the enhancement in a goroutine and signals completion.
func startEnhance(run func(ctx context.Context, onEvent func(refine.Event)) error, ctx context.Context, eventCh chan<- refine.Event, doneCh chan<- error) tea.Cmd {
	return func() tea.Msg {
		err := run(ctx, func(e refine.Event) {
			select {
			case eventCh <- e:
			case <-ctx.Done():
			}
		})
		close(eventCh)
		doneCh <- err
		return nil
	}
}

// listenForEvent waits for the next event from the channel.
// When the channel closes, it reads the error from doneCh and returns EnhanceDoneMsg.
func listenForEvent(ch <-chan refine.Event, doneCh <-chan error) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			err := <-doneCh
			return EnhanceDoneMsg{Err: err}
		}
		return StreamEventMsg{Event: evt}
	}
}
