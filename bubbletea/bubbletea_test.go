package bubbletea_test

import (
	"context"
	"testing"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/refinekit/refine"
	bt "github.com/refinekit/refine/bubbletea"
)

// initModel creates a model and sends a WindowSizeMsg to initialize the viewport.
func initModel(t *testing.T, run bt.EnhanceFunc) bt.Model {
	t.Helper()
	m := bt.New(run, nopRegen, refine.DefaultTheme())
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

// initModelWithSize creates a model with a custom terminal size.
func initModelWithSize(t *testing.T, run bt.EnhanceFunc, width, height int) bt.Model {
	t.Helper()
	m := bt.New(run, nopRegen, refine.DefaultTheme())
	updated, _ := m.Update(tea.WindowSizeMsg{Width: width, Height: height})
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

// updateModel sends a message and returns the updated Model.
func updateModel(t *testing.T, m bt.Model, msg tea.Msg) bt.Model {
	t.Helper()
	updated, _ := m.Update(msg)
	model, ok := updated.(bt.Model)
	require.True(t, ok)
	return model
}

// nopEnhance is a run function that does nothing.
func nopEnhance(_ context.Context, _ refine.Request, _ func(refine.Event)) error {
	return nil
}

// nopRegen is a regenerate function that does nothing.
func nopRegen(_ context.Context, _ func(refine.Event)) error {
	return nil
}

func typeInputString(t *testing.T, ti textinput.Model, s string) textinput.Model {
	t.Helper()
	for _, r := range s {
		ti, _ = ti.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return ti
}
