package bubbletea_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/refinekit/refine"
	bt "github.com/refinekit/refine/bubbletea"
)

func TestErrorBlock_View(t *testing.T) {
	t.Parallel()

	t.Run("renders error prefix and message", func(t *testing.T) {
		t.Parallel()
		styles := bt.NewStyles(refine.DefaultTheme())
		block := bt.NewErrorBlock(errors.New("something broke"), styles)
		view := block.View(80)
		assert.Contains(t, view, "Error")
		assert.Contains(t, view, "something broke")
	})

	t.Run("plain error has no hint", func(t *testing.T) {
		t.Parallel()
		styles := bt.NewStyles(refine.DefaultTheme())
		block := bt.NewErrorBlock(errors.New("boom"), styles)
		view := block.View(80)
		assert.NotContains(t, view, "Ctrl+R")
		assert.NotContains(t, view, "Wait a moment")
	})

	t.Run("hint keyed off error kind", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			kind refine.Kind
			hint string
		}{
			{refine.KindRateLimit, "Wait a moment"},
			{refine.KindPayment, "balance"},
			{refine.KindContentTooLong, "Shorten the prompt"},
			{refine.KindNetwork, "Ctrl+R to retry"},
			{refine.KindTimeout, "Ctrl+R to retry"},
			{refine.KindServerError, "Ctrl+R to retry"},
		}
		for _, tt := range tests {
			t.Run(string(tt.kind), func(t *testing.T) {
				t.Parallel()
				styles := bt.NewStyles(refine.DefaultTheme())
				block := bt.NewErrorBlock(&refine.Error{Kind: tt.kind, Message: "failed"}, styles)
				assert.Contains(t, block.View(80), tt.hint)
			})
		}
	})

	t.Run("generic kind has no hint", func(t *testing.T) {
		t.Parallel()
		styles := bt.NewStyles(refine.DefaultTheme())
		block := bt.NewErrorBlock(&refine.Error{Kind: refine.KindGeneric, Message: "failed"}, styles)
		view := block.View(80)
		assert.NotContains(t, view, "Ctrl+R")
	})
}
