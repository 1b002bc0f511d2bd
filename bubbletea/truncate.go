package bubbletea

import (
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

// truncate cuts s to at most width terminal cells, appending an ellipsis
// when anything was removed. Grapheme clusters are kept intact so
// multi-rune sequences (emoji, combining marks) never get split, and
// widths are measured in cells so CJK text truncates correctly.
//
// ANSI escape sequences are not parsed; styled status-line text is built
// from short fragments so the approximation holds in practice.
func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	budget := width - 1 // reserve a cell for the ellipsis
	used := 0
	out := make([]byte, 0, len(s))
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		cluster := g.Str()
		w := runewidth.StringWidth(cluster)
		if used+w > budget {
			break
		}
		used += w
		out = append(out, cluster...)
	}
	return string(out) + "…"
}
