// Package prompt holds the system prompt templates applied per tone
// mode. The strings are opaque to the rest of the pipeline: providers
// send them verbatim and never inspect them.
package prompt

import (
	"fmt"

	"github.com/refinekit/refine"
)

const base = "You are a prompt engineer. Rewrite the user's prompt to be clearer, more specific, and better structured, preserving its intent. Return only the rewritten prompt."

var toneByMode = map[refine.Mode]string{
	refine.ModeFormal:    "Use a formal, professional register.",
	refine.ModeCasual:    "Use a relaxed, conversational register.",
	refine.ModeCreative:  "Favor vivid, imaginative phrasing and encourage open-ended output.",
	refine.ModeTechnical: "Be precise and unambiguous; prefer exact terminology and explicit constraints.",
	refine.ModeConcise:   "Make it as short as possible without losing meaning.",
}

// System returns the system prompt for the request's mode and file type.
// Unknown modes fall back to the base template so a provider never sends
// an empty system message.
func System(req refine.Request) string {
	s := base
	if tone, ok := toneByMode[req.Mode]; ok {
		s += " " + tone
	}
	if req.FileType != "" {
		s += fmt.Sprintf(" The prompt targets %s output.", req.FileType)
	}
	return s
}
