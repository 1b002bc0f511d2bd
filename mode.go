package refine

// Mode selects the tone applied to the enhanced prompt.
type Mode string

const (
	ModeFormal    Mode = "formal"
	ModeCasual    Mode = "casual"
	ModeCreative  Mode = "creative"
	ModeTechnical Mode = "technical"
	ModeConcise   Mode = "concise"
)

// Modes returns all valid modes in display order.
func Modes() []Mode {
	return []Mode{ModeFormal, ModeCasual, ModeCreative, ModeTechnical, ModeConcise}
}

// Valid reports whether m is a member of the closed mode set.
func (m Mode) Valid() bool {
	switch m {
	case ModeFormal, ModeCasual, ModeCreative, ModeTechnical, ModeConcise:
		return true
	}
	return false
}
