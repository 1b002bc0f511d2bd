package refine

// Stage describes the coarse progress of one enhancement call. It exists
// for display purposes only and carries no correctness weight: the
// analyzing→enhancing transition is a heuristic based on delta count.
type Stage string

const (
	StageConnecting Stage = "connecting"
	StageAnalyzing  Stage = "analyzing"
	StageEnhancing  Stage = "enhancing"
	StageFinalizing Stage = "finalizing"
)
