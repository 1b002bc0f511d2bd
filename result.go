package refine

// Outcome is the terminal disposition of one enhancement call.
type Outcome int

const (
	OutcomePending   Outcome = iota // Call still in flight; no terminal state reached.
	OutcomeCompleted                // Terminal sentinel seen or stream closed normally.
	OutcomeAborted                  // Caller cancellation; never an error for logging purposes.
	OutcomeFailed                   // Classified failure after retries were exhausted.
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeAborted:
		return "aborted"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Result is the terminal result of one enhancement call.
//
// Text holds the full accumulated enhancement on OutcomeCompleted. On
// OutcomeAborted it holds whatever had been rendered before cancellation
// (callers may keep displaying it, but the logical outcome is still
// aborted, not completed). Kind and Message are set on OutcomeFailed.
type Result struct {
	Text    string
	Outcome Outcome
	Kind    Kind
	Message string
	Usage   Usage
}
