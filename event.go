package refine

// Event is a sealed interface representing a streaming event.
// Events are purely semantic. Transport/protocol errors come from
// Next()'s error return, not from events.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventDelta represents a fragment of enhanced text. Text carries the
// full accumulated output so far, so consumers render it directly
// instead of concatenating deltas themselves.
type EventDelta struct {
	Delta string
	Text  string
}

func (EventDelta) event() {}

// EventStage signals a display-stage transition.
type EventStage struct {
	Stage Stage
}

func (EventStage) event() {}

// Interface compliance checks.
var (
	_ Event = EventDelta{}
	_ Event = EventStage{}
)
