package engine

// Voice lifecycle events, published on a non-blocking channel so that a slow
// or absent consumer can never stall the control plane or the render loop.

type EventKind int

const (
	VoiceStarted EventKind = iota + 1
	VoiceReleased
	VoiceStolen
	VoiceFinished
)

func (k EventKind) String() string {
	switch k {
	case VoiceStarted:
		return "started"
	case VoiceReleased:
		return "released"
	case VoiceStolen:
		return "stolen"
	case VoiceFinished:
		return "finished"
	}
	return "unknown"
}

// Event describes one voice lifecycle transition. Frame is the engine clock
// at the time of the transition.
type Event struct {
	Kind     EventKind
	Note     int
	Velocity int
	Frame    int64
}

// trySend sends a value to a channel if it is not full. It is guaranteed to
// be non-blocking; the value is dropped otherwise.
func trySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

func (e *Engine) publish(kind EventKind, v *Voice) {
	trySend(e.events, Event{Kind: kind, Note: v.Note, Velocity: v.Velocity, Frame: e.clock})
}

// Events returns the voice lifecycle event channel. Events are dropped, not
// queued, when the channel is full.
func (e *Engine) Events() <-chan Event {
	return e.events
}
