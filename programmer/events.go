package programmer

import "time"

// EventKind classifies session events.
type EventKind string

// Event kinds.
const (
	EventState    EventKind = "state"
	EventRetry    EventKind = "retry"
	EventDetected EventKind = "detected"
	EventResult   EventKind = "result"
)

// Event is a structured record of something the session did.
type Event struct {
	SessionID string
	Time      time.Time
	Kind      EventKind
	Op        Operation
	State     State
	Message   string
	Done      int
	Total     int
	Err       string
}

// EventSink receives session events. Record is called from the worker
// goroutine and should not block.
type EventSink interface {
	Record(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Record(e Event) {
	f(e)
}
