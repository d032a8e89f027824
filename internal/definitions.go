package internal

type EventType int8

const (
	ReadEvent EventType = iota
	WriteEvent
	MaxEvent
)

func (e EventType) String() string {
	switch e {
	case ReadEvent:
		return "read"
	case WriteEvent:
		return "write"
	default:
		return "event_unknown"
	}
}

// Handler is invoked when a readiness edge fires. err is non-nil if the
// interest was cancelled, e.g. because the eventfd was torn down.
type Handler func(error)

// Waker wakes up a blocked Poller from another goroutine.
type Waker interface {
	// Fd is registered for reads with the Poller.
	Fd() int

	// Wake makes Fd readable. It never blocks.
	Wake() error

	// Drain consumes all pending wakeups.
	Drain()

	Close() error
}
