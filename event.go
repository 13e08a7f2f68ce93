package reactor

import (
	"os"
)

// Handler is an event object driven by a Worker. Resume runs the object's
// current state on the worker's thread and returns the next object to run
// immediately, or nil to hand control back to epoll.
type Handler interface {
	Base() *Event
	Resume(w *Worker) Handler
}

// Event is the part of every event object the reactor manipulates directly:
// the descriptor and the links of the timeout chain the object is parked on.
type Event struct {
	Fd   int
	next *Event
	prev *Event
	ts   int64
}

func (e *Event) Base() *Event {
	return e
}

// Scheduled reports whether the event sits on a timeout chain.
func (e *Event) Scheduled() bool {
	return e.ts != 0
}

// Stamp is the monotonic time, in nanoseconds, at which the event was last
// scheduled. Zero when not scheduled.
func (e *Event) Stamp() int64 {
	return e.ts
}

type OnThreadInitEvent func(w *Worker) error
type OnAcceptEvent func(w *Worker, h Handler)
type OnErrorEvent func(fd int, code ErrorCode, err error)
type OnSignalEvent func(sig os.Signal)
type OnTimerEvent func(w *Worker, t *Timer) Handler
