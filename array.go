package reactor

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const MAX_EVENT_SLOTS = 1 << 20

// FdLimit returns the soft RLIMIT_NOFILE, capped at MAX_EVENT_SLOTS.
func FdLimit() (int, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, err
	}
	if rlim.Cur > MAX_EVENT_SLOTS {
		return MAX_EVENT_SLOTS, nil
	}
	return int(rlim.Cur), nil
}

// EventArray holds one event object per possible descriptor number. Objects
// are created on first use of their slot and then reused by every later
// descriptor with the same number, whichever worker it lands on.
type EventArray[T any] struct {
	slots   []atomic.Pointer[T]
	factory func(fd int) *T
}

// NewEventArray sizes the array to the process descriptor limit.
func NewEventArray[T any](factory func(fd int) *T) (*EventArray[T], error) {
	var n, err = FdLimit()
	if err != nil {
		return nil, err
	}
	return NewEventArraySize(n, factory), nil
}

func NewEventArraySize[T any](n int, factory func(fd int) *T) *EventArray[T] {
	return &EventArray[T]{
		slots:   make([]atomic.Pointer[T], n),
		factory: factory,
	}
}

func (a *EventArray[T]) Len() int {
	return len(a.slots)
}

// Get returns the object for fd, nil when fd is outside the array.
func (a *EventArray[T]) Get(fd int) *T {
	if fd < 0 || fd >= len(a.slots) {
		return nil
	}
	var slot = &a.slots[fd]
	if p := slot.Load(); p != nil {
		return p
	}
	var p = a.factory(fd)
	if slot.CompareAndSwap(nil, p) {
		return p
	}
	return slot.Load()
}

// Peek returns the object for fd without creating it.
func (a *EventArray[T]) Peek(fd int) *T {
	if fd < 0 || fd >= len(a.slots) {
		return nil
	}
	return a.slots[fd].Load()
}
