package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// TimeoutChain is a FIFO of parked events that all share one timeout. Since
// every member waits for the same duration, insertion order is expiry order
// and the head is always the next to expire.
type TimeoutChain struct {
	head     Event
	timeout  time.Duration
	timerFd  int
	clock    func() int64
	expire   func(e *Event)
	onExpire func(n int)
	onError  func(err error)
}

func NewTimeoutChain(timeout time.Duration) *TimeoutChain {
	var c = &TimeoutChain{
		timeout: timeout,
		timerFd: -1,
		clock:   monotonicNow,
		expire:  shutdownEvent,
	}
	c.head.next = &c.head
	c.head.prev = &c.head
	return c
}

func shutdownEvent(e *Event) {
	unix.Shutdown(e.Fd, unix.SHUT_RDWR)
}

func (c *TimeoutChain) Timeout() time.Duration {
	return c.timeout
}

// SetClock replaces the monotonic clock, nil restores it.
func (c *TimeoutChain) SetClock(clock func() int64) {
	if clock == nil {
		clock = monotonicNow
	}
	c.clock = clock
}

// SetExpire replaces the action taken on an expired event. The default shuts
// the socket down so the owning state machine observes a hangup.
func (c *TimeoutChain) SetExpire(expire func(e *Event)) {
	if expire == nil {
		expire = shutdownEvent
	}
	c.expire = expire
}

func (c *TimeoutChain) Empty() bool {
	return c.head.next == &c.head
}

func (c *TimeoutChain) Len() int {
	var n = 0
	for p := c.head.next; p != &c.head; p = p.next {
		n++
	}
	return n
}

// Schedule stamps e and appends it to the tail. The timer is armed only when
// the chain was empty, a non-empty chain is already armed for its head.
func (c *TimeoutChain) Schedule(e *Event) {
	if e.ts != 0 {
		CancelTimeout(e)
	}
	if c.Empty() {
		c.arm(c.timeout)
	}
	e.ts = c.clock()
	e.next = &c.head
	e.prev = c.head.prev
	c.head.prev.next = e
	c.head.prev = e
}

// CancelTimeout unlinks e from whatever chain holds it. Safe to call on an
// event that is not scheduled.
func CancelTimeout(e *Event) {
	if e.ts == 0 {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next, e.prev = nil, nil
	e.ts = 0
}

// HandleExpiry expires every event whose wait has reached the chain timeout
// and re-arms the timer for the remaining time of the new head. It returns
// the number of expired events.
func (c *TimeoutChain) HandleExpiry() int {
	var deadline = c.clock() - int64(c.timeout)
	var n = 0
	for c.head.next != &c.head {
		var e = c.head.next
		if e.ts > deadline {
			c.arm(time.Duration(e.ts - deadline))
			break
		}
		c.head.next = e.next
		e.next.prev = &c.head
		e.next, e.prev = nil, nil
		e.ts = 0
		c.expire(e)
		n++
	}
	if n > 0 && c.onExpire != nil {
		c.onExpire(n)
	}
	return n
}

func (c *TimeoutChain) arm(d time.Duration) {
	if c.timerFd < 0 {
		return
	}
	if d <= 0 {
		d = time.Nanosecond
	}
	var spec = unix.ItimerSpec{Value: unix.NsecToTimespec(int64(d))}
	if err := unix.TimerfdSettime(c.timerFd, 0, &spec, nil); err != nil && c.onError != nil {
		c.onError(fmt.Errorf("timerfd_settime: %w", err))
	}
}
