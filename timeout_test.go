package reactor

import (
	"testing"
	"time"
)

func TestTimeoutChainFIFO(t *testing.T) {
	var now int64 = 1_000_000
	var c = NewTimeoutChain(time.Second)
	c.SetClock(func() int64 { return now })
	var expired []int
	c.SetExpire(func(e *Event) { expired = append(expired, e.Fd) })

	var events = make([]Event, 6)
	for i := range events {
		events[i].Fd = i
		c.Schedule(&events[i])
		now += int64(10 * time.Millisecond)
	}
	if c.Len() != 6 {
		t.Fatalf("len = %d, want 6", c.Len())
	}

	CancelTimeout(&events[2])
	CancelTimeout(&events[2])
	if events[2].Scheduled() || c.Len() != 5 {
		t.Fatalf("cancel did not unlink")
	}

	now = events[1].Stamp() + int64(time.Second)
	if n := c.HandleExpiry(); n != 2 {
		t.Fatalf("first walk expired %d, want 2", n)
	}
	now = events[5].Stamp() + int64(time.Second)
	c.HandleExpiry()

	var want = []int{0, 1, 3, 4, 5}
	if len(expired) != len(want) {
		t.Fatalf("expired %v, want %v", expired, want)
	}
	for i := range want {
		if expired[i] != want[i] {
			t.Fatalf("expired %v, want %v", expired, want)
		}
	}
	if !c.Empty() {
		t.Fatalf("chain should be empty")
	}
	for i := range events {
		if events[i].Scheduled() {
			t.Fatalf("event %d still stamped", i)
		}
	}
}

func TestTimeoutChainStopsAtFirstLiveEntry(t *testing.T) {
	var now int64 = 5_000_000
	var c = NewTimeoutChain(100 * time.Millisecond)
	c.SetClock(func() int64 { return now })
	var expired int
	c.SetExpire(func(e *Event) { expired++ })

	var a, b Event
	c.Schedule(&a)
	now += int64(60 * time.Millisecond)
	c.Schedule(&b)
	now += int64(50 * time.Millisecond)

	if n := c.HandleExpiry(); n != 1 || expired != 1 {
		t.Fatalf("expired %d, want 1", n)
	}
	if c.head.next != &b {
		t.Fatalf("head should be the live entry")
	}
	if !b.Scheduled() || a.Scheduled() {
		t.Fatalf("wrong stamps after walk")
	}
}

func TestRescheduleMovesToTail(t *testing.T) {
	var c = NewTimeoutChain(time.Second)
	var a, b Event
	c.Schedule(&a)
	c.Schedule(&b)
	c.Schedule(&a)
	if c.head.next != &b || c.head.prev != &a || c.Len() != 2 {
		t.Fatalf("reschedule did not move the event to the tail")
	}
}
