package reactor

import (
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

func newTimerFd() (int, error) {
	var fd, err = unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("timerfd_create: %w", err)
	}
	return fd, nil
}

// readTimerFd consumes the expiration counter. It reports false when the
// timer has not fired.
func readTimerFd(fd int) (uint64, bool, error) {
	var buf [8]byte
	var n, err = unix.Read(fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN {
			return 0, false, nil
		}
		return 0, false, err
	}
	if n != len(buf) {
		return 0, false, ErrorShortTimerRead
	}
	return binary.NativeEndian.Uint64(buf[:]), true, nil
}

// chainTimer drives the expiry walk of one TimeoutChain.
type chainTimer struct {
	Event
	chain *TimeoutChain
}

func newChainTimer(chain *TimeoutChain) (*chainTimer, error) {
	var fd, err = newTimerFd()
	if err != nil {
		return nil, err
	}
	chain.timerFd = fd
	return &chainTimer{Event: Event{Fd: fd}, chain: chain}, nil
}

func (t *chainTimer) Resume(w *Worker) Handler {
	var _, fired, err = readTimerFd(t.Fd)
	if err != nil {
		w.ep.TriggerOnError(t.Fd, ERROR_TIMER, err)
		return nil
	}
	if fired {
		t.chain.HandleExpiry()
	}
	return nil
}

// Timer is a periodic timerfd event object. Each worker that wants periodic
// work needs its own Timer.
type Timer struct {
	Event
	callback OnTimerEvent
	Fired    uint64
}

func NewTimer(callback OnTimerEvent) (*Timer, error) {
	var fd, err = newTimerFd()
	if err != nil {
		return nil, err
	}
	return &Timer{Event: Event{Fd: fd}, callback: callback}, nil
}

// Arm starts the timer: first expiry after first, then every interval. A zero
// interval makes it a one-shot timer.
func (t *Timer) Arm(first, interval time.Duration) error {
	var spec = unix.ItimerSpec{
		Value:    unix.NsecToTimespec(int64(first)),
		Interval: unix.NsecToTimespec(int64(interval)),
	}
	if err := unix.TimerfdSettime(t.Fd, 0, &spec, nil); err != nil {
		return fmt.Errorf("timerfd_settime: %w", err)
	}
	return nil
}

func (t *Timer) Disarm() error {
	return t.Arm(0, 0)
}

func (t *Timer) InitPerThread(w *Worker) error {
	return w.Add(t, EV_IN)
}

func (t *Timer) Resume(w *Worker) Handler {
	var n, fired, err = readTimerFd(t.Fd)
	if err != nil {
		w.ep.TriggerOnError(t.Fd, ERROR_TIMER, err)
		return nil
	}
	if !fired {
		return nil
	}
	t.Fired += n
	if t.callback == nil {
		return nil
	}
	return t.callback(w, t)
}

func (t *Timer) Close() error {
	return unix.Close(t.Fd)
}
