package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

const DEFAULT_BACKLOG = 32768

// SlotTable hands out the preallocated event object for an accepted
// descriptor. Implementations return nil when fd has no slot.
type SlotTable interface {
	Slot(fd int) Handler
}

// Acceptor is the listening socket as an event object. It is shared by every
// worker; each readiness event accepts exactly one connection and runs it on
// the worker that won the race.
type Acceptor struct {
	Event
	Slots    SlotTable
	OnAccept OnAcceptEvent
	Limiter  *rate.Limiter
	ep       *EP
}

func NewAcceptor(ep *EP, slots SlotTable) *Acceptor {
	return &Acceptor{
		Event: Event{Fd: -1},
		Slots: slots,
		ep:    ep,
	}
}

func (a *Acceptor) SetOnAccept(fn OnAcceptEvent) {
	a.OnAccept = fn
}

// SetRateLimit sheds connections accepted above perSecond with bursts of
// burst. A zero rate removes the limit.
func (a *Acceptor) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		a.Limiter = nil
		return
	}
	if burst <= 0 {
		burst = 1
	}
	a.Limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Init opens the listening socket, or adopts fd when it is not negative.
func (a *Acceptor) Init(fd int, port int, backlog int) error {
	if fd >= 0 {
		if err := unix.SetNonblock(fd, true); err != nil {
			return fmt.Errorf("inherited fd %d: %w", fd, err)
		}
		a.Fd = fd
		return nil
	}
	var lfd, err = Listen(port, backlog)
	if err != nil {
		return err
	}
	a.Fd = lfd
	return nil
}

// Port is the local port of the listening socket.
func (a *Acceptor) Port() (int, error) {
	if a.Fd < 0 {
		return 0, ErrorNoListener
	}
	return SocketPort(a.Fd)
}

// InitPerThread registers the listener with w.
func (a *Acceptor) InitPerThread(w *Worker) error {
	if a.Fd < 0 {
		return ErrorNoListener
	}
	var events = EV_IN
	if a.ep.ExclusiveAccept {
		events |= EV_EXCLUSIVE
	}
	return w.AddMulti(a, events)
}

func (a *Acceptor) Resume(w *Worker) Handler {
	var fd, _, err = unix.Accept4(a.Fd, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
	if err != nil {
		if err != unix.EAGAIN && err != unix.EINTR && err != unix.ECONNABORTED {
			a.ep.TriggerOnError(a.Fd, ERROR_ACCEPT, err)
		}
		return nil
	}
	if a.Limiter != nil && !a.Limiter.Allow() {
		a.ep.metrics.dropped.Inc(1)
		unix.Close(fd)
		return nil
	}
	var h = a.Slots.Slot(fd)
	if h == nil {
		a.ep.TriggerOnError(fd, ERROR_SLOTS_EXHAUSTED, ErrorSlotsExhausted)
		unix.Close(fd)
		return nil
	}
	if err = w.Add(h, EV_INOUT_ET); err != nil {
		a.ep.TriggerOnError(fd, ERROR_ADD_CONNECTION, err)
		unix.Close(fd)
		return nil
	}
	a.ep.metrics.accepted.Inc(1)
	if a.OnAccept != nil {
		a.OnAccept(w, h)
	}
	return h
}

func (a *Acceptor) Close() error {
	if a.Fd < 0 {
		return nil
	}
	var err = unix.Close(a.Fd)
	a.Fd = -1
	return err
}

// Listen opens a non-blocking IPv4 listening socket on port.
func Listen(port int, backlog int) (int, error) {
	if backlog <= 0 {
		backlog = DEFAULT_BACKLOG
	}
	var fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err = SetReuseAddr(fd); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	if err = SetNoDelay(fd); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("TCP_NODELAY: %w", err)
	}
	if err = SetNoLinger(fd); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("SO_LINGER: %w", err)
	}
	if err = unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind %d: %w", port, err)
	}
	if err = unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}
