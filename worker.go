package reactor

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Worker is one reactor thread: an epoll instance, the two timeout chains and
// whatever thread-local state event objects attach to it. A Worker must only
// be touched from the thread that drives it.
type Worker struct {
	Id          int
	ServerChain *TimeoutChain
	ClientChain *TimeoutChain

	ep       *EP
	epfd     int
	handlers []Handler
	locals   map[any]any
	wake     *wakeup
	timers   []*chainTimer
	events   [1]unix.EpollEvent
}

type wakeup struct {
	Event
}

func (wk *wakeup) Resume(w *Worker) Handler {
	var buf [8]byte
	unix.Read(wk.Fd, buf[:])
	return nil
}

func (wk *wakeup) signal() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	unix.Write(wk.Fd, buf[:])
}

func (ep *EP) newWorker() (*Worker, error) {
	var epfd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		err = fmt.Errorf("epoll_create1: %w", err)
		ep.TriggerOnError(-1, ERROR_EPOLL_CREATE, err)
		return nil, err
	}
	var w = &Worker{
		ep:          ep,
		epfd:        epfd,
		ServerChain: NewTimeoutChain(ep.ServerTimeout),
		ClientChain: NewTimeoutChain(ep.ClientTimeout),
		locals:      make(map[any]any),
	}
	for _, chain := range []*TimeoutChain{w.ServerChain, w.ClientChain} {
		chain.onExpire = ep.countTimeouts
		chain.onError = chainErrorHook(ep, chain)
	}

	var efd int
	if efd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		unix.Close(epfd)
		err = fmt.Errorf("eventfd: %w", err)
		ep.TriggerOnError(-1, ERROR_EPOLL_CREATE, err)
		return nil, err
	}
	w.wake = &wakeup{Event: Event{Fd: efd}}
	if err = w.Add(w.wake, EV_IN); err != nil {
		unix.Close(efd)
		unix.Close(epfd)
		return nil, err
	}

	ep.mu.Lock()
	w.Id = ep.nextId
	ep.nextId++
	ep.workers = append(ep.workers, w)
	ep.mu.Unlock()
	return w, nil
}

func chainErrorHook(ep *EP, chain *TimeoutChain) func(err error) {
	return func(err error) {
		ep.TriggerOnError(chain.timerFd, ERROR_TIMER, err)
	}
}

func (ep *EP) countTimeouts(n int) {
	ep.metrics.timeouts.Inc(int64(n))
}

// init runs on the worker's own thread: optional CPU pinning, the signal
// handler on the first worker, the per-thread callback, then the chain timers.
func (w *Worker) init() error {
	if w.ep.PinThreads {
		var set unix.CPUSet
		set.Set(w.Id % runtime.NumCPU())
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			w.ep.TriggerOnError(-1, ERROR_THREAD_INIT, fmt.Errorf("sched_setaffinity: %w", err))
		}
	}
	if w.Id == 0 && w.ep.signals != nil {
		if err := w.ep.signals.InitPerThread(w); err != nil {
			return err
		}
	}
	if w.ep.OnThreadInit != nil {
		if err := w.ep.OnThreadInit(w); err != nil {
			return err
		}
	}
	for _, chain := range []*TimeoutChain{w.ServerChain, w.ClientChain} {
		var t, err = newChainTimer(chain)
		if err != nil {
			return err
		}
		if err = w.Add(t, EV_IN); err != nil {
			unix.Close(t.Fd)
			return err
		}
		w.timers = append(w.timers, t)
		if !chain.Empty() {
			chain.arm(chain.timeout)
		}
	}
	return nil
}

func (w *Worker) EP() *EP {
	return w.ep
}

// Local returns the thread-local value stored under key.
func (w *Worker) Local(key any) any {
	return w.locals[key]
}

func (w *Worker) SetLocal(key any, v any) {
	w.locals[key] = v
}

// Handler returns the event object registered for fd on this worker.
func (w *Worker) Handler(fd int) Handler {
	if fd < 0 || fd >= len(w.handlers) {
		return nil
	}
	return w.handlers[fd]
}

func (w *Worker) setHandler(fd int, h Handler) {
	if fd >= len(w.handlers) {
		var n = 2 * len(w.handlers)
		if n <= fd {
			n = fd + 64
		}
		var grown = make([]Handler, n)
		copy(grown, w.handlers)
		w.handlers = grown
	}
	w.handlers[fd] = h
}

// Close releases the worker's descriptors. Event objects still registered
// are left to their owners.
func (w *Worker) Close() error {
	var ep = w.ep
	ep.mu.Lock()
	for i, x := range ep.workers {
		if x == w {
			ep.workers = append(ep.workers[:i], ep.workers[i+1:]...)
			break
		}
	}
	ep.mu.Unlock()

	for _, t := range w.timers {
		t.chain.timerFd = -1
		unix.Close(t.Fd)
	}
	w.timers = nil
	if w.wake != nil {
		unix.Close(w.wake.Fd)
		w.wake = nil
	}
	var err error
	if w.epfd >= 0 {
		err = unix.Close(w.epfd)
		w.epfd = -1
	}
	return err
}
