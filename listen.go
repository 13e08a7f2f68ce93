package reactor

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

func (w *Worker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer w.Close()

	if err := w.init(); err != nil {
		w.ep.TriggerOnError(-1, ERROR_THREAD_INIT, fmt.Errorf("worker %d: %w", w.Id, err))
		return
	}
	for !w.ep.stopped.Load() {
		if err := w.Poll(-1); err != nil {
			w.ep.TriggerOnError(w.epfd, ERROR_EPOLL_WAIT, err)
			return
		}
	}
}

// Poll waits up to msec milliseconds (-1 blocks) for one ready event and runs
// its event object, following returned objects until one returns nil.
func (w *Worker) Poll(msec int) error {
	var n, err = unix.EpollWait(w.epfd, w.events[:], msec)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("epoll_wait: %w", err)
	}
	if n <= 0 {
		return nil
	}
	var h = w.Handler(int(w.events[0].Fd))
	if h == nil {
		return nil
	}
	CancelTimeout(h.Base())
	w.dispatch(h)
	return nil
}
