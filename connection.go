package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func (w *Worker) ctl(h Handler, op OpCode, events uint32) error {
	var fd = h.Base().Fd
	var event = unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(w.epfd, int(op), fd, &event); err != nil {
		err = fmt.Errorf("epoll_ctl %s fd %d: %w", op, fd, err)
		w.ep.TriggerOnError(fd, ERROR_EPOLL_CTL, err)
		return err
	}
	if op == OP_DEL {
		w.setHandler(fd, nil)
	} else {
		w.setHandler(fd, h)
	}
	return nil
}

// Add registers h with this worker's epoll instance.
func (w *Worker) Add(h Handler, events uint32) error {
	return w.ctl(h, OP_ADD, events)
}

// Mod changes the interest set of an already registered event object.
func (w *Worker) Mod(h Handler, events uint32) error {
	return w.ctl(h, OP_MOD, events)
}

// Del removes h from epoll without closing its descriptor.
func (w *Worker) Del(h Handler) error {
	return w.ctl(h, OP_DEL, 0)
}

// AddMulti registers an event object that is shared by all workers, such as
// an acceptor. Shared objects are never scheduled on a chain.
func (w *Worker) AddMulti(h Handler, events uint32) error {
	CancelTimeout(h.Base())
	return w.ctl(h, OP_ADD, events)
}
