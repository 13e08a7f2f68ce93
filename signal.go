package reactor

import (
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

const SIGNAL_QUEUE_LENGTH = 16

// SignalHandler turns process signals into reactor events. Signals are
// received by the Go runtime, queued, and announced through an eventfd, so
// the callback always runs on the worker the handler is registered with.
type SignalHandler struct {
	Event
	callback OnSignalEvent
	notify   chan os.Signal
	queue    chan os.Signal
	done     chan struct{}
}

func NewSignalHandler(callback OnSignalEvent, sigs ...os.Signal) (*SignalHandler, error) {
	var fd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	var s = &SignalHandler{
		Event:    Event{Fd: fd},
		callback: callback,
		notify:   make(chan os.Signal, SIGNAL_QUEUE_LENGTH),
		queue:    make(chan os.Signal, SIGNAL_QUEUE_LENGTH),
		done:     make(chan struct{}),
	}
	signal.Notify(s.notify, sigs...)
	go s.forward()
	return s, nil
}

func (s *SignalHandler) forward() {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		select {
		case sig := <-s.notify:
			select {
			case s.queue <- sig:
			default:
			}
			unix.Write(s.Fd, buf[:])
		case <-s.done:
			return
		}
	}
}

func (s *SignalHandler) InitPerThread(w *Worker) error {
	return w.Add(s, EV_IN)
}

func (s *SignalHandler) Resume(w *Worker) Handler {
	var buf [8]byte
	if _, err := unix.Read(s.Fd, buf[:]); err != nil {
		if err != unix.EAGAIN {
			w.ep.TriggerOnError(s.Fd, ERROR_SIGNAL, err)
		}
		return nil
	}
	for {
		select {
		case sig := <-s.queue:
			if s.callback != nil {
				s.callback(sig)
			}
		default:
			return nil
		}
	}
}

func (s *SignalHandler) Close() error {
	signal.Stop(s.notify)
	close(s.done)
	return unix.Close(s.Fd)
}
