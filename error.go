package reactor

import (
	"errors"

	"github.com/sirupsen/logrus"
)

var (
	ErrorGetPoolBuffer  = errors.New("get pool buffer error")
	ErrorSlotsExhausted = errors.New("no preallocated slot for descriptor")
	ErrorAlreadyStarted = errors.New("reactor already started")
	ErrorNoListener     = errors.New("acceptor has no listening socket")
	ErrorShortTimerRead = errors.New("short read on timer descriptor")
)

// TriggerOnError logs err against fd and hands it to the OnError hook.
func (ep *EP) TriggerOnError(fd int, code ErrorCode, err error) {
	ep.metrics.errors.Inc(1)
	ep.Logger.WithFields(logrus.Fields{
		"fd":   fd,
		"code": code.String(),
	}).Error(err)
	if ep.OnError != nil {
		ep.OnError(fd, code, err)
	}
}
