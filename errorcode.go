package reactor

import (
	"strconv"
)

type ErrorCode int

const (
	ERROR_ACCEPT           ErrorCode = 1
	ERROR_ADD_CONNECTION   ErrorCode = 2
	ERROR_CLOSE_CONNECTION ErrorCode = 3
	ERROR_EPOLL_WAIT       ErrorCode = 4
	ERROR_POOL_BUFFER      ErrorCode = 5
	ERROR_EPOLL_CTL        ErrorCode = 6
	ERROR_EPOLL_CREATE     ErrorCode = 7
	ERROR_TIMER            ErrorCode = 8
	ERROR_SIGNAL           ErrorCode = 9
	ERROR_SENDFILE         ErrorCode = 10
	ERROR_SLOTS_EXHAUSTED  ErrorCode = 11
	ERROR_THREAD_INIT      ErrorCode = 12
	ERROR_CONNECT          ErrorCode = 13
	ERROR_BUFFER           ErrorCode = 14
)

var errorCodeNames = map[ErrorCode]string{
	ERROR_ACCEPT:           "accept",
	ERROR_ADD_CONNECTION:   "add connection",
	ERROR_CLOSE_CONNECTION: "close connection",
	ERROR_EPOLL_WAIT:       "epoll wait",
	ERROR_POOL_BUFFER:      "pool buffer",
	ERROR_EPOLL_CTL:        "epoll ctl",
	ERROR_EPOLL_CREATE:     "epoll create",
	ERROR_TIMER:            "timer",
	ERROR_SIGNAL:           "signal",
	ERROR_SENDFILE:         "sendfile",
	ERROR_SLOTS_EXHAUSTED:  "slots exhausted",
	ERROR_THREAD_INIT:      "thread init",
	ERROR_CONNECT:          "connect",
	ERROR_BUFFER:           "buffer",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "error " + strconv.Itoa(int(c))
}
