package reactor

import (
	"golang.org/x/sys/unix"
)

type OpCode int

const (
	OP_ADD OpCode = unix.EPOLL_CTL_ADD
	OP_MOD OpCode = unix.EPOLL_CTL_MOD
	OP_DEL OpCode = unix.EPOLL_CTL_DEL
)

// Interest sets used by the event objects in this module.
const (
	EV_IN        uint32 = unix.EPOLLIN
	EV_IN_ET     uint32 = unix.EPOLLET | unix.EPOLLIN
	EV_OUT_ET    uint32 = unix.EPOLLET | unix.EPOLLOUT
	EV_INOUT_ET  uint32 = unix.EPOLLET | unix.EPOLLIN | unix.EPOLLOUT
	EV_EXCLUSIVE uint32 = unix.EPOLLEXCLUSIVE
)

func (op OpCode) String() string {
	switch op {
	case OP_ADD:
		return "add"
	case OP_MOD:
		return "mod"
	case OP_DEL:
		return "del"
	}
	return "unknown"
}
