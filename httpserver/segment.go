//go:build linux

package httpserver

import (
	"errors"

	"github.com/gotcp/reactor"
	"golang.org/x/sys/unix"
)

var ErrorNotRegularFile = errors.New("httpserver: not a regular file")

// Segment is one file appended to a response after the payload buffer and
// transmitted with sendfile.
type Segment struct {
	Fd     int
	Size   int64
	Offset int64
	next   *Segment
}

func (s *Server) acquireSegment() *Segment {
	var seg, err = s.segments.Get()
	if err != nil || seg == nil {
		if err != nil {
			s.ep.TriggerOnError(-1, reactor.ERROR_POOL_BUFFER, err)
		}
		return &Segment{Fd: -1}
	}
	return seg
}

func (s *Server) releaseSegment(seg *Segment) {
	if seg.Fd >= 0 {
		unix.Close(seg.Fd)
	}
	seg.Fd, seg.Size, seg.Offset, seg.next = -1, 0, 0, nil
	s.segments.Put(seg)
}

// SendFile appends the regular file open on fd to the response. On success
// the connection owns fd and closes it once sent; on error the caller keeps
// it.
func (c *Conn) SendFile(fd int) error {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return ErrorNotRegularFile
	}
	var seg = c.server.acquireSegment()
	seg.Fd = fd
	seg.Size = st.Size
	seg.Offset = 0
	if c.segments == nil {
		c.segments = seg
	} else {
		var p = c.segments
		for p.next != nil {
			p = p.next
		}
		p.next = seg
	}
	return nil
}

func (c *Conn) segmentsSize() int64 {
	var total int64
	for p := c.segments; p != nil; p = p.next {
		total += p.Size
	}
	return total
}

func (c *Conn) releaseSegments() {
	for c.segments != nil {
		var next = c.segments.next
		c.server.releaseSegment(c.segments)
		c.segments = next
	}
}
