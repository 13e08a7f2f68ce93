//go:build linux

package httpserver

import (
	"bytes"
	"strconv"

	"github.com/gotcp/reactor"
	"github.com/gotcp/reactor/internal/httpproto"
	"github.com/gotcp/reactor/vmbuf"
	"golang.org/x/sys/unix"
)

type ConnState int

const (
	STATE_INIT ConnState = iota
	STATE_READ
	STATE_WRITE
	STATE_WRITE_CHAINED
)

// method + space + at least one URI byte
const MIN_REQUEST_SIZE = 5

var (
	methodGet  = []byte("GET ")
	methodHead = []byte("HEAD ")
	methodPost = []byte("POST ")
	methodPut  = []byte("PUT ")
	http11     = []byte(" HTTP/1.1")
	absolute   = []byte("http://")
)

// Conn is the per-descriptor server state. URI, Query, Headers and Content
// alias the input buffer and are valid until the response has been written.
type Conn struct {
	reactor.Event
	Inbuf   vmbuf.Buffer
	Header  vmbuf.Buffer
	Payload vmbuf.Buffer

	Method        string
	URI           []byte
	Query         []byte
	Headers       []byte
	Content       []byte
	ContentLength int
	Persistent    bool

	server   *Server
	state    ConnState
	eoh      int
	head     bool
	status   string
	err      error
	segments *Segment
}

func (c *Conn) State() ConnState {
	return c.state
}

func (c *Conn) Server() *Server {
	return c.server
}

func (c *Conn) Resume(w *reactor.Worker) reactor.Handler {
	switch c.state {
	case STATE_INIT:
		return c.onInit(w)
	case STATE_READ:
		return c.onRead(w)
	case STATE_WRITE:
		return c.onWrite(w)
	case STATE_WRITE_CHAINED:
		return c.onWriteChained(w)
	}
	return nil
}

func initBuffer(b *vmbuf.Buffer) error {
	if b.Initialized() {
		b.Reset()
		return nil
	}
	return b.InitDefault()
}

func (c *Conn) reset() error {
	for _, b := range []*vmbuf.Buffer{&c.Inbuf, &c.Header, &c.Payload} {
		if err := initBuffer(b); err != nil {
			return err
		}
	}
	c.releaseSegments()
	c.Method = ""
	c.URI, c.Query, c.Headers, c.Content = nil, nil, nil, nil
	c.ContentLength = 0
	c.Persistent = false
	c.eoh = 0
	c.head = false
	c.status = ""
	c.err = nil
	return nil
}

func (c *Conn) onInit(w *reactor.Worker) reactor.Handler {
	if err := c.reset(); err != nil {
		w.EP().TriggerOnError(c.Fd, reactor.ERROR_BUFFER, err)
		return c.Close()
	}
	c.state = STATE_READ
	return c
}

func (c *Conn) onRead(w *reactor.Worker) reactor.Handler {
	var res, err = c.Inbuf.ReadFd(c.Fd)
	if res != vmbuf.READ_AGAIN {
		if err != nil {
			c.server.log.WithField("fd", c.Fd).WithError(err).Debug("read")
		}
		return c.Close()
	}
	if c.Inbuf.WLoc() > c.server.MaxRequestSize {
		return c.Response(STATUS_413, CONTENT_TYPE_TEXT_PLAIN)
	}
	var data = c.Inbuf.Written()
	if len(data) <= MIN_REQUEST_SIZE {
		return w.YieldServer(c)
	}
	switch {
	case bytes.HasPrefix(data, methodGet), bytes.HasPrefix(data, methodHead):
		if !bytes.HasSuffix(data, httpproto.CRLFCRLF) {
			return w.YieldServer(c)
		}
		c.head = data[0] == 'H'
		var head = data[:len(data)-len(httpproto.CRLFCRLF)]
		c.Persistent = checkPersistent(head)
		return c.process(w, head, nil)
	case bytes.HasPrefix(data, methodPost), bytes.HasPrefix(data, methodPut):
		if c.eoh == 0 {
			var i = bytes.Index(data, httpproto.CRLFCRLF)
			if i < 0 {
				return w.YieldServer(c)
			}
			c.eoh = i + len(httpproto.CRLFCRLF)
			var head = data[:i]
			if expect := httpproto.Lookup(head, "Expect"); bytes.HasPrefix(expect, []byte("100")) {
				if !c.writeContinue() {
					return c.Close()
				}
			}
			c.Persistent = checkPersistent(head)
			var cl = httpproto.Lookup(head, "Content-Length")
			if cl == nil {
				return c.Response(STATUS_411, CONTENT_TYPE_TEXT_PLAIN)
			}
			var n, err = strconv.Atoi(string(cl))
			if err != nil || n < 0 {
				return c.Response(STATUS_400, CONTENT_TYPE_TEXT_PLAIN)
			}
			if c.eoh+n > c.server.MaxRequestSize {
				c.Persistent = false
				return c.Response(STATUS_413, CONTENT_TYPE_TEXT_PLAIN)
			}
			c.ContentLength = n
		}
		if len(data)-c.eoh >= c.ContentLength {
			return c.process(w, data[:c.eoh-len(httpproto.CRLFCRLF)], data[c.eoh:c.eoh+c.ContentLength])
		}
	default:
		return c.Response(STATUS_501, CONTENT_TYPE_TEXT_PLAIN)
	}
	return w.YieldServer(c)
}

// writeContinue sends the interim response synchronously.
func (c *Conn) writeContinue() bool {
	c.Header.WriteString(HTTP_VERSION + " " + STATUS_100 + "\r\n\r\n")
	var res, err = c.Header.WriteFd(c.Fd)
	c.Header.Reset()
	if res == vmbuf.WRITE_ERROR {
		c.server.log.WithField("fd", c.Fd).WithError(err).Debug("100 continue")
		return false
	}
	return true
}

// process splits the request line and runs the handler. head is everything up
// to the blank line, content the request body.
func (c *Conn) process(w *reactor.Worker, head []byte, content []byte) reactor.Handler {
	var line = head
	if i := bytes.Index(head, httpproto.CRLF); i >= 0 {
		line = head[:i]
		c.Headers = head[i+len(httpproto.CRLF):]
	}
	var sp = bytes.IndexByte(line, ' ')
	c.Method = string(line[:sp])
	var uri = line[sp+1:]
	if i := bytes.IndexByte(uri, ' '); i >= 0 {
		uri = uri[:i]
	}
	if i := bytes.IndexByte(uri, '?'); i >= 0 {
		c.Query = uri[i+1:]
		uri = uri[:i]
	}
	if bytes.HasPrefix(uri, absolute) {
		uri = uri[len(absolute):]
		if i := bytes.IndexByte(uri, '/'); i >= 0 {
			uri = uri[i:]
		} else {
			uri = uri[len(uri):]
		}
	}
	c.URI = uri
	c.Content = content
	c.server.metrics.requests.Inc(1)
	return c.server.Handler(w, c)
}

// checkPersistent applies the keep-alive defaults: HTTP/1.1 unless
// "Connection: close", HTTP/1.0 only with "Connection: Keep-Alive".
func checkPersistent(head []byte) bool {
	var conn = httpproto.Lookup(head, "Connection")
	if bytes.Contains(httpproto.FirstLine(head), http11) {
		return conn == nil || !httpproto.HasPrefixFold(conn, headerClose)
	}
	return conn != nil && httpproto.HasPrefixFold(conn, headerKeepAlive)
}

// HeaderValue returns the value of request header name, nil when absent.
func (c *Conn) HeaderValue(name string) []byte {
	return httpproto.LookupFields(c.Headers, name)
}

func (c *Conn) startWrite() reactor.Handler {
	if err := reactor.SetCork(c.Fd, true); err != nil {
		c.server.log.WithField("fd", c.Fd).WithError(err).Debug("TCP_CORK set")
	}
	c.server.countResponse(c.status)
	c.state = STATE_WRITE
	return c
}

func (c *Conn) onWrite(w *reactor.Worker) reactor.Handler {
	var res, err = c.Header.WriteFd(c.Fd)
	if res == vmbuf.WRITE_DONE && !c.head {
		res, err = c.Payload.WriteFd(c.Fd)
	}
	switch res {
	case vmbuf.WRITE_AGAIN:
		return w.YieldServer(c)
	case vmbuf.WRITE_ERROR:
		c.server.log.WithField("fd", c.Fd).WithError(err).Debug("write")
		return c.Close()
	}
	if c.segments != nil && !c.head {
		c.state = STATE_WRITE_CHAINED
		return c
	}
	return c.onWriteDone(w)
}

func (c *Conn) onWriteChained(w *reactor.Worker) reactor.Handler {
	var failed = false
	for c.segments != nil {
		var seg = c.segments
		for !failed && seg.Offset < seg.Size {
			var n, err = unix.Sendfile(c.Fd, seg.Fd, &seg.Offset, int(seg.Size-seg.Offset))
			if err != nil {
				if err == unix.EAGAIN {
					return w.YieldServer(c)
				}
				if err == unix.EINTR {
					continue
				}
				w.EP().TriggerOnError(c.Fd, reactor.ERROR_SENDFILE, err)
				failed = true
				break
			}
			if n == 0 {
				failed = true
			}
		}
		c.segments = seg.next
		c.server.releaseSegment(seg)
	}
	if failed {
		return c.Close()
	}
	return c.onWriteDone(w)
}

func (c *Conn) onWriteDone(w *reactor.Worker) reactor.Handler {
	if !c.Persistent {
		return c.Close()
	}
	if err := reactor.SetCork(c.Fd, false); err != nil {
		c.server.log.WithField("fd", c.Fd).WithError(err).Debug("TCP_CORK release")
	}
	return c.onInit(w)
}

// Close ends the connection and leaves the slot ready for the next accept.
func (c *Conn) Close() reactor.Handler {
	reactor.CancelTimeout(&c.Event)
	c.state = STATE_INIT
	c.releaseSegments()
	if err := unix.Close(c.Fd); err != nil {
		c.server.ep.TriggerOnError(c.Fd, reactor.ERROR_CLOSE_CONNECTION, err)
	}
	return nil
}

// SuspendEvents takes the connection out of epoll while its handler waits on
// something else, typically a client request.
func (c *Conn) SuspendEvents(w *reactor.Worker) error {
	return w.Del(c)
}

func (c *Conn) ResumeEvents(w *reactor.Worker) error {
	return w.Add(c, reactor.EV_INOUT_ET)
}
