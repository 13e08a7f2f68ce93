//go:build linux

package httpclient

import (
	"bytes"
	"strconv"

	"github.com/gotcp/reactor"
	"github.com/gotcp/reactor/internal/httpproto"
	"github.com/gotcp/reactor/vmbuf"
)

// AcquireFile is Acquire for an HTTP download: the response body is streamed
// into a file-backed buffer at path and the file is truncated to the declared
// Content-Length once complete. Responses without a Content-Length fail.
func (m *Manager) AcquireFile(w *reactor.Worker, e Endpoint, path string) (*Client, error) {
	var c, err = m.Acquire(w, e)
	if err != nil {
		return nil, err
	}
	if c.HTTP() == nil {
		c.Persistent = false
		c.Close(w)
		return nil, ErrorNotHTTP
	}
	if err = c.File.Create(path, vmbuf.DEFAULT_INITIAL_SIZE); err != nil {
		c.Persistent = false
		c.Close(w)
		return nil, err
	}
	c.fileMode = true
	return c, nil
}

func (c *Client) reportError(w *reactor.Worker, err error) reactor.Handler {
	c.fail(err)
	return c.complete(w)
}

func (c *Client) readHeader(w *reactor.Worker) reactor.Handler {
	var res, err = c.Inbuf.ReadFd(c.Fd)
	if res == vmbuf.READ_ERROR {
		return c.reportError(w, err)
	}
	var data = c.Inbuf.Written()
	var i = bytes.Index(data, httpproto.CRLFCRLF)
	if i < 0 {
		if res == vmbuf.READ_CLOSED {
			return c.reportError(w, ErrorIncomplete)
		}
		return w.YieldClient(c)
	}
	var h = c.HTTP()
	h.eoh = i + len(httpproto.CRLFCRLF)
	var head = data[:i]
	if err = h.parseHeader(head); err != nil {
		return c.reportError(w, err)
	}
	var cl = httpproto.Lookup(head, "Content-Length")
	if cl == nil {
		return c.reportError(w, ErrorNoContentLength)
	}
	var n int
	if n, err = strconv.Atoi(string(cl)); err != nil || n < 0 {
		return c.reportError(w, ErrorBadFraming)
	}
	h.length = n
	h.framing = framingLength
	h.chunkEnd = h.eoh + n
	if _, err = c.File.Write(data[h.eoh:]); err != nil {
		return c.reportError(w, err)
	}
	c.state = STATE_READ_FILE
	if res == vmbuf.READ_CLOSED {
		c.Persistent = false
		return c.finishFile(w, true)
	}
	return c
}

func (c *Client) readFile(w *reactor.Worker) reactor.Handler {
	var res, err = c.File.ReadFd(c.Fd)
	if res == vmbuf.READ_ERROR {
		return c.reportError(w, err)
	}
	if res == vmbuf.READ_CLOSED {
		c.Persistent = false
	}
	return c.finishFile(w, res == vmbuf.READ_CLOSED)
}

func (c *Client) finishFile(w *reactor.Worker, closed bool) reactor.Handler {
	var length = c.HTTP().length
	if c.File.WLoc() >= length {
		c.File.Rollback(length)
		if err := c.File.Finalize(); err != nil {
			return c.reportError(w, err)
		}
		return c.complete(w)
	}
	if closed {
		return c.reportError(w, ErrorIncomplete)
	}
	return w.YieldClient(c)
}

// FilePath is where a download is being written.
func (c *Client) FilePath() string {
	return c.File.Path()
}
