//go:build linux

package httpclient

import (
	"time"

	"github.com/gotcp/reactor"
	"github.com/gotcp/reactor/vmbuf"
	"golang.org/x/sys/unix"
)

type ClientState int

const (
	STATE_WRITE_REQUEST ClientState = iota
	STATE_READ_RESPONSE
	STATE_READ_HEADER
	STATE_READ_FILE
	STATE_IDLE
	STATE_CLOSED
)

// CompleteFunc runs once the response is complete or the request failed. It
// must eventually call Close, which pools or closes the connection.
type CompleteFunc func(w *reactor.Worker, c *Client) reactor.Handler

// Client is one outbound connection: it writes Outbuf, then reads into Inbuf
// until its Proto reports the response complete. A Client belongs to the
// worker that acquired it until Close.
type Client struct {
	reactor.Event
	Outbuf     vmbuf.Buffer
	Inbuf      vmbuf.Buffer
	File       vmbuf.Buffer
	Endpoint   Endpoint
	Proto      Proto
	Persistent bool
	OnComplete CompleteFunc
	Context    any
	Started    time.Time

	manager  *Manager
	state    ClientState
	err      error
	fileMode bool
	next     *Client
	prev     *Client
}

func initBuffer(b *vmbuf.Buffer) error {
	if b.Initialized() {
		b.Reset()
		return nil
	}
	return b.InitDefault()
}

func (c *Client) prepare() error {
	if err := initBuffer(&c.Outbuf); err != nil {
		return err
	}
	if err := initBuffer(&c.Inbuf); err != nil {
		return err
	}
	c.state = STATE_WRITE_REQUEST
	c.Persistent = true
	c.OnComplete = nil
	c.Context = nil
	c.Started = time.Now()
	c.err = nil
	c.fileMode = false
	c.Proto.Prepare()
	return nil
}

func (c *Client) State() ClientState {
	return c.state
}

// Err is the reason the request failed, nil on success.
func (c *Client) Err() error {
	return c.err
}

// HTTP returns the HTTP framer, nil when the client speaks another protocol.
func (c *Client) HTTP() *HTTP {
	var h, _ = c.Proto.(*HTTP)
	return h
}

// StatusCode of an HTTP response, 0 before the status line was parsed.
func (c *Client) StatusCode() int {
	if h := c.HTTP(); h != nil {
		return h.StatusCode()
	}
	return 0
}

// HeaderValue looks up an HTTP response header.
func (c *Client) HeaderValue(name string) []byte {
	if h := c.HTTP(); h != nil {
		return h.HeaderValue(name)
	}
	return nil
}

// AppendBody appends the decoded HTTP response body to dst.
func (c *Client) AppendBody(dst []byte) []byte {
	if h := c.HTTP(); h != nil {
		return h.AppendBody(dst)
	}
	return dst
}

// FetchURI queues a GET request for uri.
func (c *Client) FetchURI(uri string, host string) error {
	return c.Outbuf.Printf("GET %s HTTP/1.1\r\nHost: %s\r\n\r\n", uri, host)
}

// Request queues a request with an optional body.
func (c *Client) Request(method string, uri string, host string, body []byte) error {
	var err = c.Outbuf.Printf("%s %s HTTP/1.1\r\nHost: %s\r\nContent-Length: %d\r\n\r\n", method, uri, host, len(body))
	if err != nil {
		return err
	}
	_, err = c.Outbuf.Write(body)
	return err
}

func (c *Client) Resume(w *reactor.Worker) reactor.Handler {
	switch c.state {
	case STATE_WRITE_REQUEST:
		return c.writeRequest(w)
	case STATE_READ_RESPONSE:
		return c.readResponse(w)
	case STATE_READ_HEADER:
		return c.readHeader(w)
	case STATE_READ_FILE:
		return c.readFile(w)
	case STATE_IDLE:
		return c.handleDisconnect(w)
	}
	return nil
}

func (c *Client) fail(err error) {
	if c.err == nil {
		c.err = err
		c.Proto.OnError(err)
	}
	c.Persistent = false
}

func (c *Client) complete(w *reactor.Worker) reactor.Handler {
	if c.err != nil {
		c.manager.metrics.failed.Inc(1)
		c.manager.log.WithField("fd", c.Fd).WithField("endpoint", c.Endpoint.String()).WithError(c.err).Debug("request failed")
	} else {
		c.manager.metrics.completed.Inc(1)
	}
	if c.OnComplete == nil {
		c.Close(w)
		return nil
	}
	return c.OnComplete(w, c)
}

func (c *Client) writeRequest(w *reactor.Worker) reactor.Handler {
	var res, err = c.Outbuf.WriteFd(c.Fd)
	switch res {
	case vmbuf.WRITE_AGAIN:
		return w.YieldClient(c)
	case vmbuf.WRITE_ERROR:
		c.fail(err)
		return c.complete(w)
	}
	if c.fileMode {
		c.state = STATE_READ_HEADER
	} else {
		c.state = STATE_READ_RESPONSE
	}
	if err = w.Mod(c, reactor.EV_IN_ET); err != nil {
		c.fail(err)
		return c.complete(w)
	}
	return c
}

func (c *Client) readResponse(w *reactor.Worker) reactor.Handler {
	var res, err = c.Inbuf.ReadFd(c.Fd)
	if res != vmbuf.READ_AGAIN {
		if res == vmbuf.READ_ERROR {
			c.fail(err)
		} else if more, perr := c.Proto.ReadContent(); perr != nil {
			c.fail(perr)
		} else if more {
			if cerr := c.Proto.OnClose(); cerr != nil {
				c.fail(cerr)
			}
		}
		c.Persistent = false
		return c.complete(w)
	}
	var more, perr = c.Proto.ReadContent()
	if perr != nil {
		c.fail(perr)
		return c.complete(w)
	}
	if more {
		return w.YieldClient(c)
	}
	return c.complete(w)
}

// Close ends the request. A connection that is still persistent is parked in
// the worker's pool on the server timeout chain, anything else is closed.
func (c *Client) Close(w *reactor.Worker) {
	if c.fileMode {
		c.File.Free()
		c.fileMode = false
	}
	if c.Persistent && c.err == nil {
		c.state = STATE_IDLE
		c.manager.Pool(w).park(c)
		w.YieldServer(c)
		return
	}
	c.drop()
}

func (c *Client) drop() {
	reactor.CancelTimeout(&c.Event)
	c.state = STATE_CLOSED
	unix.Close(c.Fd)
}

// handleDisconnect runs when an idle pooled connection sees activity: the
// peer closed it or its timeout shut it down.
func (c *Client) handleDisconnect(w *reactor.Worker) reactor.Handler {
	c.manager.Pool(w).unlink(c)
	c.drop()
	return nil
}
