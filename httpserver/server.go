//go:build linux

// Package httpserver is an HTTP/1.x server state machine driven by the
// reactor. Each accepted descriptor gets a preallocated Conn that parses a
// request into its own buffers, hands it to the RequestHandler and writes the
// response back, yielding on the server timeout chain whenever the socket
// would block.
package httpserver

import (
	"fmt"

	"github.com/gotcp/reactor"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_SERVER_NAME = "reactor/1.0"
	SEGMENT_POOL_SIZE   = 1024
)

const (
	METRIC_REQUESTS  = "httpserver.requests"
	METRIC_RESPONSES = "httpserver.responses."
)

// RequestHandler runs once a request is fully buffered. It builds the response
// with the Conn's builders and returns the Conn (via HeaderClose, Response,
// ...) or nil when the response is produced later.
type RequestHandler func(w *reactor.Worker, c *Conn) reactor.Handler

type Server struct {
	Name           string
	MaxRequestSize int
	Handler        RequestHandler

	ep       *reactor.EP
	log      logrus.FieldLogger
	conns    *reactor.EventArray[Conn]
	segments *reactor.ObjectPool[Segment]
	metrics  serverMetrics
}

type serverMetrics struct {
	requests  metrics.Counter
	responses [6]metrics.Counter
}

func newServerMetrics(r metrics.Registry) serverMetrics {
	var m = serverMetrics{
		requests: metrics.GetOrRegisterCounter(METRIC_REQUESTS, r),
	}
	for i := 1; i < len(m.responses); i++ {
		m.responses[i] = metrics.GetOrRegisterCounter(fmt.Sprintf("%s%dxx", METRIC_RESPONSES, i), r)
	}
	return m
}

// New creates a server whose connection slots cover the process descriptor
// limit. A nil handler answers every request with 404.
func New(ep *reactor.EP, handler RequestHandler) (*Server, error) {
	var s = &Server{
		Name:           DEFAULT_SERVER_NAME,
		MaxRequestSize: reactor.DEFAULT_MAX_REQUEST_SIZE,
		Handler:        handler,
		ep:             ep,
		log:            ep.Logger,
		metrics:        newServerMetrics(ep.Metrics),
	}
	if s.Handler == nil {
		s.Handler = NotFound
	}
	var conns, err = reactor.NewEventArray(func(fd int) *Conn {
		return &Conn{server: s}
	})
	if err != nil {
		return nil, fmt.Errorf("connection slots: %w", err)
	}
	s.conns = conns
	s.segments = reactor.NewObjectPool(SEGMENT_POOL_SIZE, func() *Segment {
		return &Segment{Fd: -1}
	})
	return s, nil
}

func (s *Server) SetMaxRequestSize(n int) {
	s.MaxRequestSize = n
}

func (s *Server) SetName(name string) {
	s.Name = name
}

func (s *Server) SetHandler(h RequestHandler) {
	s.Handler = h
}

// Slot hands the acceptor the connection object for fd, in state INIT.
func (s *Server) Slot(fd int) reactor.Handler {
	var c = s.conns.Get(fd)
	if c == nil {
		return nil
	}
	c.Fd = fd
	c.state = STATE_INIT
	return c
}

// Conn returns the connection object of fd if it was ever used.
func (s *Server) Conn(fd int) *Conn {
	return s.conns.Peek(fd)
}

func (s *Server) countResponse(status string) {
	if len(status) == 0 {
		return
	}
	var class = int(status[0] - '0')
	if class > 0 && class < len(s.metrics.responses) {
		s.metrics.responses[class].Inc(1)
	}
}

// NotFound answers 404.
func NotFound(w *reactor.Worker, c *Conn) reactor.Handler {
	return c.Response(STATUS_404, CONTENT_TYPE_TEXT_PLAIN)
}
