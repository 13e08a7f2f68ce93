//go:build linux

// Package httpclient is the outbound side of the reactor: HTTP/1.1 requests
// driven as event objects, with idle persistent connections pooled per worker
// and per endpoint.
package httpclient

import (
	"errors"
	"fmt"

	"github.com/gotcp/reactor"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const (
	METRIC_POOL_HITS   = "httpclient.pool.hits"
	METRIC_POOL_MISSES = "httpclient.pool.misses"
	METRIC_COMPLETED   = "httpclient.completed"
	METRIC_FAILED      = "httpclient.failed"
)

var (
	ErrorNoIPv4          = errors.New("httpclient: no IPv4 address")
	ErrorIncomplete      = errors.New("httpclient: incomplete response")
	ErrorBadStatusLine   = errors.New("httpclient: malformed status line")
	ErrorBadFraming      = errors.New("httpclient: malformed content length")
	ErrorBadChunk        = errors.New("httpclient: malformed chunk")
	ErrorNoContentLength = errors.New("httpclient: response has no content length")
	ErrorNotHTTP         = errors.New("httpclient: client does not speak HTTP")
)

// Manager owns the process-wide client slots, one per descriptor number, and
// hands out connections from the calling worker's pool. Every client of a
// Manager speaks the same Proto.
type Manager struct {
	ep       *reactor.EP
	log      logrus.FieldLogger
	clients  *reactor.EventArray[Client]
	newProto NewProtoFunc
	metrics  clientMetrics
}

type clientMetrics struct {
	hits      metrics.Counter
	misses    metrics.Counter
	completed metrics.Counter
	failed    metrics.Counter
}

// NewManager serves HTTP/1.1.
func NewManager(ep *reactor.EP) (*Manager, error) {
	return NewProtoManager(ep, NewHTTP)
}

// NewProtoManager serves the request/response protocol built by newProto.
func NewProtoManager(ep *reactor.EP, newProto NewProtoFunc) (*Manager, error) {
	var m = &Manager{
		ep:       ep,
		log:      ep.Logger,
		newProto: newProto,
		metrics: clientMetrics{
			hits:      metrics.GetOrRegisterCounter(METRIC_POOL_HITS, ep.Metrics),
			misses:    metrics.GetOrRegisterCounter(METRIC_POOL_MISSES, ep.Metrics),
			completed: metrics.GetOrRegisterCounter(METRIC_COMPLETED, ep.Metrics),
			failed:    metrics.GetOrRegisterCounter(METRIC_FAILED, ep.Metrics),
		},
	}
	var clients, err = reactor.NewEventArray(func(fd int) *Client {
		var c = &Client{Event: reactor.Event{Fd: fd}, manager: m}
		c.Proto = m.newProto(c)
		return c
	})
	if err != nil {
		return nil, fmt.Errorf("client slots: %w", err)
	}
	m.clients = clients
	return m, nil
}

// Pool returns w's connection pool, created on first use.
func (m *Manager) Pool(w *reactor.Worker) *Pool {
	if p, ok := w.Local(m).(*Pool); ok {
		return p
	}
	var p = newPool()
	w.SetLocal(m, p)
	return p
}

// Acquire returns a connection to e ready for a request: an idle pooled one
// when available, otherwise a new socket whose connect is in progress. Fill
// Outbuf and set OnComplete before returning to the reactor.
func (m *Manager) Acquire(w *reactor.Worker, e Endpoint) (*Client, error) {
	var pool = m.Pool(w)
	for {
		var c = pool.take(e)
		if c == nil {
			break
		}
		reactor.CancelTimeout(&c.Event)
		if err := c.prepare(); err != nil {
			c.drop()
			return nil, err
		}
		if err := w.Mod(c, reactor.EV_OUT_ET); err != nil {
			c.drop()
			continue
		}
		pool.Hits++
		m.metrics.hits.Inc(1)
		return c, nil
	}
	pool.Misses++
	m.metrics.misses.Inc(1)
	return m.connect(w, e)
}

func (m *Manager) connect(w *reactor.Worker, e Endpoint) (*Client, error) {
	var fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		err = fmt.Errorf("socket: %w", err)
		m.ep.TriggerOnError(-1, reactor.ERROR_CONNECT, err)
		return nil, err
	}
	if err = reactor.SetReuseAddr(fd); err != nil {
		m.log.WithField("fd", fd).WithError(err).Debug("SO_REUSEADDR")
	}
	if err = reactor.SetNoDelay(fd); err != nil {
		m.log.WithField("fd", fd).WithError(err).Debug("TCP_NODELAY")
	}
	var c = m.clients.Get(fd)
	if c == nil {
		unix.Close(fd)
		m.ep.TriggerOnError(fd, reactor.ERROR_SLOTS_EXHAUSTED, reactor.ErrorSlotsExhausted)
		return nil, reactor.ErrorSlotsExhausted
	}
	c.Fd = fd
	c.Endpoint = e
	if err = c.prepare(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err = unix.Connect(fd, e.sockaddr()); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		err = fmt.Errorf("connect %s: %w", e, err)
		m.ep.TriggerOnError(fd, reactor.ERROR_CONNECT, err)
		return nil, err
	}
	if err = w.Add(c, reactor.EV_OUT_ET); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return c, nil
}
