package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/wuyongjia/threadpool"
)

// EP is the reactor: configuration shared by all workers plus the set of
// running workers. Each worker owns an epoll instance, a server and a client
// TimeoutChain, and runs on its own locked OS thread.
type EP struct {
	Threads         int
	ServerTimeout   time.Duration
	ClientTimeout   time.Duration
	PinThreads      bool
	ExclusiveAccept bool
	OnThreadInit    OnThreadInitEvent
	OnError         OnErrorEvent
	Logger          logrus.FieldLogger
	Metrics         metrics.Registry

	metrics    epMetrics
	started    atomic.Bool
	stopped    atomic.Bool
	mu         sync.Mutex
	workers    []*Worker
	nextId     int
	signals    *SignalHandler
	threadPool *threadpool.Pool
	wg         sync.WaitGroup
}
