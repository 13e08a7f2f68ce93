package reactor

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_SERVER_TIMEOUT = 5 * time.Second
	DEFAULT_CLIENT_TIMEOUT = 1000 * time.Millisecond
)

func New(serverTimeout time.Duration, clientTimeout time.Duration) *EP {
	if serverTimeout <= 0 {
		serverTimeout = DEFAULT_SERVER_TIMEOUT
	}
	if clientTimeout <= 0 {
		clientTimeout = DEFAULT_CLIENT_TIMEOUT
	}
	var ep = &EP{
		Threads:       0,
		ServerTimeout: serverTimeout,
		ClientTimeout: clientTimeout,
		Logger:        logrus.StandardLogger(),
		OnThreadInit:  nil,
		OnError:       nil,
	}
	ep.SetMetrics(metrics.NewRegistry())
	return ep
}

// SetThreads sets the number of workers, 0 means one per CPU.
func (ep *EP) SetThreads(n int) {
	ep.Threads = n
}

func (ep *EP) SetServerTimeout(d time.Duration) {
	ep.ServerTimeout = d
}

func (ep *EP) SetClientTimeout(d time.Duration) {
	ep.ClientTimeout = d
}

func (ep *EP) SetPinThreads(on bool) {
	ep.PinThreads = on
}

func (ep *EP) SetExclusiveAccept(on bool) {
	ep.ExclusiveAccept = on
}

func (ep *EP) SetOnThreadInit(fn OnThreadInitEvent) {
	ep.OnThreadInit = fn
}

func (ep *EP) SetOnError(fn OnErrorEvent) {
	ep.OnError = fn
}

func (ep *EP) SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	ep.Logger = l
}

func (ep *EP) SetMetrics(r metrics.Registry) {
	if r == nil {
		r = metrics.NewRegistry()
	}
	ep.Metrics = r
	ep.metrics = newEPMetrics(r)
}

// MaskSignals ignores SIGPIPE process-wide so that writes to a closed peer
// surface as EPIPE.
func MaskSignals() {
	signal.Ignore(syscall.SIGPIPE)
}

// StopOnSignals installs a signal event object on the first worker that stops
// the reactor when one of sigs arrives. Defaults to SIGINT and SIGTERM.
func (ep *EP) StopOnSignals(sigs ...os.Signal) error {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	var h, err = NewSignalHandler(func(sig os.Signal) {
		ep.Logger.WithField("signal", sig.String()).Info("stopping")
		ep.Stop()
	}, sigs...)
	if err != nil {
		return err
	}
	ep.signals = h
	return nil
}

// Start runs the workers and blocks until all of them have returned. The
// first worker runs on the calling goroutine, the others on a thread pool.
func (ep *EP) Start() error {
	if !ep.started.CompareAndSwap(false, true) {
		return ErrorAlreadyStarted
	}
	var n = ep.Threads
	if n <= 0 {
		n = runtime.NumCPU()
	}
	var workers = make([]*Worker, 0, n)
	for i := 0; i < n; i++ {
		var w, err = ep.newWorker()
		if err != nil {
			for _, w = range workers {
				w.Close()
			}
			return err
		}
		workers = append(workers, w)
	}
	ep.Logger.WithField("threads", n).Info("reactor starting")

	ep.threadPool = ep.newThreadPool(n)
	ep.wg.Add(n - 1)
	for _, w := range workers[1:] {
		ep.threadPool.Invoke(w)
	}
	workers[0].run()
	ep.wg.Wait()
	ep.threadPool.Close()
	if ep.signals != nil {
		ep.signals.Close()
	}
	ep.Logger.Info("reactor stopped")
	return nil
}

// Stop asks every worker to leave its loop. Workers blocked in epoll are woken.
func (ep *EP) Stop() {
	ep.stopped.Store(true)
	ep.mu.Lock()
	defer ep.mu.Unlock()
	for _, w := range ep.workers {
		w.wake.signal()
	}
}

func (ep *EP) Stopped() bool {
	return ep.stopped.Load()
}

// NewWorker creates and initializes a worker that the caller drives itself
// with Worker.Poll, on a thread of its choosing.
func (ep *EP) NewWorker() (*Worker, error) {
	var w, err = ep.newWorker()
	if err != nil {
		return nil, err
	}
	if err = w.init(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Workers returns the number of live workers.
func (ep *EP) Workers() int {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return len(ep.workers)
}
