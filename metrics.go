package reactor

import (
	"github.com/rcrowley/go-metrics"
)

const (
	METRIC_ACCEPTED       = "reactor.accepted"
	METRIC_ACCEPT_DROPPED = "reactor.accept.dropped"
	METRIC_TIMEOUTS       = "reactor.timeouts"
	METRIC_ERRORS         = "reactor.errors"
)

type epMetrics struct {
	accepted metrics.Counter
	dropped  metrics.Counter
	timeouts metrics.Counter
	errors   metrics.Counter
}

func newEPMetrics(r metrics.Registry) epMetrics {
	return epMetrics{
		accepted: metrics.GetOrRegisterCounter(METRIC_ACCEPTED, r),
		dropped:  metrics.GetOrRegisterCounter(METRIC_ACCEPT_DROPPED, r),
		timeouts: metrics.GetOrRegisterCounter(METRIC_TIMEOUTS, r),
		errors:   metrics.GetOrRegisterCounter(METRIC_ERRORS, r),
	}
}

// Counter returns the named counter from the reactor registry, creating it on
// first use. Callers on hot paths should keep the result.
func (ep *EP) Counter(name string) metrics.Counter {
	return metrics.GetOrRegisterCounter(name, ep.Metrics)
}
