package reactor

import (
	"github.com/wuyongjia/threadpool"
)

// newThreadPool hosts the worker loops beyond the first one. Every payload is
// a *Worker whose loop runs until the reactor stops.
func (ep *EP) newThreadPool(threads int) *threadpool.Pool {
	var p = threadpool.NewWithFunc(threads, threads, func(payload interface{}) {
		var w, ok = payload.(*Worker)
		if ok {
			w.run()
			ep.wg.Done()
		}
	})
	return p
}
