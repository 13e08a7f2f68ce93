package reactor

// dispatch is the trampoline: each resumption returns the next object to run
// on this thread, nil ends the chain.
func (w *Worker) dispatch(h Handler) {
	for h != nil {
		h = h.Resume(w)
	}
}

// Run resumes h immediately on this worker, as if it had become ready.
func (w *Worker) Run(h Handler) {
	CancelTimeout(h.Base())
	w.dispatch(h)
}

// Yield parks h on chain and returns nil so the caller can hand control back
// to epoll in one statement: return w.Yield(w.ServerChain, h).
func (w *Worker) Yield(chain *TimeoutChain, h Handler) Handler {
	chain.Schedule(h.Base())
	return nil
}

func (w *Worker) YieldServer(h Handler) Handler {
	return w.Yield(w.ServerChain, h)
}

func (w *Worker) YieldClient(h Handler) Handler {
	return w.Yield(w.ClientChain, h)
}
