package kernel

import "expvar"

// dispatchMetrics record dispatcher activity counters.
type dispatchMetrics struct {
	submitted    expvar.Int
	queued       expvar.Int // current queue depth; the queue is unbounded
	done         expvar.Int
	failed       expvar.Int // exchanges that reported an error to the callback
	panics       expvar.Int // callbacks that panicked
	exPanics     expvar.Int // exchanges that panicked; also counted in failed
	activeCalls  expvar.Int
	syncRequests expvar.Int

	emap *expvar.Map
}

func newDispatchMetrics() *dispatchMetrics {
	m := &dispatchMetrics{emap: new(expvar.Map)}
	m.emap.Set("tasks_submitted", &m.submitted)
	m.emap.Set("tasks_queued", &m.queued)
	m.emap.Set("tasks_done", &m.done)
	m.emap.Set("tasks_failed", &m.failed)
	m.emap.Set("callback_panics", &m.panics)
	m.emap.Set("exchange_panics", &m.exPanics)
	m.emap.Set("exchanges_active", &m.activeCalls)
	m.emap.Set("sync_requests", &m.syncRequests)
	return m
}
