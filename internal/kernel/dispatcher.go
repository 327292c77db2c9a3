package kernel

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/creachadair/mds/queue"
	"github.com/creachadair/taskgroup"
)

// Callback receives the outcome of one submitted request: the reply stream,
// or a non-nil error.
type Callback func(Stream, error)

// Exchanger performs one request/reply exchange. *Transport implements it.
type Exchanger interface {
	Exchange(ctx context.Context, req *Envelope) (Stream, error)
}

type task struct {
	env *Envelope
	cb  Callback
}

// Dispatcher runs submitted requests one at a time, in submission order, on
// a single worker goroutine.
//
// The queue is unbounded: Submit never blocks and a producer faster than the
// kernel grows the queue without limit. The current depth is reported as
// the "tasks_queued" metric.
type Dispatcher struct {
	ex      Exchanger
	timeout time.Duration
	logger  *slog.Logger
	metrics *dispatchMetrics
	tasks   *taskgroup.Group

	wake chan struct{} // buffered; signals the worker that the queue changed

	mu      sync.Mutex
	pending *queue.Queue[task]
	closed  bool
}

// NewDispatcher starts a dispatcher running exchanges on ex. If timeout is
// positive, each exchange gets that deadline. A nil logger disables logging.
func NewDispatcher(ex Exchanger, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &Dispatcher{
		ex:      ex,
		timeout: timeout,
		logger:  logger,
		metrics: newDispatchMetrics(),
		tasks:   taskgroup.New(nil),
		pending: queue.New[task](),
		wake:    make(chan struct{}, 1),
	}
	d.tasks.Go(d.run)
	return d
}

// Submit queues env; cb is called exactly once with its outcome, on the
// worker goroutine. Submit does not block. After Close it reports ErrClosed
// and cb is not called.
func (d *Dispatcher) Submit(env *Envelope, cb Callback) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.pending.Add(task{env: env, cb: cb})
	d.metrics.submitted.Add(1)
	d.metrics.queued.Add(1)
	d.mu.Unlock()

	d.signal()
	return nil
}

// Pending returns the number of queued tasks not yet started.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending.Len()
}

// Metrics returns the metrics map of the dispatcher.
func (d *Dispatcher) Metrics() *expvar.Map { return d.metrics.emap }

// Close stops accepting tasks and waits for the worker to finish the tasks
// already queued. Queued tasks are not cancelled.
//
// Close must not be called from a callback: the worker would wait on itself.
// A callback that needs to close the dispatcher can do so with "go d.Close()".
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	already := d.closed
	d.closed = true
	d.mu.Unlock()
	if !already {
		d.signal()
	}
	return d.tasks.Wait()
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() error {
	for {
		t, ok := d.next()
		if !ok {
			return nil
		}
		d.process(t)
	}
}

// next blocks until a task is available. It reports false once the
// dispatcher is closed and the queue is empty.
func (d *Dispatcher) next() (task, bool) {
	for {
		d.mu.Lock()
		if t, ok := d.pending.Pop(); ok {
			d.metrics.queued.Add(-1)
			d.mu.Unlock()
			return t, true
		}
		if d.closed {
			d.mu.Unlock()
			return task{}, false
		}
		d.mu.Unlock()
		<-d.wake
	}
}

func (d *Dispatcher) process(t task) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	d.metrics.activeCalls.Add(1)
	stream, err := d.exchange(ctx, t)
	d.metrics.activeCalls.Add(-1)
	if err != nil {
		d.metrics.failed.Add(1)
		d.logger.Warn("exchange failed", "msg_type", t.env.Type(), "msg_id", t.env.ID(), "error", err)
		stream = nil
	}

	d.invoke(t, stream, err)
	d.metrics.done.Add(1)
}

// exchange runs the task's exchange, reporting a panic as a TransportError
// so that the callback still sees the outcome.
func (d *Dispatcher) exchange(ctx context.Context, t task) (stream Stream, err error) {
	defer func() {
		if x := recover(); x != nil {
			d.metrics.exPanics.Add(1)
			d.logger.Error("exchange panicked", "msg_id", t.env.ID(), "panic", x)
			stream, err = nil, &TransportError{Op: "exchange", Err: fmt.Errorf("panic: %v", x)}
		}
	}()
	return d.ex.Exchange(ctx, t.env)
}

// invoke runs the task callback, isolating the worker from panics.
func (d *Dispatcher) invoke(t task, stream Stream, err error) {
	if t.cb == nil {
		return
	}
	defer func() {
		if x := recover(); x != nil {
			d.metrics.panics.Add(1)
			d.logger.Error("callback panicked", "msg_id", t.env.ID(), "panic", x)
		}
	}()
	t.cb(stream, err)
}
