package kernel

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
)

// recorder is an Exchanger that records the order of exchanges and the
// maximum number running at once.
type recorder struct {
	delay func() time.Duration

	mu      sync.Mutex
	order   []string
	active  int
	maxSeen int
}

func (r *recorder) Exchange(ctx context.Context, req *Envelope) (Stream, error) {
	r.mu.Lock()
	r.active++
	r.maxSeen = max(r.maxSeen, r.active)
	r.order = append(r.order, req.Content["code"].(string))
	r.mu.Unlock()

	if r.delay != nil {
		time.Sleep(r.delay())
	}

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	return Stream{reply(req, MsgExecuteReply, map[string]any{"status": "ok"})}, nil
}

func codeEnv(code string) *Envelope {
	return NewEnvelope("k", "s", MsgExecuteRequest, map[string]any{"code": code})
}

func TestDispatcher_FIFO(t *testing.T) {
	defer leaktest.Check(t)()

	rec := &recorder{delay: func() time.Duration {
		return time.Duration(rand.IntN(3)) * time.Millisecond
	}}
	d := NewDispatcher(rec, 0, nil)

	var (
		mu        sync.Mutex
		callbacks []string
	)
	var want []string
	for i := range 20 {
		code := string(rune('a' + i))
		want = append(want, code)
		if err := d.Submit(codeEnv(code), func(s Stream, err error) {
			if err != nil {
				t.Errorf("Callback for %q got error: %v", code, err)
			}
			mu.Lock()
			callbacks = append(callbacks, code)
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if diff := cmp.Diff(want, rec.order); diff != "" {
		t.Errorf("Exchange order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, callbacks); diff != "" {
		t.Errorf("Callback order mismatch (-want +got):\n%s", diff)
	}
	if rec.maxSeen != 1 {
		t.Errorf("Max concurrent exchanges = %d, want 1", rec.maxSeen)
	}
}

func TestDispatcher_ConcurrentProducers(t *testing.T) {
	defer leaktest.Check(t)()

	rec := &recorder{}
	d := NewDispatcher(rec, 0, nil)

	const producers, perProducer = 8, 25
	var calls atomic.Int64
	g := taskgroup.New(nil)
	for p := range producers {
		g.Go(func() error {
			// Each producer's own submissions must stay in order.
			for i := range perProducer {
				code := string(rune('A'+p)) + string(rune('0'+i%10))
				if err := d.Submit(codeEnv(code), func(Stream, error) { calls.Add(1) }); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := calls.Load(); got != producers*perProducer {
		t.Errorf("Callbacks = %d, want %d", got, producers*perProducer)
	}
	if rec.maxSeen != 1 {
		t.Errorf("Max concurrent exchanges = %d, want 1", rec.maxSeen)
	}
	// Per-producer order is preserved.
	for p := range producers {
		prefix := rune('A' + p)
		var seq []string
		for _, code := range rec.order {
			if rune(code[0]) == prefix {
				seq = append(seq, code)
			}
		}
		for i, code := range seq {
			if want := string(prefix) + string(rune('0'+i%10)); code != want {
				t.Errorf("Producer %c position %d = %q, want %q", prefix, i, code, want)
				break
			}
		}
	}
}

func TestDispatcher_ErrorReachesCallback(t *testing.T) {
	defer leaktest.Check(t)()

	d := NewDispatcher(exchangeFunc(func(ctx context.Context, req *Envelope) (Stream, error) {
		return Stream{reply(req, MsgStatus, nil)}, &TransportError{Op: "dial", Err: errBoom}
	}), 0, nil)

	done := make(chan struct{})
	var (
		gotStream Stream
		gotErr    error
	)
	d.Submit(codeEnv("x"), func(s Stream, err error) {
		gotStream, gotErr = s, err
		close(done)
	})
	<-done
	d.Close()

	if !errors.Is(gotErr, errBoom) {
		t.Errorf("Callback error = %v, want errBoom", gotErr)
	}
	if gotStream != nil {
		t.Errorf("Callback stream = %v, want nil on error", gotStream)
	}
	if n := d.Metrics().Get("tasks_failed").String(); n != "1" {
		t.Errorf("tasks_failed = %s, want 1", n)
	}
}

func TestDispatcher_CallbackPanic(t *testing.T) {
	defer leaktest.Check(t)()

	d := NewDispatcher(&recorder{}, 0, nil)
	var second atomic.Bool
	d.Submit(codeEnv("first"), func(Stream, error) { panic("callback bug") })
	d.Submit(codeEnv("second"), func(Stream, error) { second.Store(true) })
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !second.Load() {
		t.Error("Worker stopped after a panicking callback")
	}
	if n := d.Metrics().Get("callback_panics").String(); n != "1" {
		t.Errorf("callback_panics = %s, want 1", n)
	}
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	defer leaktest.Check(t)()

	release := make(chan struct{})
	d := NewDispatcher(exchangeFunc(func(ctx context.Context, req *Envelope) (Stream, error) {
		<-release
		return Stream{reply(req, MsgExecuteReply, nil)}, nil
	}), 0, nil)

	var calls atomic.Int64
	for range 5 {
		d.Submit(codeEnv("x"), func(Stream, error) { calls.Add(1) })
	}

	closed := make(chan error)
	go func() { closed <- d.Close() }()

	// Close is waiting on the queued tasks.
	select {
	case <-closed:
		t.Fatal("Close returned before the queue drained")
	case <-time.After(20 * time.Millisecond):
	}

	if err := d.Submit(codeEnv("late"), func(Stream, error) {
		t.Error("Callback invoked for a task submitted after Close")
	}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}

	close(release)
	if err := <-closed; err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := calls.Load(); got != 5 {
		t.Errorf("Callbacks = %d, want 5", got)
	}
	if d.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", d.Pending())
	}

	// Close is idempotent.
	if err := d.Close(); err != nil {
		t.Errorf("Second Close = %v", err)
	}
}

func TestDispatcher_Timeout(t *testing.T) {
	defer leaktest.Check(t)()

	k := newFakeKernel(func(req *Envelope) ([]*Envelope, bool) {
		return nil, false // never replies
	})
	tr := NewTransport("mem://kernel", k, PerCall, nil)
	d := NewDispatcher(tr, 30*time.Millisecond, nil)

	errc := make(chan error, 1)
	d.Submit(codeEnv("while True: pass"), func(s Stream, err error) { errc <- err })
	if err := <-errc; !errors.Is(err, ErrReplyTimeout) {
		t.Errorf("Callback error = %v, want ErrReplyTimeout", err)
	}
	d.Close()
}

func TestDispatcher_Metrics(t *testing.T) {
	defer leaktest.Check(t)()

	release := make(chan struct{})
	started := make(chan struct{}, 3)
	d := NewDispatcher(exchangeFunc(func(ctx context.Context, req *Envelope) (Stream, error) {
		started <- struct{}{}
		<-release
		return nil, nil
	}), 0, nil)

	for range 3 {
		d.Submit(codeEnv("x"), nil)
	}
	<-started

	m := d.Metrics()
	if got := m.Get("tasks_submitted").String(); got != "3" {
		t.Errorf("tasks_submitted = %s, want 3", got)
	}
	if got := m.Get("tasks_queued").String(); got != "2" {
		t.Errorf("tasks_queued = %s, want 2", got)
	}
	if got := m.Get("exchanges_active").String(); got != "1" {
		t.Errorf("exchanges_active = %s, want 1", got)
	}
	if got := d.Pending(); got != 2 {
		t.Errorf("Pending = %d, want 2", got)
	}

	close(release)
	d.Close()

	if got := m.Get("tasks_done").String(); got != "3" {
		t.Errorf("tasks_done = %s, want 3", got)
	}
	if got := m.Get("tasks_queued").String(); got != "0" {
		t.Errorf("tasks_queued = %s, want 0", got)
	}
}

func TestDispatcher_ExchangePanic(t *testing.T) {
	defer leaktest.Check(t)()

	d := NewDispatcher(exchangeFunc(func(ctx context.Context, req *Envelope) (Stream, error) {
		if req.Content["code"] == "first" {
			panic("channel bug")
		}
		return Stream{reply(req, MsgExecuteReply, nil)}, nil
	}), 0, nil)

	errs := make(chan error, 2)
	d.Submit(codeEnv("first"), func(s Stream, err error) { errs <- err })
	d.Submit(codeEnv("second"), func(s Stream, err error) { errs <- err })
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	var te *TransportError
	if err := <-errs; !errors.As(err, &te) || te.Op != "exchange" {
		t.Errorf("First callback error = %v, want exchange *TransportError", err)
	}
	if err := <-errs; err != nil {
		t.Errorf("Second callback error = %v, want nil", err)
	}
	m := d.Metrics()
	if got := m.Get("tasks_failed").String(); got != "1" {
		t.Errorf("tasks_failed = %s, want 1", got)
	}
	if got := m.Get("exchange_panics").String(); got != "1" {
		t.Errorf("exchange_panics = %s, want 1", got)
	}
	if got := m.Get("tasks_done").String(); got != "2" {
		t.Errorf("tasks_done = %s, want 2", got)
	}
}

func TestDispatcher_CloseFromCallback(t *testing.T) {
	defer leaktest.Check(t)()

	d := NewDispatcher(&recorder{}, 0, nil)
	closed := make(chan error, 1)
	var second atomic.Bool
	d.Submit(codeEnv("first"), func(Stream, error) {
		go func() { closed <- d.Close() }()
	})
	d.Submit(codeEnv("second"), func(Stream, error) { second.Store(true) })

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close started from a callback did not return")
	}
	if !second.Load() {
		t.Error("Task queued before Close was not run")
	}
}
