package kernel

import (
	"context"
	"net"
	"sync"
)

// A Channel carries envelopes to and from a kernel. Send and Recv may be
// called concurrently with each other, but not with themselves.
type Channel interface {
	// Send delivers one envelope to the kernel.
	Send(*Envelope) error

	// Recv blocks until the next envelope arrives. It reports io.EOF or
	// net.ErrClosed once the channel is closed.
	Recv() (*Envelope, error)

	// Close releases the channel. Blocked Recv calls return an error.
	Close() error
}

// A Dialer opens channels to a kernel endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, endpoint string) (Channel, error)

// Dial implements the Dialer interface.
func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Channel, error) {
	return f(ctx, endpoint)
}

// Direct constructs a connected pair of in-memory channels that pass
// envelopes without encoding them. Envelopes sent on A are received by B and
// vice versa. Closing either end closes both.
func Direct() (A, B Channel) {
	a2b := make(chan *Envelope)
	b2a := make(chan *Envelope)
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	A = &direct{out: a2b, in: b2a, done: done, stop: stop}
	B = &direct{out: b2a, in: a2b, done: done, stop: stop}
	return
}

type direct struct {
	out  chan<- *Envelope
	in   <-chan *Envelope
	done chan struct{}
	stop func()
}

// Send implements a method of the [Channel] interface.
func (d *direct) Send(env *Envelope) error {
	select {
	case <-d.done:
		return net.ErrClosed
	default:
	}
	select {
	case d.out <- env:
		return nil
	case <-d.done:
		return net.ErrClosed
	}
}

// Recv implements a method of the [Channel] interface.
func (d *direct) Recv() (*Envelope, error) {
	select {
	case env := <-d.in:
		return env, nil
	case <-d.done:
		return nil, net.ErrClosed
	}
}

// Close implements a method of the [Channel] interface.
func (d *direct) Close() error {
	d.stop()
	return nil
}
