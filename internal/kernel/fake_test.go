package kernel

import (
	"context"
	"errors"
	"sync"
)

// replyFunc decides the frames a fake kernel sends for one request. If
// hangup is true the kernel closes the channel after sending them.
type replyFunc func(req *Envelope) (frames []*Envelope, hangup bool)

// fakeKernel is a Dialer that serves every dialed channel in memory.
type fakeKernel struct {
	reply   replyFunc
	dialErr error

	mu        sync.Mutex
	dials     int
	endpoints []string
	requests  []*Envelope
}

func newFakeKernel(reply replyFunc) *fakeKernel {
	return &fakeKernel{reply: reply}
}

func (k *fakeKernel) Dial(ctx context.Context, endpoint string) (Channel, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.dialErr != nil {
		return nil, k.dialErr
	}
	k.dials++
	k.endpoints = append(k.endpoints, endpoint)
	client, server := Direct()
	go k.serve(server)
	return client, nil
}

func (k *fakeKernel) serve(ch Channel) {
	defer ch.Close()
	for {
		req, err := ch.Recv()
		if err != nil {
			return
		}
		k.mu.Lock()
		k.requests = append(k.requests, req)
		k.mu.Unlock()

		frames, hangup := k.reply(req)
		for _, f := range frames {
			if err := ch.Send(f); err != nil {
				return
			}
		}
		if hangup {
			return
		}
	}
}

func (k *fakeKernel) dialCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.dials
}

func (k *fakeKernel) received() []*Envelope {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]*Envelope(nil), k.requests...)
}

// reply builds a frame answering req.
func reply(req *Envelope, msgType string, content map[string]any) *Envelope {
	env := NewEnvelope(req.Header.KernelID, req.Header.Session, msgType, content)
	env.Channel = "iopub"
	env.ParentHeader = map[string]any{"msg_id": req.ID(), "msg_type": req.Type()}
	return env
}

// data wraps a MIME payload into a content block.
func data(payload map[string]any) map[string]any {
	return map[string]any{"data": payload, "metadata": map[string]any{}}
}

// exchangeFunc adapts a function to the Exchanger interface.
type exchangeFunc func(ctx context.Context, req *Envelope) (Stream, error)

func (f exchangeFunc) Exchange(ctx context.Context, req *Envelope) (Stream, error) {
	return f(ctx, req)
}

var errBoom = errors.New("boom")
