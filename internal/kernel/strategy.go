package kernel

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ChannelMode selects how a Connection obtains channels for its exchanges.
type ChannelMode int

const (
	// PerCall dials a fresh channel for every exchange and closes it when
	// the exchange ends.
	PerCall ChannelMode = iota
	// Persistent keeps one channel open and serializes exchanges on it. A
	// channel that fails is discarded and a new one is dialed on the next
	// exchange.
	Persistent
)

func (m ChannelMode) String() string {
	switch m {
	case PerCall:
		return "per_call"
	case Persistent:
		return "persistent"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseChannelMode parses "per_call" or "persistent". The empty string is
// PerCall.
func ParseChannelMode(s string) (ChannelMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "per_call", "per-call", "percall":
		return PerCall, nil
	case "persistent":
		return Persistent, nil
	default:
		return PerCall, fmt.Errorf("unknown channel mode %q", s)
	}
}

// strategy hands out channels for exchanges. Every successful acquire must
// be paired with exactly one release.
type strategy interface {
	acquire(ctx context.Context) (Channel, error)
	release(ch Channel, failed bool)
	close() error
}

func newStrategy(mode ChannelMode, d Dialer, endpoint string) strategy {
	if mode == Persistent {
		return &persistent{dialer: d, endpoint: endpoint}
	}
	return perCall{dialer: d, endpoint: endpoint}
}

type perCall struct {
	dialer   Dialer
	endpoint string
}

func (p perCall) acquire(ctx context.Context) (Channel, error) {
	return p.dialer.Dial(ctx, p.endpoint)
}

func (p perCall) release(ch Channel, failed bool) { ch.Close() }

func (p perCall) close() error { return nil }

type persistent struct {
	dialer   Dialer
	endpoint string

	mu sync.Mutex // held from acquire to release
	ch Channel
}

func (p *persistent) acquire(ctx context.Context) (Channel, error) {
	p.mu.Lock()
	if p.ch != nil {
		return p.ch, nil
	}
	ch, err := p.dialer.Dial(ctx, p.endpoint)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

// release must be called with the channel returned by the matching
// acquire; p.mu has been held since then, so ch is p.ch.
func (p *persistent) release(ch Channel, failed bool) {
	defer p.mu.Unlock()
	if failed {
		ch.Close()
		p.ch = nil
	}
}

func (p *persistent) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}
