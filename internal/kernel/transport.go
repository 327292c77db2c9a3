package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/gorilla/websocket"
)

// Transport runs request/reply exchanges against one kernel endpoint.
// It is safe for concurrent use; with the Persistent mode concurrent
// exchanges are serialized.
type Transport struct {
	endpoint string
	strat    strategy
	logger   *slog.Logger
}

// NewTransport returns a transport that obtains channels from d according
// to mode. A nil logger disables logging.
func NewTransport(endpoint string, d Dialer, mode ChannelMode, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transport{
		endpoint: endpoint,
		strat:    newStrategy(mode, d, endpoint),
		logger:   logger,
	}
}

// Endpoint returns the endpoint the transport dials.
func (t *Transport) Endpoint() string { return t.endpoint }

// Exchange sends req and collects frames until the first terminal reply.
// It blocks until the reply arrives, the channel fails, or ctx ends. It
// does not impose a deadline of its own.
func (t *Transport) Exchange(ctx context.Context, req *Envelope) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	ch, err := t.strat.acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, contextError(ctx.Err())
		}
		return nil, &TransportError{Op: "dial", Err: err}
	}

	// A panic in the channel leaves failed set, so the channel is dropped.
	failed := true
	defer func() { t.strat.release(ch, failed) }()

	// Closing the channel is the only way to interrupt a blocked Recv.
	stop := context.AfterFunc(ctx, func() { ch.Close() })
	stream, err := t.collect(ctx, ch, req)
	interrupted := !stop()
	failed = err != nil || interrupted

	if err != nil {
		t.logger.Debug("exchange failed",
			"msg_type", req.Type(), "msg_id", req.ID(), "frames", len(stream), "error", err)
		return nil, err
	}
	t.logger.Debug("exchange complete",
		"msg_type", req.Type(), "msg_id", req.ID(), "frames", len(stream))
	return stream, nil
}

func (t *Transport) collect(ctx context.Context, ch Channel, req *Envelope) (Stream, error) {
	if err := ch.Send(req); err != nil {
		if ctx.Err() != nil {
			return nil, contextError(ctx.Err())
		}
		return nil, &TransportError{Op: "send", Err: err}
	}

	var stream Stream
	for {
		env, err := ch.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return stream, contextError(ctx.Err())
			}
			var pv *ProtocolViolation
			if errors.As(err, &pv) {
				return stream, err
			}
			if isClosed(err) {
				return stream, violation(IncompleteReply, "channel closed after %d frames", len(stream))
			}
			return stream, &TransportError{Op: "recv", Err: err}
		}
		if pid := env.ParentID(); pid != "" && pid != req.ID() {
			t.logger.Debug("skipping frame for another request",
				"msg_type", env.Type(), "parent_id", pid, "msg_id", req.ID())
			continue
		}
		stream = append(stream, env)
		if env.IsReply() {
			return stream, nil
		}
	}
}

// close releases any channel held by the transport.
func (t *Transport) close() error { return t.strat.close() }

// isClosed reports whether err means the peer or the local side closed the
// channel, as opposed to a failure of the channel itself.
func isClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ce *websocket.CloseError
	return errors.As(err, &ce)
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrReplyTimeout, err)
	}
	return err
}
