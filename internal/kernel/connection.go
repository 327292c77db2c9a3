package kernel

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"time"

	"github.com/inercia/hermes/internal/logging"
)

// Connection is attached to one running kernel. It owns a Dispatcher and the
// display and result handler registries. It is safe for concurrent use.
type Connection struct {
	kernelID string
	language string
	endpoint string
	session  string

	transport    *Transport
	dispatcher   *Dispatcher
	display      *Registry[DisplayHandler]
	results      *Registry[ResultHandler]
	replyTimeout time.Duration
	logger       *slog.Logger
}

// Option configures a Connection.
type Option func(*options)

type options struct {
	dialer       Dialer
	token        string
	mode         ChannelMode
	replyTimeout time.Duration
	logger       *slog.Logger
	display      map[string]DisplayHandler
	results      map[string]ResultHandler
}

// WithDialer sets the dialer used to open channels. The default dials
// WebSockets.
func WithDialer(d Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithToken sets the server token sent by the default WebSocket dialer.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithChannelMode selects how channels are obtained. Default is PerCall.
func WithChannelMode(m ChannelMode) Option {
	return func(o *options) { o.mode = m }
}

// WithReplyTimeout bounds every exchange of the connection. Zero, the
// default, waits indefinitely unless the caller's context says otherwise.
func WithReplyTimeout(d time.Duration) Option {
	return func(o *options) { o.replyTimeout = d }
}

// WithLogger sets the logger. Default is the "kernel" component logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDisplayHandler registers h for display_data payloads of type mime.
// A later registration for the same type replaces an earlier one.
func WithDisplayHandler(mime string, h DisplayHandler) Option {
	return func(o *options) { o.display[mime] = h }
}

// WithResultHandler registers h for execute_result payloads of type mime.
// A later registration for the same type replaces an earlier one.
func WithResultHandler(mime string, h ResultHandler) Option {
	return func(o *options) { o.results[mime] = h }
}

// Connect attaches to the kernel kernelID of the given language, reachable
// under the base WebSocket URL baseWS. No channel is opened until the first
// exchange.
func Connect(kernelID, language, baseWS string, opts ...Option) (*Connection, error) {
	if kernelID == "" {
		return nil, errors.New("kernel: empty kernel ID")
	}
	if baseWS == "" {
		return nil, errors.New("kernel: empty base endpoint")
	}

	o := options{
		display: make(map[string]DisplayHandler),
		results: make(map[string]ResultHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.WithKernel(logging.Kernel(), kernelID, language)
	}
	if o.dialer == nil {
		o.dialer = WebSocketDialer{Token: o.token}
	}

	endpoint := ChannelsURL(baseWS, kernelID)
	transport := NewTransport(endpoint, o.dialer, o.mode, o.logger)
	c := &Connection{
		kernelID:     kernelID,
		language:     language,
		endpoint:     endpoint,
		session:      newID(),
		transport:    transport,
		dispatcher:   NewDispatcher(transport, o.replyTimeout, o.logger),
		display:      NewRegistry(o.display),
		results:      NewRegistry(o.results),
		replyTimeout: o.replyTimeout,
		logger:       o.logger,
	}
	c.logger.Debug("kernel connection created",
		"endpoint", endpoint,
		"channel_mode", o.mode.String(),
		"display_handlers", c.display.MIMETypes(),
		"result_handlers", c.results.MIMETypes())
	return c, nil
}

// KernelID returns the ID of the attached kernel.
func (c *Connection) KernelID() string { return c.kernelID }

// Language returns the kernel language tag.
func (c *Connection) Language() string { return c.language }

// Endpoint returns the channels endpoint of the kernel.
func (c *Connection) Endpoint() string { return c.endpoint }

// Session returns the session ID stamped on every request.
func (c *Connection) Session() string { return c.session }

// Metrics returns the dispatcher metrics of the connection.
func (c *Connection) Metrics() *expvar.Map { return c.dispatcher.Metrics() }

// Close waits for queued requests to finish and releases the connection.
// It must not be called from an Execute or Submit callback.
func (c *Connection) Close() error {
	derr := c.dispatcher.Close()
	terr := c.transport.close()
	return errors.Join(derr, terr)
}

// Build returns a fresh request envelope of the given type.
func (c *Connection) Build(msgType string, content map[string]any) *Envelope {
	return NewEnvelope(c.kernelID, c.session, msgType, content)
}

// Submit queues env on the dispatcher. cb receives the reply stream or the
// error that prevented it.
func (c *Connection) Submit(env *Envelope, cb Callback) error {
	return c.dispatcher.Submit(env, cb)
}

// Request runs env on the caller's goroutine, bypassing the queue, and
// returns the single content block of type expected.
func (c *Connection) Request(ctx context.Context, env *Envelope, expected string) (map[string]any, error) {
	if c.replyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.replyTimeout)
		defer cancel()
	}
	c.dispatcher.metrics.syncRequests.Add(1)

	stream, err := c.transport.Exchange(ctx, env)
	if err != nil {
		return nil, err
	}
	blocks := SelectByType(stream, expected)
	if len(blocks) != 1 {
		return nil, violation(UnexpectedReplyCount, "want 1 %s, got %d", expected, len(blocks))
	}
	return blocks[0], nil
}

// Execute queues code for execution. Display payloads and the execution
// result are routed to the registered handlers on the worker goroutine;
// done, if non-nil, is then called with nil or with every failure joined.
func (c *Connection) Execute(code string, done func(error)) error {
	env := c.Build(MsgExecuteRequest, map[string]any{
		"code":             code,
		"silent":           false,
		"store_history":    true,
		"user_expressions": map[string]any{},
		"allow_stdin":      false,
	})
	return c.Submit(env, func(stream Stream, err error) {
		if err == nil {
			err = c.route(code, stream)
		}
		if err != nil {
			c.logger.Warn("execute failed", "msg_id", env.ID(), "error", err)
		}
		if done != nil {
			done(err)
		}
	})
}

// route dispatches the payloads of an execute reply stream. Every handler
// runs even if earlier ones fail.
func (c *Connection) route(code string, stream Stream) error {
	var errs []error
	for _, content := range SelectByType(stream, MsgDisplayData) {
		payload := PayloadOf(content)
		for _, mime := range MIMEKeys(payload) {
			h, ok := c.display.Lookup(mime)
			if !ok {
				continue
			}
			if err := guard(mime, func() error { return h.HandleDisplay(payload[mime]) }); err != nil {
				errs = append(errs, err)
			}
		}
	}

	results := SelectByType(stream, MsgExecuteResult)
	switch {
	case len(results) > 1:
		errs = append(errs, fmt.Errorf("%w: got %d", ErrTooManyResults, len(results)))
	case len(results) == 1:
		payload := PayloadOf(results[0])
		for _, mime := range MIMEKeys(payload) {
			h, ok := c.results.Lookup(mime)
			if !ok {
				continue
			}
			if err := guard(mime, func() error { return h.HandleResult(code, payload[mime]) }); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Complete asks the kernel for completions of code at cursorPos and returns
// the matches as sent by the kernel.
func (c *Connection) Complete(ctx context.Context, code string, cursorPos int) ([]string, error) {
	env := c.Build(MsgCompleteRequest, map[string]any{
		"code":             code,
		"cursor_pos":       cursorPos,
		"silent":           false,
		"store_history":    true,
		"user_expressions": map[string]any{},
		"allow_stdin":      false,
	})
	content, err := c.Request(ctx, env, MsgCompleteReply)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}

	var raw []any
	switch m := content["matches"].(type) {
	case nil:
		return []string{}, nil
	case []string:
		return m, nil
	case []any:
		raw = m
	default:
		return nil, violation(MalformedEnvelope, "complete_reply matches is %T", m)
	}
	matches := make([]string, 0, len(raw))
	for i, m := range raw {
		s, ok := m.(string)
		if !ok {
			return nil, violation(MalformedEnvelope, "complete_reply match %d is %T", i, m)
		}
		matches = append(matches, s)
	}
	return matches, nil
}
