package kernel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultHandshakeTimeout bounds the WebSocket opening handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// ChannelsURL returns the kernel channels endpoint under a base WebSocket
// URL, e.g. "ws://localhost:8888/api/kernels/<id>/channels".
func ChannelsURL(baseWS, kernelID string) string {
	return strings.TrimSuffix(baseWS, "/") + "/api/kernels/" + url.PathEscape(kernelID) + "/channels"
}

// WebSocketDialer dials kernel channels over WebSocket.
type WebSocketDialer struct {
	// Token, if set, is sent as "Authorization: token <Token>".
	Token string

	// HandshakeTimeout defaults to DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
}

// Dial implements the Dialer interface.
func (d WebSocketDialer) Dial(ctx context.Context, endpoint string) (Channel, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	var header http.Header
	if d.Token != "" {
		header = http.Header{}
		header.Set("Authorization", "token "+d.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connect: %w (status: %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	return &wsChannel{conn: conn}, nil
}

// wsChannel sends one envelope per text frame.
type wsChannel struct {
	conn *websocket.Conn

	mu     sync.Mutex // guards writes and closed
	closed bool
}

// Send implements a method of the [Channel] interface.
func (c *wsChannel) Send(env *Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Recv implements a method of the [Channel] interface.
func (c *wsChannel) Recv() (*Envelope, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		return DecodeEnvelope(data)
	}
}

// Close implements a method of the [Channel] interface.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}
