package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const streamWriteDeadline = 10 * time.Second

// StreamTransport delivers batches over a persistent WebSocket
// connection. Success means the write was accepted by the connection;
// a failed write tears the connection down and the next send redials.
// Used as the preferred non-teardown mechanism for ws:// endpoints.
type StreamTransport struct {
	endpoint string
	apiKey   string
	dialer   *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewStream creates a streaming transport for a ws:// or wss://
// endpoint. The connection is dialed lazily on the first send.
func NewStream(endpoint, apiKey string, timeout time.Duration) *StreamTransport {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &StreamTransport{
		endpoint: endpoint,
		apiKey:   apiKey,
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
	}
}

func (t *StreamTransport) Name() string { return "stream" }

// Send writes one batch frame, dialing first if needed.
func (t *StreamTransport) Send(ctx context.Context, body []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		if err := t.dialLocked(ctx); err != nil {
			return err
		}
	}

	t.conn.SetWriteDeadline(time.Now().Add(streamWriteDeadline))
	if err := t.conn.WriteMessage(websocket.TextMessage, body); err != nil {
		// Connection is suspect after any write error; drop it so the
		// next send starts fresh.
		t.conn.Close()
		t.conn = nil
		return fmt.Errorf("stream write failed: %w", err)
	}
	return nil
}

func (t *StreamTransport) dialLocked(ctx context.Context) error {
	var header map[string][]string
	if t.apiKey != "" {
		header = map[string][]string{"Authorization": {"Bearer " + t.apiKey}}
	}

	conn, resp, err := t.dialer.DialContext(ctx, t.endpoint, header)
	if err != nil {
		if resp != nil {
			drainAndClose(resp)
		}
		return fmt.Errorf("stream dial failed: %w", err)
	}
	t.conn = conn
	return nil
}

// Close shuts the connection down, if any.
func (t *StreamTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
