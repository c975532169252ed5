package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// closeWriteTimeout bounds sending the close frame on teardown.
const closeWriteTimeout = time.Second

// Conn is one established channel. ReadMessage blocks until a message
// arrives or the connection fails; Close unblocks it.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

// Dialer opens a Conn. The context bounds the handshake only.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// MaxMessageSize limits inbound messages in bytes; 0 means no limit.
	MaxMessageSize int64
}

// Dial performs the WebSocket handshake.
func (d WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, err
	}

	if d.MaxMessageSize > 0 {
		ws.SetReadLimit(d.MaxMessageSize)
	}
	return &wsConn{ws: ws}, nil
}

// wsConn sends a normal-closure frame before closing the socket.
type wsConn struct {
	ws        *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ReadMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout)) //nolint:errcheck // Peer may already be gone
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
