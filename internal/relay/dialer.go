// Package relay manages the pool of websocket connections to Nostr
// relays: per-relay roles and health, fan-out publishing with at-least-one
// ack semantics, and deduplicated fan-in subscriptions.
package relay

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is a single relay transport connection. The pool runs one reader
// goroutine per connection and serializes writes with its own lock, so
// implementations only need to be safe for one reader and one writer.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens transport connections. The production implementation wraps
// gorilla/websocket; tests substitute an in-memory fake.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer is the production Dialer.
type WebsocketDialer struct{}

func (WebsocketDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	return data, err
}

func (w *wsConn) WriteMessage(data []byte) error {
	return w.c.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	return w.c.Close()
}
