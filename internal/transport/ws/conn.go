// Package ws carries transport messages over websocket binary frames. The
// first byte of every frame is the Op; the rest is the payload.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/lockstep/internal/codec"
	"github.com/roach88/lockstep/internal/transport"
)

const writeWait = 10 * time.Second

// Conn adapts a websocket connection to transport.Conn. Sends are
// serialized; a single goroutine must own ReadLoop.
type Conn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
}

// New wraps an established websocket connection.
func New(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// Dial connects to a relay at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(conn), nil
}

// Upgrader returns the upgrader used by relay endpoints.
func Upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(_ *http.Request) bool { return true },
	}
}

// Accept upgrades an HTTP request to a Conn.
func Accept(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	conn, err := Upgrader().Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return New(conn), nil
}

// Send implements transport.Conn.
func (c *Conn) Send(op transport.Op, payload []byte) error {
	frame := make([]byte, 1+len(payload))
	frame[0] = byte(op)
	copy(frame[1:], payload)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("send %s: %w", op, err)
	}
	return nil
}

// Close implements transport.Conn. It sends a close frame when possible.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	return c.conn.Close()
}

// ReadLoop delivers inbound frames to h until the connection ends, h
// returns an error, or ctx is cancelled. A normal close returns nil. A
// non-binary or empty frame is a protocol violation and returns a
// codec.FormatError.
func (c *Conn) ReadLoop(ctx context.Context, h transport.Handler) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if kind != websocket.BinaryMessage || len(frame) == 0 {
			return &codec.FormatError{What: "frame", Message: "expected non-empty binary frame"}
		}
		if err := h(transport.Op(frame[0]), frame[1:]); err != nil {
			return err
		}
	}
}
