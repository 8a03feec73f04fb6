package testutil

import (
	"context"
	"sync"

	"github.com/roach88/lockstep/internal/transport"
)

type message struct {
	op      transport.Op
	payload []byte
}

// mailbox is an unbounded, ordered queue shared by both ends of a pipe.
type mailbox struct {
	mu     sync.Mutex
	queue  []message
	notify chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) put(msg message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return transport.ErrClosed
	}
	m.queue = append(m.queue, msg)
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// take returns the next message. ok is false once the mailbox is closed
// and drained.
func (m *mailbox) take() (msg message, ok bool, wait <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) > 0 {
		msg = m.queue[0]
		m.queue = m.queue[1:]
		return msg, true, nil
	}
	if m.closed {
		return message{}, false, nil
	}
	return message{}, false, m.notify
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.notify)
	}
}

// PipeConn is one end of an in-memory connection. It satisfies
// transport.Conn and relay.Conn.
type PipeConn struct {
	in, out *mailbox
}

// Pipe returns two connected ends. Messages sent on one are read, in
// order, from the other. Closing either end closes both.
func Pipe() (*PipeConn, *PipeConn) {
	a, b := newMailbox(), newMailbox()
	return &PipeConn{in: a, out: b}, &PipeConn{in: b, out: a}
}

// Send implements transport.Conn.
func (c *PipeConn) Send(op transport.Op, payload []byte) error {
	return c.out.put(message{op: op, payload: append([]byte(nil), payload...)})
}

// Close implements transport.Conn.
func (c *PipeConn) Close() error {
	c.in.close()
	c.out.close()
	return nil
}

// ReadLoop delivers inbound messages to h until the pipe is closed and
// drained, h fails, or ctx is cancelled.
func (c *PipeConn) ReadLoop(ctx context.Context, h transport.Handler) error {
	for {
		msg, ok, wait := c.in.take()
		if ok {
			if err := h(msg.op, msg.payload); err != nil {
				return err
			}
			continue
		}
		if wait == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}
