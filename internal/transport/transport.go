// Package transport defines the message boundary between peers and the
// relay. The underlying connection delivers ordered, reliable byte messages;
// each message is an Op plus an opaque payload.
package transport

import (
	"errors"
	"fmt"

	"github.com/roach88/lockstep/internal/syncwork"
)

// Op identifies a message type.
type Op uint8

const (
	// OpJoin is sent once by a peer after connecting.
	OpJoin Op = iota + 1
	// OpCommand carries an encoded command: unstamped from peer to relay,
	// stamped from relay to peers.
	OpCommand
	// OpCaughtUp tells a joining peer that the journal backlog is complete
	// and live traffic follows.
	OpCaughtUp
	// OpReject is sent by the relay before it drops a peer.
	OpReject
)

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case OpJoin:
		return "join"
	case OpCommand:
		return "command"
	case OpCaughtUp:
		return "caught_up"
	case OpReject:
		return "reject"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// ErrClosed is returned when sending on a closed connection.
var ErrClosed = errors.New("connection closed")

// Conn is one ordered, reliable message stream.
type Conn interface {
	Send(op Op, payload []byte) error
	Close() error
}

// Handler receives inbound messages in delivery order. Returning an error
// ends the read loop.
type Handler func(op Op, payload []byte) error

// Join is the payload of OpJoin.
type Join struct {
	Player int32
	// AfterSeq is the last seq the peer already holds; the relay replays
	// everything after it.
	AfterSeq uint64
}

// Describe implements syncwork.Describable.
func (j *Join) Describe(w *syncwork.Worker) error {
	if err := w.BindInt32("player", &j.Player); err != nil {
		return err
	}
	return w.BindUint64("after_seq", &j.AfterSeq)
}

// CaughtUp is the payload of OpCaughtUp.
type CaughtUp struct {
	Seq uint64
}

// Describe implements syncwork.Describable.
func (c *CaughtUp) Describe(w *syncwork.Worker) error {
	return w.BindUint64("seq", &c.Seq)
}

// Reject is the payload of OpReject.
type Reject struct {
	Reason string
}

// Describe implements syncwork.Describable.
func (r *Reject) Describe(w *syncwork.Worker) error {
	return w.BindString("reason", &r.Reason)
}
