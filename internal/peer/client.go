package peer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/lockstep/internal/codec"
	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/faction"
	"github.com/roach88/lockstep/internal/session"
	"github.com/roach88/lockstep/internal/syncwork"
	"github.com/roach88/lockstep/internal/timevote"
	"github.com/roach88/lockstep/internal/transport"
	"github.com/roach88/lockstep/internal/transport/ws"
)

// Conn is the relay connection a Client runs over.
type Conn interface {
	transport.Conn
	ReadLoop(ctx context.Context, h transport.Handler) error
}

// Client connects a Controller to a relay: it feeds relayed commands into
// the controller and sends the local player's commands out.
type Client struct {
	conn   Conn
	ctrl   *Controller
	player int32

	caughtUp     chan struct{}
	caughtUpOnce sync.Once
	rejects      atomic.Int64
}

// NewClient wraps an established connection.
func NewClient(conn Conn, ctrl *Controller, player int32) *Client {
	return &Client{
		conn:     conn,
		ctrl:     ctrl,
		player:   player,
		caughtUp: make(chan struct{}),
	}
}

// Dial connects to the relay websocket at url.
func Dial(ctx context.Context, url string, ctrl *Controller, player int32) (*Client, error) {
	conn, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, ctrl, player), nil
}

// Run joins the relay, asking for everything after the controller's newest
// seq, and then delivers relayed commands until the connection ends.
func (cl *Client) Run(ctx context.Context) error {
	join, err := syncwork.Encode(&transport.Join{Player: cl.player, AfterSeq: cl.ctrl.ReceivedSeq()})
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	if err := cl.conn.Send(transport.OpJoin, join); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	return cl.conn.ReadLoop(ctx, cl.handle)
}

func (cl *Client) handle(op transport.Op, payload []byte) error {
	switch op {
	case transport.OpCommand:
		cmd, err := command.Decode(payload, cl.ctrl.opts()...)
		if err != nil {
			return err
		}
		cl.ctrl.Receive(cmd)
		return nil

	case transport.OpCaughtUp:
		var cu transport.CaughtUp
		if err := syncwork.Decode(payload, &cu); err != nil {
			return fmt.Errorf("caught up: %w", err)
		}
		cl.ctrl.logger.Info("caught up with relay", "player", cl.player, "seq", cu.Seq)
		cl.caughtUpOnce.Do(func() { close(cl.caughtUp) })
		return nil

	case transport.OpReject:
		var r transport.Reject
		if err := syncwork.Decode(payload, &r); err != nil {
			return fmt.Errorf("reject: %w", err)
		}
		cl.rejects.Add(1)
		cl.ctrl.logger.Warn("relay rejected message", "player", cl.player, "reason", r.Reason)
		return nil

	default:
		return &codec.FormatError{What: "op", Message: fmt.Sprintf("unexpected %s from relay", op)}
	}
}

// CaughtUp is closed once the relay has sent the journal backlog.
func (cl *Client) CaughtUp() <-chan struct{} {
	return cl.caughtUp
}

// Rejects returns how many rejections the relay has sent.
func (cl *Client) Rejects() int64 {
	return cl.rejects.Load()
}

// Close closes the connection.
func (cl *Client) Close() error {
	return cl.conn.Close()
}

// Send submits a command. The relay stamps the player and chooses the
// frame, so only scope, opcode and payload matter.
func (cl *Client) Send(scope command.Scope, op command.Opcode, payload []byte) error {
	data, err := command.Encode(command.New(scope, 0, op, cl.player, payload), cl.ctrl.opts()...)
	if err != nil {
		return err
	}
	return cl.conn.Send(transport.OpCommand, data)
}

// Simulate submits an opaque simulation command.
func (cl *Client) Simulate(scope command.Scope, payload []byte) error {
	return cl.Send(scope, command.OpSimulation, payload)
}

// OpenSession asks for a session to be opened in scope.
func (cl *Client) OpenSession(scope command.Scope, p session.Payload) error {
	data, err := session.EncodeOpen(p)
	if err != nil {
		return err
	}
	return cl.Send(scope, command.OpSessionOpen, data)
}

// CloseSession asks for session id in scope to be closed.
func (cl *Client) CloseSession(scope command.Scope, id int32) error {
	data, err := session.EncodeClose(id)
	if err != nil {
		return err
	}
	return cl.Send(scope, command.OpSessionClose, data)
}

// Vote records the player's speed vote in scope.
func (cl *Client) Vote(scope command.Scope, s timevote.Speed) error {
	data, err := timevote.EncodeVote(s)
	if err != nil {
		return err
	}
	return cl.Send(scope, command.OpVote, data)
}

// ResetVotes clears every vote in scope.
func (cl *Client) ResetVotes(scope command.Scope) error {
	data, err := timevote.EncodeReset(timevote.CauseExplicit)
	if err != nil {
		return err
	}
	return cl.Send(scope, command.OpVoteReset, data)
}

// CreateFaction gives a faction a partition record in scope.
func (cl *Client) CreateFaction(scope command.Scope, id faction.ID) error {
	data, err := faction.EncodeFaction(id)
	if err != nil {
		return err
	}
	return cl.Send(scope, command.OpFactionCreate, data)
}

// InstallFaction installs a faction's partition in scope.
func (cl *Client) InstallFaction(scope command.Scope, id faction.ID) error {
	data, err := faction.EncodeFaction(id)
	if err != nil {
		return err
	}
	return cl.Send(scope, command.OpFactionInstall, data)
}
