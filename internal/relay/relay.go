package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/roach88/lockstep/internal/codec"
	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/syncwork"
	"github.com/roach88/lockstep/internal/transport"
)

// Journal is the durable command log behind the relay.
type Journal interface {
	AppendCommand(ctx context.Context, cmd command.Command) error
	ReadCommands(ctx context.Context, afterSeq uint64) ([]command.Command, error)
	LastSeq(ctx context.Context) (uint64, error)
}

// Conn is a peer connection the relay can read from and write to.
type Conn interface {
	transport.Conn
	ReadLoop(ctx context.Context, h transport.Handler) error
}

var (
	// ErrNotJoined is returned for a command sent before OpJoin.
	ErrNotJoined = errors.New("peer has not joined")

	// ErrRateLimited is returned when a player exceeds the intake rate.
	ErrRateLimited = errors.New("rate limited")

	// ErrReservedOpcode is returned when a peer submits a relay-only opcode.
	ErrReservedOpcode = errors.New("opcode is reserved for the relay")
)

// Relay orders commands from every peer into one stream.
//
// The relay never simulates. It stamps each accepted command with a seq,
// journals it, and broadcasts it to every joined peer, all under one lock,
// so every peer receives the same commands in the same order. It also owns
// the frame clock: Advance broadcasts the newest frame peers may step to,
// and a command targeting a frame that has already been advanced is moved
// to the next one.
type Relay struct {
	mu       sync.Mutex
	seq      atomic.Uint64 // last stamped; stored under mu
	frame    uint64
	journal  Journal
	peers    map[*peer]struct{}
	limiters map[int32]*rate.Limiter

	rate       rate.Limit
	burst      int
	limits     codec.Limits
	inputDelay uint64
	logger     *slog.Logger
}

type peer struct {
	id     string
	conn   Conn
	player int32
	joined bool
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = l
	}
}

// WithRateLimit sets the per-player command rate. A zero limit disables
// limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(r *Relay) {
		if perSecond <= 0 {
			r.rate = rate.Inf
		} else {
			r.rate = rate.Limit(perSecond)
		}
		r.burst = burst
	}
}

// WithLimits sets the codec limits applied to inbound messages.
func WithLimits(l codec.Limits) Option {
	return func(r *Relay) {
		r.limits = l
	}
}

// WithInputDelay sets the minimum number of frames between the current
// frame and a command's target.
func WithInputDelay(frames uint64) Option {
	return func(r *Relay) {
		r.inputDelay = frames
	}
}

// New creates a relay over journal, resuming the seq and frame from
// whatever the journal already holds.
func New(ctx context.Context, journal Journal, opts ...Option) (*Relay, error) {
	r := &Relay{
		journal:    journal,
		peers:      make(map[*peer]struct{}),
		limiters:   make(map[int32]*rate.Limiter),
		rate:       rate.Inf,
		burst:      1,
		limits:     codec.DefaultLimits(),
		inputDelay: 1,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	last, err := journal.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume relay: %w", err)
	}
	r.seq.Store(last)

	if last > 0 {
		cmds, err := journal.ReadCommands(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("resume relay: %w", err)
		}
		for _, c := range cmds {
			if c.Opcode == command.OpAdvance && c.TargetTick > r.frame {
				r.frame = c.TargetTick
			}
		}
	}
	r.logger.Info("relay ready", "seq", last, "frame", r.frame)
	return r, nil
}

// Frame returns the newest advanced frame.
func (r *Relay) Frame() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

// Seq returns the last stamped seq.
func (r *Relay) Seq() uint64 {
	return r.seq.Load()
}

// Peers returns the number of joined peers.
func (r *Relay) Peers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for p := range r.peers {
		if p.joined {
			n++
		}
	}
	return n
}

// Submit stamps cmd, journals it, and broadcasts it. The stamped command is
// returned.
func (r *Relay) Submit(ctx context.Context, cmd command.Command) (command.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submitLocked(ctx, cmd)
}

func (r *Relay) submitLocked(ctx context.Context, cmd command.Command) (command.Command, error) {
	if cmd.Opcode != command.OpAdvance {
		if earliest := r.frame + r.inputDelay; cmd.TargetTick < earliest {
			cmd.TargetTick = earliest
		}
	}
	// Seq is consumed only once the journal holds the command.
	cmd.Seq = r.seq.Load() + 1
	if err := r.journal.AppendCommand(ctx, cmd); err != nil {
		return command.Command{}, fmt.Errorf("submit seq %d: %w", cmd.Seq, err)
	}
	r.seq.Store(cmd.Seq)

	data, err := command.Encode(cmd, syncwork.WithLimits(r.limits))
	if err != nil {
		return command.Command{}, fmt.Errorf("submit seq %d: %w", cmd.Seq, err)
	}
	r.broadcastLocked(transport.OpCommand, data)
	return cmd, nil
}

func (r *Relay) broadcastLocked(op transport.Op, data []byte) {
	for p := range r.peers {
		if !p.joined {
			continue
		}
		if err := p.conn.Send(op, data); err != nil {
			r.logger.Warn("dropping peer after send failure", "peer", p.id, "player", p.player, "error", err)
			delete(r.peers, p)
			_ = p.conn.Close()
		}
	}
}

// Advance moves the frame clock forward by one and broadcasts it.
func (r *Relay) Advance(ctx context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.frame + 1
	if _, err := r.submitLocked(ctx, command.New(command.GlobalScope, next, command.OpAdvance, 0, nil)); err != nil {
		return r.frame, err
	}
	r.frame = next
	return next, nil
}

// Run advances the frame clock every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Advance(ctx); err != nil {
				return err
			}
		}
	}
}

// Serve runs one peer connection until it ends. A malformed message is a
// protocol violation: the peer is sent OpReject and disconnected.
func (r *Relay) Serve(ctx context.Context, conn Conn) error {
	p := &peer{id: uuid.Must(uuid.NewV7()).String(), conn: conn}
	r.mu.Lock()
	r.peers[p] = struct{}{}
	r.mu.Unlock()

	r.logger.Info("peer connected", "peer", p.id)
	err := conn.ReadLoop(ctx, func(op transport.Op, payload []byte) error {
		return r.handle(ctx, p, op, payload)
	})
	r.detach(ctx, p)

	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("peer disconnected", "peer", p.id, "player", p.player, "error", err)
		r.reject(p, err)
		_ = conn.Close()
		return err
	}
	r.logger.Info("peer disconnected", "peer", p.id, "player", p.player)
	return nil
}

func (r *Relay) reject(p *peer, cause error) {
	data, err := syncwork.Encode(&transport.Reject{Reason: cause.Error()})
	if err != nil {
		return
	}
	_ = p.conn.Send(transport.OpReject, data)
}

func (r *Relay) handle(ctx context.Context, p *peer, op transport.Op, payload []byte) error {
	switch op {
	case transport.OpJoin:
		var j transport.Join
		if err := syncwork.Decode(payload, &j, syncwork.WithLimits(r.limits)); err != nil {
			return fmt.Errorf("join: %w", err)
		}
		return r.join(ctx, p, j)

	case transport.OpCommand:
		if !p.joined {
			return ErrNotJoined
		}
		cmd, err := command.Decode(payload, syncwork.WithLimits(r.limits))
		if err != nil {
			return err
		}
		if cmd.Opcode == command.OpAdvance || cmd.Opcode == command.OpPlayerLeft {
			return fmt.Errorf("%s: %w", cmd.Opcode, ErrReservedOpcode)
		}
		if !r.limiter(p.player).Allow() {
			r.logger.Warn("command dropped", "player", p.player, "opcode", cmd.Opcode.String(), "error", ErrRateLimited)
			r.reject(p, ErrRateLimited)
			return nil
		}
		// The connection's identity wins over whatever the peer claims.
		cmd.Player = p.player
		_, err = r.Submit(ctx, cmd)
		return err

	default:
		return &codec.FormatError{What: "op", Message: fmt.Sprintf("unexpected %s from peer", op)}
	}
}

func (r *Relay) limiter(player int32) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[player]
	if !ok {
		l = rate.NewLimiter(r.rate, r.burst)
		r.limiters[player] = l
	}
	return l
}

// join replays the journal after j.AfterSeq to p and then makes p live. The
// lock is held throughout so no new command can slip between the backlog
// and live traffic.
func (r *Relay) join(ctx context.Context, p *peer, j transport.Join) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.joined {
		return &codec.FormatError{What: "join", Message: "duplicate join"}
	}

	backlog, err := r.journal.ReadCommands(ctx, j.AfterSeq)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	for _, cmd := range backlog {
		data, err := command.Encode(cmd, syncwork.WithLimits(r.limits))
		if err != nil {
			return fmt.Errorf("join: %w", err)
		}
		if err := p.conn.Send(transport.OpCommand, data); err != nil {
			return fmt.Errorf("join: %w", err)
		}
	}
	done, err := syncwork.Encode(&transport.CaughtUp{Seq: r.seq.Load()})
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	if err := p.conn.Send(transport.OpCaughtUp, done); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	p.player = j.Player
	p.joined = true
	r.logger.Info("peer joined", "peer", p.id, "player", p.player, "backlog", len(backlog))
	return nil
}

// detach forgets p. When p was the player's last connection the departure
// is announced to everyone as an ordinary command.
func (r *Relay) detach(ctx context.Context, p *peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.peers, p)
	if !p.joined {
		return
	}
	for other := range r.peers {
		if other.joined && other.player == p.player {
			return
		}
	}
	left := command.New(command.GlobalScope, 0, command.OpPlayerLeft, p.player, nil)
	if _, err := r.submitLocked(context.WithoutCancel(ctx), left); err != nil {
		r.logger.Error("announce player left", "player", p.player, "error", err)
	}
}
