package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/lockstep/internal/codec"
	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/faction"
	"github.com/roach88/lockstep/internal/session"
	"github.com/roach88/lockstep/internal/syncwork"
	"github.com/roach88/lockstep/internal/timevote"
)

// ErrScopeNotLoaded is returned when a command addresses a scope this peer
// has not loaded.
var ErrScopeNotLoaded = errors.New("scope not loaded")

// Simulation is the game the controller keeps in lockstep. Every method is
// called from the simulation goroutine only.
type Simulation interface {
	session.TargetChecker

	// Apply runs an OpSimulation command. view is the scope's faction view,
	// or nil for the global scope.
	Apply(ctx context.Context, cmd command.Command, view *faction.View) error

	// Tick advances scope by one simulation tick.
	Tick(scope command.Scope, tick uint64)

	// BindState writes or reads the simulation's own state.
	BindState(w *syncwork.Worker) error
}

// core is everything a save state replaces at once.
type core struct {
	log      *command.Log
	sessions *session.Registry
	factions *faction.Partition
	votes    *timevote.Arbiter
	ticks    map[command.Scope]uint64
	frame    uint64
	horizon  uint64
	lastSeq  uint64
}

// Controller drives one peer's copy of the world.
//
// Network goroutines call Receive; every other method belongs to the
// simulation goroutine. The relay releases frames with OpAdvance commands;
// Step never runs a frame the relay has not released, so every command
// that targets a frame has been scheduled before the frame runs.
type Controller struct {
	logger   *slog.Logger
	limits   codec.Limits
	matrix   session.ConflictMatrix
	maintain faction.MaintainFunc
	sim      Simulation

	intake   *command.Intake
	dispatch *command.Dispatcher
	received atomic.Uint64

	core
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger. It is shared with the session,
// partition, arbiter and dispatcher.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithLimits sets the codec limits for command payloads and save states.
func WithLimits(l codec.Limits) Option {
	return func(c *Controller) {
		c.limits = l
	}
}

// WithMatrix sets the session conflict rules.
func WithMatrix(m session.ConflictMatrix) Option {
	return func(c *Controller) {
		c.matrix = m.Clone()
	}
}

// WithMaintenance sets the per-faction pass run on every tick of every
// partitioned scope.
func WithMaintenance(fn faction.MaintainFunc) Option {
	return func(c *Controller) {
		c.maintain = fn
	}
}

// New creates a controller for sim with only the global scope loaded.
func New(sim Simulation, opts ...Option) *Controller {
	c := &Controller{
		logger: slog.Default(),
		limits: codec.DefaultLimits(),
		matrix: session.DefaultMatrix(),
		sim:    sim,
		intake: command.NewIntake(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.core = c.newCore()
	c.dispatch = command.NewDispatcher(command.WithLogger(c.logger))
	c.registerHandlers()
	return c
}

func (c *Controller) newCore() core {
	return core{
		log: command.NewLog(),
		sessions: session.NewRegistry(
			session.WithMatrix(c.matrix),
			session.WithLogger(c.logger),
			session.WithRemoveHook(c.sessionRemoved),
		),
		factions: faction.NewPartition(faction.WithLogger(c.logger)),
		votes:    timevote.NewArbiter(timevote.WithLogger(c.logger)),
		ticks:    map[command.Scope]uint64{command.GlobalScope: 0},
	}
}

func (c *Controller) sessionRemoved(s *session.Session) {
	c.logger.Debug("session closed", "scope", s.Scope.String(), "id", s.ID, "kind", s.Kind().String())
}

// LoadScope makes a local scope live. current is the sub-state present
// before any faction claims the scope; nil means empty. Every peer must load
// the same scopes at the same frame.
func (c *Controller) LoadScope(scope command.Scope, current *faction.SavedState) {
	if scope.IsGlobal() {
		return
	}
	c.sessions.Load(scope)
	c.factions.Attach(scope, current)
	if _, ok := c.ticks[scope]; !ok {
		c.ticks[scope] = 0
	}
	c.logger.Info("scope loaded", "scope", scope.String(), "pending", c.log.Pending(scope))
}

// UnloadScope tears down a local scope's sessions and partition. Commands
// already scheduled for it stay buffered.
func (c *Controller) UnloadScope(scope command.Scope) bool {
	if !c.sessions.Unload(scope) {
		return false
	}
	c.factions.Detach(scope)
	delete(c.ticks, scope)
	c.logger.Info("scope unloaded", "scope", scope.String())
	return true
}

// Receive accepts a stamped command from the relay. It is safe to call from
// any goroutine. Commands at or below the newest seq already received are
// duplicates from a rejoin overlap and are ignored.
func (c *Controller) Receive(cmd command.Command) bool {
	for {
		last := c.received.Load()
		if cmd.Seq <= last {
			return false
		}
		if c.received.CompareAndSwap(last, cmd.Seq) {
			break
		}
	}
	return c.intake.Push(cmd)
}

// ReceivedSeq returns the newest seq accepted by Receive.
func (c *Controller) ReceivedSeq() uint64 {
	return c.received.Load()
}

// Close stops the intake; Run returns once it has drained.
func (c *Controller) Close() {
	c.intake.Close()
}

// pump moves received commands into the log. Frame releases raise the
// horizon instead of being scheduled.
func (c *Controller) pump() {
	for {
		cmd, ok := c.intake.TryPop()
		if !ok {
			return
		}
		c.lastSeq = cmd.Seq
		if cmd.Opcode == command.OpAdvance {
			c.horizon = max(c.horizon, cmd.TargetTick)
			continue
		}
		c.log.Schedule(cmd)
	}
}

// LastSeq returns the newest seq moved out of the intake. Call it from the
// goroutine that steps the controller.
func (c *Controller) LastSeq() uint64 {
	return c.lastSeq
}

// Frame returns the number of frames run.
func (c *Controller) Frame() uint64 {
	return c.frame
}

// Horizon returns the newest frame the relay has released.
func (c *Controller) Horizon() uint64 {
	return c.horizon
}

// Tick returns scope's simulation tick.
func (c *Controller) Tick(scope command.Scope) uint64 {
	return c.ticks[scope]
}

// Sessions returns the session registry.
func (c *Controller) Sessions() *session.Registry {
	return c.sessions
}

// Factions returns the faction partition.
func (c *Controller) Factions() *faction.Partition {
	return c.factions
}

// Votes returns the time arbiter.
func (c *Controller) Votes() *timevote.Arbiter {
	return c.votes
}

// Pending returns how many scheduled commands wait in scope.
func (c *Controller) Pending(scope command.Scope) int {
	return c.log.Pending(scope)
}

// Step runs the next frame if the relay has released it and reports
// whether a frame ran.
func (c *Controller) Step(ctx context.Context) (bool, error) {
	c.pump()
	if c.frame >= c.horizon {
		return false, nil
	}
	c.frame++
	for _, scope := range c.sessions.Scopes() {
		c.runFrame(ctx, scope)
	}
	return true, ctx.Err()
}

// Advance runs every released frame and returns how many ran.
func (c *Controller) Advance(ctx context.Context) (int, error) {
	n := 0
	for {
		ran, err := c.Step(ctx)
		if err != nil {
			return n, err
		}
		if !ran {
			return n, nil
		}
		n++
	}
}

// Run steps frames as the relay releases them until ctx is cancelled or
// the controller is closed.
func (c *Controller) Run(ctx context.Context) error {
	for {
		if _, err := c.Advance(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-c.intake.Wait():
			if !ok {
				_, err := c.Advance(ctx)
				return err
			}
		}
	}
}

// runFrame applies scope's due commands and then advances its simulation
// by the frame's tick budget. Command failures are deterministic, so they
// are logged and the frame goes on.
func (c *Controller) runFrame(ctx context.Context, scope command.Scope) {
	for _, cmd := range c.log.DrainDue(scope, c.frame) {
		if err := c.dispatch.Apply(ctx, cmd); err != nil {
			c.logger.Warn("command failed",
				"scope", scope.String(),
				"frame", c.frame,
				"seq", cmd.Seq,
				"error", err,
			)
		}
	}

	for range c.ticksPerFrame(scope) {
		c.tick(scope)
	}
}

// ticksPerFrame is zero while any pausing session is open in scope or in
// the global scope; otherwise it follows the scope's effective speed.
func (c *Controller) ticksPerFrame(scope command.Scope) int {
	if c.sessions.Global().IsAnySessionPausing() {
		return 0
	}
	if m, ok := c.sessions.For(scope); ok && m.IsAnySessionPausing() {
		return 0
	}
	return c.votes.EffectiveSpeed(scope, false).TicksPerFrame()
}

func (c *Controller) tick(scope command.Scope) {
	t := c.ticks[scope] + 1
	c.ticks[scope] = t

	if m, ok := c.sessions.For(scope); ok {
		m.Tick(t, c.sim)
	}
	c.sim.Tick(scope, t)

	if c.maintain == nil {
		return
	}
	if _, ok := c.factions.View(scope); !ok {
		return
	}
	if err := c.factions.Maintain(scope, t, c.maintain); err != nil {
		c.logger.Warn("maintenance failed", "scope", scope.String(), "tick", t, "error", err)
	}
}

// manager returns scope's session manager.
func (c *Controller) manager(scope command.Scope) (*session.Manager, error) {
	m, ok := c.sessions.For(scope)
	if !ok {
		return nil, fmt.Errorf("%s: %w", scope, ErrScopeNotLoaded)
	}
	return m, nil
}
