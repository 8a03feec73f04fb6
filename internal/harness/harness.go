package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/faction"
	"github.com/roach88/lockstep/internal/peer"
	"github.com/roach88/lockstep/internal/relay"
	"github.com/roach88/lockstep/internal/session"
	"github.com/roach88/lockstep/internal/store"
	"github.com/roach88/lockstep/internal/testutil"
	"github.com/roach88/lockstep/internal/timevote"
	"github.com/roach88/lockstep/internal/world"
)

// settleTimeout bounds every wait on the relay or a peer.
const settleTimeout = 5 * time.Second

// Harness drives one scenario: a relay journaling to an in-memory store and
// one controller per player, connected over in-memory pipes.
type Harness struct {
	ctx     context.Context
	store   *store.Store
	relay   *relay.Relay
	members []*member
	scopes  []command.Scope
	stagger bool
	logger  *slog.Logger
}

type member struct {
	player int32
	ctrl   *peer.Controller
	world  *world.World
	client *peer.Client
	served chan struct{}
	left   bool
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database. Commands are
// submitted one at a time and each is journaled before the next is sent,
// so the trace is the same on every run.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	delay := scenario.InputDelay
	if delay == 0 {
		delay = 1
	}
	r, err := relay.New(ctx, st, relay.WithLogger(logger), relay.WithInputDelay(delay))
	if err != nil {
		return nil, err
	}

	h := &Harness{
		ctx:     ctx,
		store:   st,
		relay:   r,
		stagger: scenario.Stagger,
		logger:  logger,
	}
	for _, s := range scenario.Scopes {
		h.scopes = append(h.scopes, command.Scope(s))
	}
	defer h.shutdown()

	for _, p := range scenario.Players {
		if err := h.join(p); err != nil {
			return nil, err
		}
	}
	for i, step := range scenario.Steps {
		if err := h.step(i, step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	if err := h.settle(-1); err != nil {
		return nil, err
	}

	result := NewResult()
	if err := h.collect(result); err != nil {
		return nil, err
	}
	h.check(scenario.Assertions, result)
	return result, nil
}

// connected returns the members still attached to the relay, in join order.
func (h *Harness) connected() []*member {
	var out []*member
	for _, m := range h.members {
		if !m.left {
			out = append(out, m)
		}
	}
	return out
}

func (h *Harness) member(player int32) (*member, error) {
	for _, m := range h.members {
		if m.player == player && !m.left {
			return m, nil
		}
	}
	return nil, fmt.Errorf("player %d is not connected", player)
}

func (h *Harness) join(player int32) error {
	w := world.New()
	ctrl := peer.New(w, peer.WithLogger(h.logger), peer.WithMaintenance(world.Maintain))
	for _, scope := range h.scopes {
		ctrl.LoadScope(scope, nil)
	}

	server, end := testutil.Pipe()
	m := &member{
		player: player,
		ctrl:   ctrl,
		world:  w,
		client: peer.NewClient(end, ctrl, player),
		served: make(chan struct{}),
	}
	go func() {
		defer close(m.served)
		_ = h.relay.Serve(h.ctx, server)
	}()
	go func() { _ = m.client.Run(h.ctx) }()

	select {
	case <-m.client.CaughtUp():
	case <-time.After(settleTimeout):
		return fmt.Errorf("player %d never caught up", player)
	}
	h.members = append(h.members, m)
	return h.settleMember(m)
}

func (h *Harness) step(index int, step Step) error {
	switch {
	case step.Advance > 0:
		for range step.Advance {
			if _, err := h.relay.Advance(h.ctx); err != nil {
				return err
			}
		}
		return h.settle(index)

	case step.Join:
		return h.join(step.Player)

	case step.Leave:
		m, err := h.member(step.Player)
		if err != nil {
			return err
		}
		want := h.relay.Seq() + 1
		_ = m.client.Close()
		m.left = true
		select {
		case <-m.served:
		case <-time.After(settleTimeout):
			return fmt.Errorf("relay did not release player %d", step.Player)
		}
		return h.waitSeq(want)
	}

	m, err := h.member(step.Player)
	if err != nil {
		return err
	}
	want := h.relay.Seq() + 1
	if err := h.send(m, step); err != nil {
		return err
	}
	return h.waitSeq(want)
}

func (h *Harness) send(m *member, step Step) error {
	scope := scopeOf(step.Scope)
	cl := m.client
	switch {
	case step.Action != nil:
		kind, err := world.ParseAction(step.Action.Kind)
		if err != nil {
			return err
		}
		data, err := world.Action{Kind: kind, Entity: step.Action.Entity, Amount: step.Action.Amount}.Encode()
		if err != nil {
			return err
		}
		return cl.Simulate(scope, data)
	case step.Vote != "":
		s, err := timevote.ParseSpeed(step.Vote)
		if err != nil {
			return err
		}
		return cl.Vote(scope, s)
	case step.ResetVotes:
		return cl.ResetVotes(scope)
	case step.Open != nil:
		p, err := step.Open.payload()
		if err != nil {
			return err
		}
		return cl.OpenSession(scope, p)
	case step.Close != nil:
		return cl.CloseSession(scope, *step.Close)
	case step.CreateFaction != nil:
		return cl.CreateFaction(scope, faction.ID(*step.CreateFaction))
	case step.InstallFaction != nil:
		return cl.InstallFaction(scope, faction.ID(*step.InstallFaction))
	}
	return errors.New("step has no action")
}

// waitSeq blocks until the relay has journaled seq.
func (h *Harness) waitSeq(seq uint64) error {
	deadline := time.Now().Add(settleTimeout)
	for h.relay.Seq() < seq {
		if time.Now().After(deadline) {
			return fmt.Errorf("relay stuck at seq %d waiting for %d", h.relay.Seq(), seq)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// settle brings connected peers up to the relay's frame. With stagger set,
// the member at position i only catches up on steps divisible by i+1; a
// negative step settles everyone.
func (h *Harness) settle(step int) error {
	for i, m := range h.connected() {
		if h.stagger && step >= 0 && step%(i+1) != 0 {
			continue
		}
		if err := h.settleMember(m); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) settleMember(m *member) error {
	seq, frame := h.relay.Seq(), h.relay.Frame()
	deadline := time.Now().Add(settleTimeout)
	for m.ctrl.ReceivedSeq() < seq || m.ctrl.Frame() < frame {
		if _, err := m.ctrl.Advance(h.ctx); err != nil {
			return fmt.Errorf("player %d: %w", m.player, err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("player %d stuck at frame %d (seq %d) waiting for frame %d (seq %d)",
				m.player, m.ctrl.Frame(), m.ctrl.ReceivedSeq(), frame, seq)
		}
		time.Sleep(time.Millisecond)
	}
	// Pump anything received after the last frame so every log matches.
	_, err := m.ctrl.Advance(h.ctx)
	return err
}

// shutdown disconnects every member and waits for the relay to let go of
// their connections, so nothing writes to the store after it closes.
func (h *Harness) shutdown() {
	for _, m := range h.members {
		if m.left {
			continue
		}
		_ = m.client.Close()
		select {
		case <-m.served:
		case <-time.After(settleTimeout):
			h.logger.Warn("relay did not release connection", "player", m.player)
		}
	}
}

// collect fills in the trace, hashes and final state.
func (h *Harness) collect(result *Result) error {
	cmds, err := h.store.ReadCommands(h.ctx, 0)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	for _, cmd := range cmds {
		result.Trace = append(result.Trace, TraceEvent{
			Seq:    cmd.Seq,
			Frame:  cmd.TargetTick,
			Scope:  cmd.Scope.String(),
			Player: cmd.Player,
			Op:     cmd.Opcode.String(),
			Detail: describe(cmd),
		})
	}

	for _, m := range h.connected() {
		hash, err := m.ctrl.StateHash()
		if err != nil {
			return fmt.Errorf("player %d: %w", m.player, err)
		}
		result.Hashes[m.player] = hash.String()
	}

	first := h.connected()[0]
	result.State = FinalState{
		Player: first.player,
		Frame:  first.ctrl.Frame(),
	}
	for _, scope := range first.ctrl.Sessions().Scopes() {
		result.State.Scopes = append(result.State.Scopes, scopeState(first, scope))
	}
	return nil
}

func scopeState(m *member, scope command.Scope) ScopeState {
	out := ScopeState{
		Scope:    scope.String(),
		Tick:     m.ctrl.Tick(scope),
		Speed:    m.ctrl.Votes().EffectiveSpeed(scope, false).String(),
		Sessions: []string{},
		Entities: make(map[int32]int64),
	}
	if mgr, ok := m.ctrl.Sessions().For(scope); ok {
		for _, s := range mgr.Sessions() {
			out.Sessions = append(out.Sessions, s.String())
		}
	}
	for _, id := range m.world.Entities(scope) {
		v, _ := m.world.Value(scope, id)
		out.Entities[id] = v
	}
	if view, ok := m.ctrl.Factions().View(scope); ok {
		if id, owned := view.Faction(); owned {
			f := int32(id)
			out.Faction = &f
		}
		out.Designations = len(view.Designations())
	}
	return out
}

// describe renders a command payload for the trace.
func describe(cmd command.Command) string {
	switch cmd.Opcode {
	case command.OpSimulation:
		if a, err := world.DecodeAction(cmd.Payload); err == nil {
			return fmt.Sprintf("%s entity=%d amount=%d", a.Kind, a.Entity, a.Amount)
		}
	case command.OpSessionOpen:
		if p, err := session.DecodeOpen(cmd.Payload); err == nil {
			return fmt.Sprintf("%s claims=%v", p.Kind(), p.Claims())
		}
	case command.OpSessionClose:
		if id, err := session.DecodeClose(cmd.Payload); err == nil {
			return fmt.Sprintf("id=%d", id)
		}
	case command.OpVote:
		if s, err := timevote.DecodeVote(cmd.Payload); err == nil {
			return s.String()
		}
	case command.OpVoteReset:
		if c, err := timevote.DecodeReset(cmd.Payload); err == nil {
			return c.String()
		}
	case command.OpFactionCreate, command.OpFactionInstall:
		if id, err := faction.DecodeFaction(cmd.Payload); err == nil {
			return fmt.Sprintf("faction=%d", id)
		}
	}
	return ""
}

// sortedPlayers returns the players in result.Hashes in ascending order.
func sortedPlayers(hashes map[int32]string) []int32 {
	players := make([]int32, 0, len(hashes))
	for p := range hashes {
		players = append(players, p)
	}
	slices.Sort(players)
	return players
}
