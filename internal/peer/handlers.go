package peer

import (
	"context"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/faction"
	"github.com/roach88/lockstep/internal/session"
	"github.com/roach88/lockstep/internal/timevote"
)

func (c *Controller) registerHandlers() {
	handlers := map[command.Opcode]command.Handler{
		command.OpSimulation:     c.applySimulation,
		command.OpSessionOpen:    c.openSession,
		command.OpSessionClose:   c.closeSession,
		command.OpVote:           c.recordVote,
		command.OpVoteReset:      c.resetVotes,
		command.OpFactionCreate:  c.createFaction,
		command.OpFactionInstall: c.installFaction,
		command.OpPlayerLeft:     c.playerLeft,
	}
	for op, h := range handlers {
		if err := c.dispatch.Register(op, h); err != nil {
			panic(err)
		}
	}
}

func (c *Controller) applySimulation(ctx context.Context, cmd command.Command) error {
	view, _ := c.factions.View(cmd.Scope)
	return c.sim.Apply(ctx, cmd, view)
}

// openSession opens the requested session unless a conflicting one is
// already open, in which case the request resolves to that session.
func (c *Controller) openSession(_ context.Context, cmd command.Command) error {
	m, err := c.manager(cmd.Scope)
	if err != nil {
		return err
	}
	p, err := session.DecodeOpen(cmd.Payload)
	if err != nil {
		return err
	}
	requested := session.New(p)
	got := m.GetOrAddSessionAnyConflict(requested)
	if got != requested {
		c.logger.Debug("session request resolved to open session",
			"scope", cmd.Scope.String(),
			"kind", p.Kind().String(),
			"existing", got.ID,
			"player", cmd.Player,
		)
		return nil
	}
	c.logger.Debug("session opened",
		"scope", cmd.Scope.String(),
		"id", got.ID,
		"kind", p.Kind().String(),
		"player", cmd.Player,
	)
	return nil
}

func (c *Controller) closeSession(_ context.Context, cmd command.Command) error {
	m, err := c.manager(cmd.Scope)
	if err != nil {
		return err
	}
	id, err := session.DecodeClose(cmd.Payload)
	if err != nil {
		return err
	}
	if !m.RemoveByID(id) {
		c.logger.Debug("close of unknown session", "scope", cmd.Scope.String(), "id", id)
	}
	return nil
}

func (c *Controller) recordVote(_ context.Context, cmd command.Command) error {
	speed, err := timevote.DecodeVote(cmd.Payload)
	if err != nil {
		return err
	}
	return c.votes.RecordVote(cmd.Scope, cmd.Player, speed)
}

func (c *Controller) resetVotes(_ context.Context, cmd command.Command) error {
	cause, err := timevote.DecodeReset(cmd.Payload)
	if err != nil {
		return err
	}
	c.votes.ResetVotes(cmd.Scope, cause)
	return nil
}

// createFaction gives a faction a record in the scope. The first faction
// to arrive claims whatever was live before partitioning; later ones start
// empty.
func (c *Controller) createFaction(_ context.Context, cmd command.Command) error {
	id, err := faction.DecodeFaction(cmd.Payload)
	if err != nil {
		return err
	}
	if _, claimed := c.factions.Active(cmd.Scope); !claimed {
		return c.factions.CaptureCurrent(cmd.Scope, id)
	}
	return c.factions.CreateNew(cmd.Scope, id)
}

func (c *Controller) installFaction(_ context.Context, cmd command.Command) error {
	id, err := faction.DecodeFaction(cmd.Payload)
	if err != nil {
		return err
	}
	return c.factions.Install(cmd.Scope, id)
}

func (c *Controller) playerLeft(_ context.Context, cmd command.Command) error {
	c.votes.RemovePlayer(cmd.Player)
	c.logger.Info("player left", "player", cmd.Player, "frame", c.frame)
	return nil
}
