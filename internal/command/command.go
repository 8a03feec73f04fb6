package command

import (
	"fmt"
	"strconv"

	"github.com/roach88/lockstep/internal/syncwork"
)

// Scope names the global sub-simulation or one addressable unit such as a
// map. All ordering and session guarantees are scope-local.
type Scope int32

// GlobalScope is the world-level scope.
const GlobalScope Scope = -1

// IsGlobal reports whether s is the global scope.
func (s Scope) IsGlobal() bool {
	return s == GlobalScope
}

// String implements fmt.Stringer.
func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "map:" + strconv.Itoa(int(s))
}

// Opcode selects the handler that applies a command.
type Opcode uint16

const (
	// OpSimulation carries an opaque payload for the simulation itself.
	OpSimulation Opcode = iota + 1
	// OpSessionOpen opens a session (or re-surfaces a conflicting one).
	OpSessionOpen
	// OpSessionClose closes a session by id.
	OpSessionClose
	// OpVote records a player's time speed vote.
	OpVote
	// OpVoteReset clears all votes in a scope.
	OpVoteReset
	// OpFactionCreate seeds an empty partition record for a faction.
	OpFactionCreate
	// OpFactionInstall makes a faction's partition the active one.
	OpFactionInstall
	// OpPlayerLeft removes a departed player's votes.
	OpPlayerLeft
	// OpAdvance is issued by the relay itself. TargetTick is the newest
	// frame peers may step to; it is consumed on arrival, not drained.
	OpAdvance
)

var opcodeNames = map[Opcode]string{
	OpSimulation:     "simulation",
	OpSessionOpen:    "session_open",
	OpSessionClose:   "session_close",
	OpVote:           "vote",
	OpVoteReset:      "vote_reset",
	OpFactionCreate:  "faction_create",
	OpFactionInstall: "faction_install",
	OpPlayerLeft:     "player_left",
	OpAdvance:        "advance",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("opcode(%d)", uint16(o))
}

// ParseOpcode resolves an opcode from its String form.
func ParseOpcode(name string) (Opcode, error) {
	for op, n := range opcodeNames {
		if n == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown opcode %q", name)
}

// Command is one replicated mutation. It is immutable once created: the Log
// and handlers only read it.
type Command struct {
	// Seq is the relay's total-order stamp. Zero until the relay accepts the
	// command.
	Seq uint64

	Scope      Scope
	TargetTick uint64
	Opcode     Opcode
	Player     int32
	Payload    []byte
}

// New creates a command with a private copy of payload.
func New(scope Scope, targetTick uint64, op Opcode, player int32, payload []byte) Command {
	var p []byte
	if len(payload) > 0 {
		p = make([]byte, len(payload))
		copy(p, payload)
	}
	return Command{
		Scope:      scope,
		TargetTick: targetTick,
		Opcode:     op,
		Player:     player,
		Payload:    p,
	}
}

// Describe implements syncwork.Describable.
func (c *Command) Describe(w *syncwork.Worker) error {
	scope := int32(c.Scope)
	op := uint16(c.Opcode)
	if err := w.BindUint64("seq", &c.Seq); err != nil {
		return err
	}
	if err := w.BindInt32("scope", &scope); err != nil {
		return err
	}
	if err := w.BindUint64("target_tick", &c.TargetTick); err != nil {
		return err
	}
	if err := w.BindUint16("opcode", &op); err != nil {
		return err
	}
	if err := w.BindInt32("player", &c.Player); err != nil {
		return err
	}
	if err := w.BindBytes("payload", &c.Payload); err != nil {
		return err
	}
	c.Scope = Scope(scope)
	c.Opcode = Opcode(op)
	return nil
}

// Encode serializes c.
func Encode(c Command, opts ...syncwork.Option) ([]byte, error) {
	data, err := syncwork.Encode(&c, opts...)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return data, nil
}

// Decode parses a command. On error the zero Command is returned, never a
// partially decoded one.
func Decode(data []byte, opts ...syncwork.Option) (Command, error) {
	var c Command
	if err := syncwork.Decode(data, &c, opts...); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if len(c.Payload) == 0 {
		c.Payload = nil
	}
	return c, nil
}
