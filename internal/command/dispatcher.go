package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnknownOpcode is returned by Dispatcher.Apply for an opcode with no
// registered handler. Every peer runs the same handler table, so every peer
// rejects the same command.
var ErrUnknownOpcode = errors.New("unknown opcode")

// Handler applies one command to simulation state. Handlers must treat a
// missing target as a no-op rather than an error.
type Handler func(ctx context.Context, cmd Command) error

// Dispatcher routes commands to handlers by opcode.
type Dispatcher struct {
	handlers map[Opcode]Handler
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a Dispatcher with no handlers.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[Opcode]Handler),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register installs h for op. Registering an opcode twice is an error.
func (d *Dispatcher) Register(op Opcode, h Handler) error {
	if h == nil {
		return fmt.Errorf("register %s: nil handler", op)
	}
	if _, exists := d.handlers[op]; exists {
		return fmt.Errorf("register %s: handler already registered", op)
	}
	d.handlers[op] = h
	return nil
}

// Apply runs the handler for cmd.
func (d *Dispatcher) Apply(ctx context.Context, cmd Command) error {
	h, ok := d.handlers[cmd.Opcode]
	if !ok {
		d.logger.Warn("no handler for command",
			"opcode", cmd.Opcode.String(),
			"scope", cmd.Scope.String(),
			"seq", cmd.Seq,
		)
		return fmt.Errorf("apply seq %d: %w: %s", cmd.Seq, ErrUnknownOpcode, cmd.Opcode)
	}

	d.logger.Debug("applying command",
		"opcode", cmd.Opcode.String(),
		"scope", cmd.Scope.String(),
		"tick", cmd.TargetTick,
		"player", cmd.Player,
		"seq", cmd.Seq,
	)

	if err := h(ctx, cmd); err != nil {
		return fmt.Errorf("apply %s seq %d: %w", cmd.Opcode, cmd.Seq, err)
	}
	return nil
}
