package session

import (
	"errors"
	"fmt"

	"github.com/roach88/lockstep/internal/command"
)

// InvalidTargetError describes a session removed at a tick boundary because
// an entity it depends on no longer exists. It is logged, never returned up
// the stack: the session is simply torn down.
type InvalidTargetError struct {
	Scope     command.Scope
	SessionID int32
	Kind      Kind
	Target    int32
	Tick      uint64
}

// Error implements the error interface.
func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid session target: %s#%d in %s lost entity %d at tick %d",
		e.Kind, e.SessionID, e.Scope, e.Target, e.Tick)
}

// IsInvalidTarget reports whether err is an InvalidTargetError.
func IsInvalidTarget(err error) bool {
	var ite *InvalidTargetError
	return errors.As(err, &ite)
}
