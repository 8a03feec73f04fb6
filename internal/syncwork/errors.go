package syncwork

import (
	"errors"
	"fmt"
)

// SyncTypeError reports a value whose runtime type the worker cannot
// describe: a type with no Bind method, a Tagged value whose tag is not
// registered, or an unknown tag on the wire.
type SyncTypeError struct {
	Field string
	Type  string
	Tag   Tag
}

// Error implements the error interface.
func (e *SyncTypeError) Error() string {
	switch {
	case e.Type != "" && e.Tag != 0:
		return fmt.Sprintf("sync type error: field %q: type %s (tag %d) is not registered", e.Field, e.Type, e.Tag)
	case e.Type != "":
		return fmt.Sprintf("sync type error: field %q: type %s is not describable", e.Field, e.Type)
	default:
		return fmt.Sprintf("sync type error: field %q: unknown tag %d", e.Field, e.Tag)
	}
}

// IsSyncType reports whether err is (or wraps) a SyncTypeError.
func IsSyncType(err error) bool {
	var se *SyncTypeError
	return errors.As(err, &se)
}
