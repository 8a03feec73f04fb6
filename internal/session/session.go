package session

import (
	"fmt"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/syncwork"
)

// Session is one exclusive, player-visible interaction open in a scope.
//
// ID is zero until a Manager accepts the session. Sessions reference
// entities only by integer id.
type Session struct {
	ID      int32
	Scope   command.Scope
	Payload Payload
}

// New creates an unregistered session around p.
func New(p Payload) *Session {
	return &Session{Payload: p}
}

// Kind returns the payload's kind.
func (s *Session) Kind() Kind {
	return s.Payload.Kind()
}

// String implements fmt.Stringer.
func (s *Session) String() string {
	return fmt.Sprintf("%s#%d@%s", s.Kind(), s.ID, s.Scope)
}

// Describe implements syncwork.Describable. The kind is written ahead of
// the payload and selects its constructor on read.
func (s *Session) Describe(w *syncwork.Worker) error {
	scope := int32(s.Scope)
	var kind uint16
	if w.IsWriting() {
		kind = uint16(s.Kind())
	}
	if err := w.BindInt32("id", &s.ID); err != nil {
		return err
	}
	if err := w.BindInt32("scope", &scope); err != nil {
		return err
	}
	if err := w.BindUint16("kind", &kind); err != nil {
		return err
	}
	if !w.IsWriting() {
		v, ok := payloads.New(syncwork.Tag(kind))
		if !ok {
			return &syncwork.SyncTypeError{Field: "payload", Tag: syncwork.Tag(kind)}
		}
		s.Payload = v.(Payload)
		s.Scope = command.Scope(scope)
	}
	return w.Bind("payload", s.Payload)
}
