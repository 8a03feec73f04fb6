package session

import "fmt"

// Kind enumerates every session variant. It doubles as the payload's
// syncwork tag, so values are stable on the wire and must never be reused.
type Kind uint16

const (
	// KindTrade is a trade negotiation between a trader and a negotiator.
	KindTrade Kind = iota + 1
	// KindCaravanForm is the caravan formation dialog.
	KindCaravanForm
	// KindCaravanSplit is the dialog that splits pawns off a caravan.
	KindCaravanSplit
	// KindTransporterLoad is the transporter loading dialog.
	KindTransporterLoad
	// KindRitual is an in-progress ritual.
	KindRitual
)

// kindInfo is the capability table for one kind.
type kindInfo struct {
	name string

	// persistent sessions are part of the full save state.
	persistent bool

	// semiPersistent sessions survive a rejoin checkpoint but not a reload.
	semiPersistent bool

	// pausing sessions hold the scope's clock while open.
	pausing bool
}

var kinds = map[Kind]kindInfo{
	KindTrade:           {name: "trade", semiPersistent: true, pausing: true},
	KindCaravanForm:     {name: "caravan_form", persistent: true, pausing: true},
	KindCaravanSplit:    {name: "caravan_split", semiPersistent: true, pausing: true},
	KindTransporterLoad: {name: "transporter_load", persistent: true, pausing: true},
	KindRitual:          {name: "ritual", persistent: true},
}

// Kinds returns every kind in ascending order.
func Kinds() []Kind {
	return []Kind{KindTrade, KindCaravanForm, KindCaravanSplit, KindTransporterLoad, KindRitual}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", uint16(k))
}

// Persistent reports whether sessions of k belong in the full save state.
func (k Kind) Persistent() bool { return kinds[k].persistent }

// SemiPersistent reports whether sessions of k belong in rejoin checkpoints.
func (k Kind) SemiPersistent() bool { return kinds[k].semiPersistent }

// Pausing reports whether an open session of k holds the scope's clock.
func (k Kind) Pausing() bool { return kinds[k].pausing }

// ParseKind resolves a kind from its String form.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if kinds[k].name == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown session kind %q", name)
}
