package session

import (
	"github.com/roach88/lockstep/internal/syncwork"
)

// Payload is the kind-specific body of a session. The set of
// implementations is closed: only this package can add one.
type Payload interface {
	syncwork.Tagged

	// Kind returns the variant tag.
	Kind() Kind

	// Claims returns the entity ids this session holds exclusively. Two
	// sessions whose kinds conflict under RuleShared conflict when their
	// claims overlap.
	Claims() []int32

	// Targets returns the entity ids that must exist for the session to
	// stay valid.
	Targets() []int32

	sealed()
}

// Ticker is implemented by payloads that advance every tick.
type Ticker interface {
	Tick(tick uint64)
}

// Transfer is a quantity of one thing moving as part of a session.
type Transfer struct {
	Thing int32
	Count int32
}

// Describe implements syncwork.Describable.
func (t *Transfer) Describe(w *syncwork.Worker) error {
	if err := w.BindInt32("thing", &t.Thing); err != nil {
		return err
	}
	return w.BindInt32("count", &t.Count)
}

// TradePayload is a trade negotiation.
type TradePayload struct {
	Trader     int32
	Negotiator int32
	Offers     []Transfer
}

func (*TradePayload) Kind() Kind { return KindTrade }
func (*TradePayload) SyncTag() syncwork.Tag { return syncwork.Tag(KindTrade) }
func (p *TradePayload) Claims() []int32 { return []int32{p.Trader, p.Negotiator} }
func (p *TradePayload) Targets() []int32 { return []int32{p.Trader, p.Negotiator} }
func (*TradePayload) sealed() {}

// Describe implements syncwork.Describable.
func (p *TradePayload) Describe(w *syncwork.Worker) error {
	if err := w.BindInt32("trader", &p.Trader); err != nil {
		return err
	}
	if err := w.BindInt32("negotiator", &p.Negotiator); err != nil {
		return err
	}
	return syncwork.BindElems(w, "offers", &p.Offers)
}

// CaravanFormPayload is the caravan formation dialog.
type CaravanFormPayload struct {
	Destination   int32
	Reform        bool
	Pawns         []int32
	Transferables []Transfer
}

func (*CaravanFormPayload) Kind() Kind { return KindCaravanForm }
func (*CaravanFormPayload) SyncTag() syncwork.Tag { return syncwork.Tag(KindCaravanForm) }
func (p *CaravanFormPayload) Claims() []int32 { return p.Pawns }
func (p *CaravanFormPayload) Targets() []int32 { return p.Pawns }
func (*CaravanFormPayload) sealed() {}

// Describe implements syncwork.Describable.
func (p *CaravanFormPayload) Describe(w *syncwork.Worker) error {
	if err := w.BindInt32("destination", &p.Destination); err != nil {
		return err
	}
	if err := w.BindBool("reform", &p.Reform); err != nil {
		return err
	}
	if err := syncwork.BindSlice(w, "pawns", &p.Pawns, syncwork.Int32); err != nil {
		return err
	}
	return syncwork.BindElems(w, "transferables", &p.Transferables)
}

// CaravanSplitPayload splits pawns off an existing caravan.
type CaravanSplitPayload struct {
	Caravan       int32
	Pawns         []int32
	Transferables []Transfer
}

func (*CaravanSplitPayload) Kind() Kind { return KindCaravanSplit }
func (*CaravanSplitPayload) SyncTag() syncwork.Tag { return syncwork.Tag(KindCaravanSplit) }
func (p *CaravanSplitPayload) Claims() []int32 {
	return append([]int32{p.Caravan}, p.Pawns...)
}
func (p *CaravanSplitPayload) Targets() []int32 { return []int32{p.Caravan} }
func (*CaravanSplitPayload) sealed() {}

// Describe implements syncwork.Describable.
func (p *CaravanSplitPayload) Describe(w *syncwork.Worker) error {
	if err := w.BindInt32("caravan", &p.Caravan); err != nil {
		return err
	}
	if err := syncwork.BindSlice(w, "pawns", &p.Pawns, syncwork.Int32); err != nil {
		return err
	}
	return syncwork.BindElems(w, "transferables", &p.Transferables)
}

// TransporterLoadPayload is the transporter loading dialog.
type TransporterLoadPayload struct {
	Transporters  []int32
	Transferables []Transfer
}

func (*TransporterLoadPayload) Kind() Kind { return KindTransporterLoad }
func (*TransporterLoadPayload) SyncTag() syncwork.Tag { return syncwork.Tag(KindTransporterLoad) }
func (p *TransporterLoadPayload) Claims() []int32 { return p.Transporters }
func (p *TransporterLoadPayload) Targets() []int32 { return p.Transporters }
func (*TransporterLoadPayload) sealed() {}

// Describe implements syncwork.Describable.
func (p *TransporterLoadPayload) Describe(w *syncwork.Worker) error {
	if err := syncwork.BindSlice(w, "transporters", &p.Transporters, syncwork.Int32); err != nil {
		return err
	}
	return syncwork.BindElems(w, "transferables", &p.Transferables)
}

// RitualPayload is a ritual in progress. Elapsed counts ticks since the
// session opened.
type RitualPayload struct {
	Ritual       int32
	Target       int32
	Organizer    int32
	Participants []int32
	Elapsed      uint64
}

func (*RitualPayload) Kind() Kind { return KindRitual }
func (*RitualPayload) SyncTag() syncwork.Tag { return syncwork.Tag(KindRitual) }
func (p *RitualPayload) Claims() []int32 {
	return append([]int32{p.Target, p.Organizer}, p.Participants...)
}
func (p *RitualPayload) Targets() []int32 { return []int32{p.Target, p.Organizer} }
func (*RitualPayload) sealed() {}

// Tick implements Ticker.
func (p *RitualPayload) Tick(uint64) {
	p.Elapsed++
}

// Describe implements syncwork.Describable.
func (p *RitualPayload) Describe(w *syncwork.Worker) error {
	if err := w.BindInt32("ritual", &p.Ritual); err != nil {
		return err
	}
	if err := w.BindInt32("target", &p.Target); err != nil {
		return err
	}
	if err := w.BindInt32("organizer", &p.Organizer); err != nil {
		return err
	}
	if err := syncwork.BindSlice(w, "participants", &p.Participants, syncwork.Int32); err != nil {
		return err
	}
	return w.BindUint64("elapsed", &p.Elapsed)
}

var payloads = newPayloadRegistry()

func newPayloadRegistry() *syncwork.Registry {
	r := syncwork.NewRegistry()
	r.MustRegister(syncwork.Tag(KindTrade), func() syncwork.Tagged { return &TradePayload{} })
	r.MustRegister(syncwork.Tag(KindCaravanForm), func() syncwork.Tagged { return &CaravanFormPayload{} })
	r.MustRegister(syncwork.Tag(KindCaravanSplit), func() syncwork.Tagged { return &CaravanSplitPayload{} })
	r.MustRegister(syncwork.Tag(KindTransporterLoad), func() syncwork.Tagged { return &TransporterLoadPayload{} })
	r.MustRegister(syncwork.Tag(KindRitual), func() syncwork.Tagged { return &RitualPayload{} })
	return r
}

// Payloads returns the registry of payload constructors, for use with
// syncwork.WithRegistry.
func Payloads() *syncwork.Registry {
	return payloads
}
