package faction

import (
	"fmt"

	"github.com/roach88/lockstep/internal/syncwork"
)

type factionRequest struct {
	faction int32
}

func (f *factionRequest) Describe(w *syncwork.Worker) error {
	return w.BindInt32("faction", &f.faction)
}

// EncodeFaction encodes the payload of a create or install command.
func EncodeFaction(id ID) ([]byte, error) {
	return syncwork.Encode(&factionRequest{faction: int32(id)})
}

// DecodeFaction decodes the payload of a create or install command.
func DecodeFaction(data []byte) (ID, error) {
	var f factionRequest
	if err := syncwork.Decode(data, &f); err != nil {
		return 0, fmt.Errorf("decode faction: %w", err)
	}
	return ID(f.faction), nil
}
