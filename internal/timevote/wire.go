package timevote

import (
	"fmt"

	"github.com/roach88/lockstep/internal/syncwork"
)

type voteRequest struct {
	speed uint8
}

func (v *voteRequest) Describe(w *syncwork.Worker) error {
	return w.BindUint8("speed", &v.speed)
}

// EncodeVote encodes a vote command payload.
func EncodeVote(s Speed) ([]byte, error) {
	return syncwork.Encode(&voteRequest{speed: uint8(s)})
}

// DecodeVote decodes a vote command payload.
func DecodeVote(data []byte) (Speed, error) {
	var v voteRequest
	if err := syncwork.Decode(data, &v); err != nil {
		return 0, fmt.Errorf("decode vote: %w", err)
	}
	s := Speed(v.speed)
	if !s.Valid() {
		return 0, fmt.Errorf("decode vote: invalid speed %d", v.speed)
	}
	return s, nil
}

type resetRequest struct {
	cause uint8
}

func (r *resetRequest) Describe(w *syncwork.Worker) error {
	return w.BindUint8("cause", &r.cause)
}

// EncodeReset encodes a vote_reset command payload.
func EncodeReset(c ResetCause) ([]byte, error) {
	return syncwork.Encode(&resetRequest{cause: uint8(c)})
}

// DecodeReset decodes a vote_reset command payload.
func DecodeReset(data []byte) (ResetCause, error) {
	var r resetRequest
	if err := syncwork.Decode(data, &r); err != nil {
		return 0, fmt.Errorf("decode vote reset: %w", err)
	}
	c := ResetCause(r.cause)
	if c != CauseExplicit && c != CauseSystem {
		return 0, fmt.Errorf("decode vote reset: invalid cause %d", r.cause)
	}
	return c, nil
}
