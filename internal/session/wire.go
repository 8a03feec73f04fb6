package session

import (
	"fmt"

	"github.com/roach88/lockstep/internal/syncwork"
)

// openRequest is the payload of a session_open command.
type openRequest struct {
	payload syncwork.Tagged
}

func (o *openRequest) Describe(w *syncwork.Worker) error {
	return w.BindAny("session", &o.payload)
}

// EncodeOpen encodes p as a session_open command payload.
func EncodeOpen(p Payload) ([]byte, error) {
	data, err := syncwork.Encode(&openRequest{payload: p}, syncwork.WithRegistry(payloads))
	if err != nil {
		return nil, fmt.Errorf("encode session open: %w", err)
	}
	return data, nil
}

// DecodeOpen decodes a session_open command payload.
func DecodeOpen(data []byte) (Payload, error) {
	var o openRequest
	if err := syncwork.Decode(data, &o, syncwork.WithRegistry(payloads)); err != nil {
		return nil, fmt.Errorf("decode session open: %w", err)
	}
	if o.payload == nil {
		return nil, fmt.Errorf("decode session open: %w", &syncwork.SyncTypeError{Field: "session"})
	}
	return o.payload.(Payload), nil
}

type closeRequest struct {
	id int32
}

func (c *closeRequest) Describe(w *syncwork.Worker) error {
	return w.BindInt32("id", &c.id)
}

// EncodeClose encodes a session_close command payload.
func EncodeClose(id int32) ([]byte, error) {
	return syncwork.Encode(&closeRequest{id: id})
}

// DecodeClose decodes a session_close command payload.
func DecodeClose(data []byte) (int32, error) {
	var c closeRequest
	if err := syncwork.Decode(data, &c); err != nil {
		return 0, fmt.Errorf("decode session close: %w", err)
	}
	return c.id, nil
}
