package syncwork

// Encode writes d through a fresh writing Worker and returns a copy of the
// bytes.
func Encode(d Describable, opts ...Option) ([]byte, error) {
	w := NewWriter(opts...)
	if err := d.Describe(w); err != nil {
		return nil, err
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	out := make([]byte, len(w.Bytes()))
	copy(out, w.Bytes())
	return out, nil
}

// Decode reads data into d and requires that every byte is consumed.
//
// On error d may be partially populated; callers decode into a fresh value
// and discard it on failure so nothing half-read reaches simulation state.
func Decode(data []byte, d Describable, opts ...Option) error {
	w := NewReader(data, opts...)
	if err := d.Describe(w); err != nil {
		return err
	}
	return w.Done()
}
