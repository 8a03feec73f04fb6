package codec

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Reader decodes values from a byte slice, advancing a cursor.
//
// Every read either returns a complete value or an error; the cursor does
// not move on failure.
type Reader struct {
	data   []byte
	pos    int
	limits Limits
}

// NewReader creates a Reader over data. The Reader does not copy data, so
// the caller must not mutate it while reading.
func NewReader(data []byte, opts ...Option) *Reader {
	return &Reader{
		data:   data,
		limits: applyOptions(opts),
	}
}

// Position returns the cursor offset.
func (r *Reader) Position() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Limits returns the limits this Reader enforces.
func (r *Reader) Limits() Limits {
	return r.limits
}

// Done returns a FormatError if unread bytes remain. Decoders call it after
// reading a complete message so trailing garbage is not silently accepted.
func (r *Reader) Done() error {
	if n := r.Remaining(); n != 0 {
		return &FormatError{Offset: r.pos, What: "message", Message: "trailing bytes after message"}
	}
	return nil
}

func (r *Reader) take(what string, n int) ([]byte, error) {
	if n > r.Remaining() {
		return nil, &TruncatedDataError{Offset: r.pos, What: what, Need: n, Have: r.Remaining()}
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadBool reads a byte that must be 0 or 1.
func (r *Reader) ReadBool() (bool, error) {
	start := r.pos
	b, err := r.take("bool", 1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		r.pos = start
		return false, &FormatError{Offset: start, What: "bool", Message: "value is neither 0 nor 1"}
	}
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take("uint8", 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadInt8 reads one byte.
func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

// ReadUint16 reads a little endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take("uint16", 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadInt16 reads a little endian int16.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads a little endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take("uint32", 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadInt32 reads a little endian int32.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads a little endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take("uint64", 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadInt64 reads a little endian int64.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads a little endian IEEE 754 float32.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads a little endian IEEE 754 float64.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadUvarint reads an unsigned varint.
func (r *Reader) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	switch {
	case n == 0:
		return 0, &TruncatedDataError{Offset: r.pos, What: "uvarint", Need: r.Remaining() + 1, Have: r.Remaining()}
	case n < 0:
		return 0, &FormatError{Offset: r.pos, What: "uvarint", Message: "varint overflows 64 bits"}
	}
	r.pos += n
	return v, nil
}

// readLength reads a length prefix and checks it against max and against
// the remaining input, in that order, before the caller allocates.
func (r *Reader) readLength(what string, max int) (int, int, error) {
	start := r.pos
	n, err := r.ReadUvarint()
	if err != nil {
		return 0, start, err
	}
	if n > uint64(max) {
		r.pos = start
		return 0, start, tooLong(start, what, n, max)
	}
	if int(n) > r.Remaining() {
		have := r.Remaining()
		r.pos = start
		return 0, start, &TruncatedDataError{Offset: start, What: what, Need: int(n), Have: have}
	}
	return int(n), start, nil
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, start, err := r.readLength("string", r.limits.MaxString)
	if err != nil {
		return "", err
	}
	b := r.data[r.pos : r.pos+n]
	if !utf8.Valid(b) {
		r.pos = start
		return "", &FormatError{Offset: start, What: "string", Message: "invalid UTF-8"}
	}
	if !norm.NFC.IsNormal(b) {
		r.pos = start
		return "", &FormatError{Offset: start, What: "string", Message: "not NFC normalized"}
	}
	r.pos += n
	return string(b), nil
}

// ReadBytes reads a length-prefixed byte block. The result is a copy.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, _, err := r.readLength("bytes", r.limits.MaxBytes)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// ReadCount reads a container element count. Unlike ReadBytes the count is
// not compared to the remaining input, since elements may encode to zero
// bytes.
func (r *Reader) ReadCount() (int, error) {
	start := r.pos
	n, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(r.limits.MaxCollection) {
		r.pos = start
		return 0, tooLong(start, "count", n, r.limits.MaxCollection)
	}
	return int(n), nil
}

// ReadRaw reads exactly n bytes without a prefix. The result is a copy.
func (r *Reader) ReadRaw(n int) ([]byte, error) {
	b, err := r.take("raw", n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}
