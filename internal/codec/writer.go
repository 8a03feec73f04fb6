package codec

import (
	"encoding/binary"
	"math"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Writer appends canonical encodings to an in-memory buffer.
//
// Fixed-width writes cannot fail. WriteString and WriteBytes return a
// FormatError when the value exceeds the configured limits, so a peer never
// emits something its own Reader would reject.
type Writer struct {
	buf    []byte
	limits Limits
}

// NewWriter creates an empty Writer.
func NewWriter(opts ...Option) *Writer {
	return &Writer{
		buf:    make([]byte, 0, 64),
		limits: applyOptions(opts),
	}
}

// Bytes returns the encoded bytes. The slice aliases the Writer's buffer
// until the next write.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Limits returns the limits this Writer enforces.
func (w *Writer) Limits() Limits {
	return w.limits
}

// Reset discards the written bytes, keeping capacity.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// WriteBool writes a single 0 or 1 byte.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// WriteUint8 writes one byte.
func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteInt8 writes one byte.
func (w *Writer) WriteInt8(v int8) {
	w.buf = append(w.buf, byte(v))
}

// WriteUint16 writes v little endian.
func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteInt16 writes v little endian.
func (w *Writer) WriteInt16(v int16) {
	w.WriteUint16(uint16(v))
}

// WriteUint32 writes v little endian.
func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteInt32 writes v little endian.
func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteUint64 writes v little endian.
func (w *Writer) WriteUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteInt64 writes v little endian.
func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// WriteFloat32 writes the IEEE 754 bits of v little endian.
func (w *Writer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 writes the IEEE 754 bits of v little endian.
func (w *Writer) WriteFloat64(v float64) {
	w.WriteUint64(math.Float64bits(v))
}

// WriteUvarint writes v as an unsigned varint.
func (w *Writer) WriteUvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

// WriteString writes s with a uvarint byte length prefix. s must be valid
// UTF-8 in NFC; it is written byte for byte, never rewritten.
func (w *Writer) WriteString(s string) error {
	if !utf8.ValidString(s) {
		return &FormatError{Offset: len(w.buf), What: "string", Message: "invalid UTF-8"}
	}
	if !norm.NFC.IsNormalString(s) {
		return &FormatError{Offset: len(w.buf), What: "string", Message: "not NFC normalized"}
	}
	if len(s) > w.limits.MaxString {
		return tooLong(len(w.buf), "string", uint64(len(s)), w.limits.MaxString)
	}
	w.WriteUvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

// WriteBytes writes b with a uvarint length prefix.
func (w *Writer) WriteBytes(b []byte) error {
	if len(b) > w.limits.MaxBytes {
		return tooLong(len(w.buf), "bytes", uint64(len(b)), w.limits.MaxBytes)
	}
	w.WriteUvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
	return nil
}

// WriteCount writes a container element count.
func (w *Writer) WriteCount(n int) error {
	if n < 0 || n > w.limits.MaxCollection {
		return tooLong(len(w.buf), "count", uint64(n), w.limits.MaxCollection)
	}
	w.WriteUvarint(uint64(n))
	return nil
}

// WriteRaw appends b without a prefix.
func (w *Writer) WriteRaw(b []byte) {
	w.buf = append(w.buf, b...)
}
