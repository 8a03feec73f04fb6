package codec

// FormatVersion identifies the encoding produced by this package. It is
// written at the head of persisted blobs; bump it on any change to the byte
// layout of a primitive.
const FormatVersion uint16 = 1

const (
	// DefaultMaxString is the default maximum encoded string length in bytes.
	DefaultMaxString = 32767

	// DefaultMaxBytes is the default maximum opaque byte block length.
	DefaultMaxBytes = 32 << 20

	// DefaultMaxCollection is the default maximum element count of an encoded
	// container.
	DefaultMaxCollection = 1 << 20
)

// Limits bounds the sizes a Reader or Writer will accept.
type Limits struct {
	MaxString     int
	MaxBytes      int
	MaxCollection int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxString:     DefaultMaxString,
		MaxBytes:      DefaultMaxBytes,
		MaxCollection: DefaultMaxCollection,
	}
}

// normalized fills zero fields with defaults.
func (l Limits) normalized() Limits {
	d := DefaultLimits()
	if l.MaxString <= 0 {
		l.MaxString = d.MaxString
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = d.MaxBytes
	}
	if l.MaxCollection <= 0 {
		l.MaxCollection = d.MaxCollection
	}
	return l
}

// Option configures a Reader or Writer.
type Option func(*Limits)

// WithLimits replaces the size limits. Zero fields keep their defaults.
func WithLimits(l Limits) Option {
	return func(dst *Limits) {
		*dst = l.normalized()
	}
}

func applyOptions(opts []Option) Limits {
	l := DefaultLimits()
	for _, opt := range opts {
		opt(&l)
	}
	return l
}
