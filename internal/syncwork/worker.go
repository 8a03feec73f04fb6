// Package syncwork binds structured values to the codec byte format.
//
// A Worker runs in one direction, writing or reading, and exposes a single
// set of Bind methods that serve both. A type describes itself once:
//
//	func (p *Pawn) Describe(w *syncwork.Worker) error {
//	    if err := w.BindInt32("id", &p.ID); err != nil {
//	        return err
//	    }
//	    return w.BindString("name", &p.Name)
//	}
//
// and the same method encodes and decodes it. Errors are sticky: after the
// first failure every Bind returns that error, so a decode never continues
// past corrupt input.
package syncwork

import (
	"fmt"
	"strconv"

	"github.com/roach88/lockstep/internal/codec"
)

// Worker walks values in declared order through a codec Writer or Reader.
type Worker struct {
	writing bool
	w       *codec.Writer
	r       *codec.Reader
	reg     *Registry
	trace   *Trace
	err     error
}

type config struct {
	codecOpts []codec.Option
	reg       *Registry
	trace     *Trace
}

// Option configures a Worker.
type Option func(*config)

// WithLimits sets the codec size limits.
func WithLimits(l codec.Limits) Option {
	return func(c *config) {
		c.codecOpts = append(c.codecOpts, codec.WithLimits(l))
	}
}

// WithRegistry sets the registry consulted by BindAny.
func WithRegistry(r *Registry) Option {
	return func(c *config) {
		c.reg = r
	}
}

// WithTrace records every primitive into t.
func WithTrace(t *Trace) Option {
	return func(c *config) {
		c.trace = t
	}
}

func newConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// NewWriter creates a Worker that encodes.
func NewWriter(opts ...Option) *Worker {
	c := newConfig(opts)
	return &Worker{
		writing: true,
		w:       codec.NewWriter(c.codecOpts...),
		reg:     c.reg,
		trace:   c.trace,
	}
}

// NewReader creates a Worker that decodes data.
func NewReader(data []byte, opts ...Option) *Worker {
	c := newConfig(opts)
	return &Worker{
		r:     codec.NewReader(data, c.codecOpts...),
		reg:   c.reg,
		trace: c.trace,
	}
}

// IsWriting reports whether the Worker encodes.
func (w *Worker) IsWriting() bool {
	return w.writing
}

// Bytes returns the encoded bytes of a writing Worker, nil otherwise.
func (w *Worker) Bytes() []byte {
	if !w.writing {
		return nil
	}
	return w.w.Bytes()
}

// Err returns the first error the Worker hit.
func (w *Worker) Err() error {
	return w.err
}

// Registry returns the Worker's registry, possibly nil.
func (w *Worker) Registry() *Registry {
	return w.reg
}

// Done returns an error if a reading Worker has unread input.
func (w *Worker) Done() error {
	if w.err != nil {
		return w.err
	}
	if w.writing {
		return nil
	}
	if err := w.r.Done(); err != nil {
		return w.fail("", err)
	}
	return nil
}

// Pause suspends tracing around content the trace cannot describe.
func (w *Worker) Pause() {
	w.trace.Pause()
}

// Resume undoes Pause.
func (w *Worker) Resume() {
	w.trace.Resume()
}

func (w *Worker) fail(name string, err error) error {
	if w.err == nil {
		if name != "" {
			err = fmt.Errorf("%s: %w", name, err)
		}
		w.err = err
	}
	return w.err
}

func noErr[T any](f func(*codec.Writer, T)) func(*codec.Writer, T) error {
	return func(cw *codec.Writer, v T) error {
		f(cw, v)
		return nil
	}
}

func bindPrim[T any](
	w *Worker,
	name, kind string,
	v *T,
	write func(*codec.Writer, T) error,
	read func(*codec.Reader) (T, error),
	format func(T) string,
) error {
	if w.err != nil {
		return w.err
	}
	if w.writing {
		if err := write(w.w, *v); err != nil {
			return w.fail(name, err)
		}
	} else {
		x, err := read(w.r)
		if err != nil {
			return w.fail(name, err)
		}
		*v = x
	}
	if w.trace.active() {
		w.trace.Record(name, kind, format(*v))
	}
	return nil
}

func fmtInt[T ~int8 | ~int16 | ~int32 | ~int64](v T) string {
	return strconv.FormatInt(int64(v), 10)
}

func fmtUint[T ~uint8 | ~uint16 | ~uint32 | ~uint64](v T) string {
	return strconv.FormatUint(uint64(v), 10)
}

// BindBool binds a bool.
func (w *Worker) BindBool(name string, v *bool) error {
	return bindPrim(w, name, "bool", v, noErr((*codec.Writer).WriteBool), (*codec.Reader).ReadBool, strconv.FormatBool)
}

// BindUint8 binds a uint8.
func (w *Worker) BindUint8(name string, v *uint8) error {
	return bindPrim(w, name, "uint8", v, noErr((*codec.Writer).WriteUint8), (*codec.Reader).ReadUint8, fmtUint[uint8])
}

// BindInt8 binds an int8.
func (w *Worker) BindInt8(name string, v *int8) error {
	return bindPrim(w, name, "int8", v, noErr((*codec.Writer).WriteInt8), (*codec.Reader).ReadInt8, fmtInt[int8])
}

// BindUint16 binds a uint16.
func (w *Worker) BindUint16(name string, v *uint16) error {
	return bindPrim(w, name, "uint16", v, noErr((*codec.Writer).WriteUint16), (*codec.Reader).ReadUint16, fmtUint[uint16])
}

// BindInt16 binds an int16.
func (w *Worker) BindInt16(name string, v *int16) error {
	return bindPrim(w, name, "int16", v, noErr((*codec.Writer).WriteInt16), (*codec.Reader).ReadInt16, fmtInt[int16])
}

// BindUint32 binds a uint32.
func (w *Worker) BindUint32(name string, v *uint32) error {
	return bindPrim(w, name, "uint32", v, noErr((*codec.Writer).WriteUint32), (*codec.Reader).ReadUint32, fmtUint[uint32])
}

// BindInt32 binds an int32.
func (w *Worker) BindInt32(name string, v *int32) error {
	return bindPrim(w, name, "int32", v, noErr((*codec.Writer).WriteInt32), (*codec.Reader).ReadInt32, fmtInt[int32])
}

// BindUint64 binds a uint64.
func (w *Worker) BindUint64(name string, v *uint64) error {
	return bindPrim(w, name, "uint64", v, noErr((*codec.Writer).WriteUint64), (*codec.Reader).ReadUint64, fmtUint[uint64])
}

// BindInt64 binds an int64.
func (w *Worker) BindInt64(name string, v *int64) error {
	return bindPrim(w, name, "int64", v, noErr((*codec.Writer).WriteInt64), (*codec.Reader).ReadInt64, fmtInt[int64])
}

// BindFloat32 binds a float32.
func (w *Worker) BindFloat32(name string, v *float32) error {
	return bindPrim(w, name, "float32", v, noErr((*codec.Writer).WriteFloat32), (*codec.Reader).ReadFloat32,
		func(f float32) string { return strconv.FormatFloat(float64(f), 'g', -1, 32) })
}

// BindFloat64 binds a float64.
func (w *Worker) BindFloat64(name string, v *float64) error {
	return bindPrim(w, name, "float64", v, noErr((*codec.Writer).WriteFloat64), (*codec.Reader).ReadFloat64,
		func(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) })
}

// BindString binds a length-prefixed string.
func (w *Worker) BindString(name string, v *string) error {
	return bindPrim(w, name, "string", v, (*codec.Writer).WriteString, (*codec.Reader).ReadString, strconv.Quote)
}

// BindBytes binds an opaque length-prefixed byte block. The trace records
// only its length.
func (w *Worker) BindBytes(name string, v *[]byte) error {
	if w.err != nil {
		return w.err
	}
	w.trace.Pause()
	var err error
	if w.writing {
		err = w.w.WriteBytes(*v)
	} else {
		var b []byte
		if b, err = w.r.ReadBytes(); err == nil {
			*v = b
		}
	}
	w.trace.Resume()
	if err != nil {
		return w.fail(name, err)
	}
	if w.trace.active() {
		w.trace.Record(name, "bytes["+strconv.Itoa(len(*v))+"]", "")
	}
	return nil
}

// bindCount binds a container length.
func (w *Worker) bindCount(name string, n *int) error {
	if w.err != nil {
		return w.err
	}
	if w.writing {
		if err := w.w.WriteCount(*n); err != nil {
			return w.fail(name, err)
		}
	} else {
		c, err := w.r.ReadCount()
		if err != nil {
			return w.fail(name, err)
		}
		*n = c
	}
	if w.trace.active() {
		w.trace.Record("count", "count", strconv.Itoa(*n))
	}
	return nil
}

// Bind binds a nested Describable as a named structure.
func (w *Worker) Bind(name string, d Describable) error {
	if w.err != nil {
		return w.err
	}
	w.trace.Enter(name)
	err := d.Describe(w)
	w.trace.Exit()
	if err != nil {
		return w.fail(name, err)
	}
	return nil
}

// BindAny binds an interface-typed field. The value's tag is written first;
// on read the tag selects the constructor from the Worker's Registry. A nil
// value is encoded as tag 0.
func (w *Worker) BindAny(name string, v *Tagged) error {
	if w.err != nil {
		return w.err
	}
	var tag Tag
	if w.writing {
		if *v != nil {
			tag = (*v).SyncTag()
			if !w.reg.Has(tag) {
				return w.fail("", &SyncTypeError{Field: name, Type: fmt.Sprintf("%T", *v), Tag: tag})
			}
		}
	}
	raw := uint16(tag)
	if err := w.BindUint16(name+".tag", &raw); err != nil {
		return err
	}
	tag = Tag(raw)
	if tag == 0 {
		if !w.writing {
			*v = nil
		}
		return nil
	}
	if !w.writing {
		val, ok := w.reg.New(tag)
		if !ok {
			return w.fail("", &SyncTypeError{Field: name, Tag: tag})
		}
		*v = val
	}
	return w.Bind(name, *v)
}

// BindValue binds v by its dynamic type. v must be a pointer to a supported
// primitive, a *[]byte, or a Describable; anything else fails with a
// SyncTypeError rather than being skipped.
func (w *Worker) BindValue(name string, v any) error {
	switch p := v.(type) {
	case *bool:
		return w.BindBool(name, p)
	case *uint8:
		return w.BindUint8(name, p)
	case *int8:
		return w.BindInt8(name, p)
	case *uint16:
		return w.BindUint16(name, p)
	case *int16:
		return w.BindInt16(name, p)
	case *uint32:
		return w.BindUint32(name, p)
	case *int32:
		return w.BindInt32(name, p)
	case *uint64:
		return w.BindUint64(name, p)
	case *int64:
		return w.BindInt64(name, p)
	case *float32:
		return w.BindFloat32(name, p)
	case *float64:
		return w.BindFloat64(name, p)
	case *string:
		return w.BindString(name, p)
	case *[]byte:
		return w.BindBytes(name, p)
	case Describable:
		return w.Bind(name, p)
	default:
		if w.err != nil {
			return w.err
		}
		return w.fail("", &SyncTypeError{Field: name, Type: fmt.Sprintf("%T", v)})
	}
}
