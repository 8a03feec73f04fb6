package syncwork

import (
	"cmp"
	"maps"
	"slices"

	"github.com/roach88/lockstep/internal/codec"
)

// preallocCap bounds the capacity reserved from an untrusted count.
const preallocCap = 1024

// BindSlice binds a list as a count followed by each element in order.
func BindSlice[T any](w *Worker, name string, s *[]T, elem func(*Worker, *T) error) error {
	if w.err != nil {
		return w.err
	}
	w.trace.Enter(name)
	defer w.trace.Exit()

	n := len(*s)
	if err := w.bindCount(name, &n); err != nil {
		return err
	}
	if w.writing {
		for i := range *s {
			if err := elem(w, &(*s)[i]); err != nil {
				return w.fail(name, err)
			}
		}
		return nil
	}

	out := make([]T, 0, min(n, preallocCap))
	for range n {
		var v T
		if err := elem(w, &v); err != nil {
			return w.fail(name, err)
		}
		out = append(out, v)
	}
	*s = out
	return nil
}

// BindMap binds a map as a count followed by key/value pairs in ascending
// key order. Go map iteration order is random, so sorting is what makes the
// encoding identical on every peer. A duplicate key on read is a
// FormatError.
func BindMap[K cmp.Ordered, V any](
	w *Worker,
	name string,
	m *map[K]V,
	key func(*Worker, *K) error,
	val func(*Worker, *V) error,
) error {
	if w.err != nil {
		return w.err
	}
	w.trace.Enter(name)
	defer w.trace.Exit()

	n := len(*m)
	if err := w.bindCount(name, &n); err != nil {
		return err
	}
	if w.writing {
		for _, k := range slices.Sorted(maps.Keys(*m)) {
			v := (*m)[k]
			if err := key(w, &k); err != nil {
				return w.fail(name, err)
			}
			if err := val(w, &v); err != nil {
				return w.fail(name, err)
			}
		}
		return nil
	}

	out := make(map[K]V, min(n, preallocCap))
	for range n {
		var k K
		var v V
		if err := key(w, &k); err != nil {
			return w.fail(name, err)
		}
		if _, dup := out[k]; dup {
			return w.fail(name, &codec.FormatError{Offset: w.r.Position(), What: "map", Message: "duplicate key"})
		}
		if err := val(w, &v); err != nil {
			return w.fail(name, err)
		}
		out[k] = v
	}
	*m = out
	return nil
}

// BindSet binds a set as a count followed by its members in ascending order.
func BindSet[K cmp.Ordered](w *Worker, name string, s *map[K]struct{}, key func(*Worker, *K) error) error {
	if w.err != nil {
		return w.err
	}
	w.trace.Enter(name)
	defer w.trace.Exit()

	n := len(*s)
	if err := w.bindCount(name, &n); err != nil {
		return err
	}
	if w.writing {
		for _, k := range slices.Sorted(maps.Keys(*s)) {
			if err := key(w, &k); err != nil {
				return w.fail(name, err)
			}
		}
		return nil
	}

	out := make(map[K]struct{}, min(n, preallocCap))
	for range n {
		var k K
		if err := key(w, &k); err != nil {
			return w.fail(name, err)
		}
		if _, dup := out[k]; dup {
			return w.fail(name, &codec.FormatError{Offset: w.r.Position(), What: "set", Message: "duplicate member"})
		}
		out[k] = struct{}{}
	}
	*s = out
	return nil
}

// BindOptional binds a possibly-nil pointer as a presence flag followed by
// the value.
func BindOptional[T any](w *Worker, name string, p **T, elem func(*Worker, *T) error) error {
	present := *p != nil
	if err := w.BindBool(name+".present", &present); err != nil {
		return err
	}
	if !present {
		if !w.writing {
			*p = nil
		}
		return nil
	}
	if !w.writing {
		*p = new(T)
	}
	if err := elem(w, *p); err != nil {
		return w.fail(name, err)
	}
	return nil
}

// BindElems binds a slice of Describable values, each as a nested
// structure named "item".
func BindElems[T any, PT interface {
	*T
	Describable
}](w *Worker, name string, s *[]T) error {
	return BindSlice(w, name, s, func(w *Worker, v *T) error {
		return w.Bind("item", PT(v))
	})
}

// Element binders for use with the container helpers.

// Int32 binds an int32 element.
func Int32(w *Worker, v *int32) error { return w.BindInt32("item", v) }

// Int64 binds an int64 element.
func Int64(w *Worker, v *int64) error { return w.BindInt64("item", v) }

// Uint64 binds a uint64 element.
func Uint64(w *Worker, v *uint64) error { return w.BindUint64("item", v) }

// Float64 binds a float64 element.
func Float64(w *Worker, v *float64) error { return w.BindFloat64("item", v) }

// String binds a string element.
func String(w *Worker, v *string) error { return w.BindString("item", v) }

// Bool binds a bool element.
func Bool(w *Worker, v *bool) error { return w.BindBool("item", v) }
