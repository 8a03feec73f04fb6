package syncwork

import (
	"fmt"
	"sort"
)

// Tag identifies a polymorphic type on the wire. Zero means "no value".
type Tag uint16

// Describable is implemented by types that bind their own fields, in a fixed
// order, through a Worker. The same method serves encoding and decoding.
type Describable interface {
	Describe(w *Worker) error
}

// DescribeFunc adapts a bind function to Describable.
type DescribeFunc func(w *Worker) error

// Describe implements Describable.
func (f DescribeFunc) Describe(w *Worker) error {
	return f(w)
}

// Tagged is a Describable that can appear behind an interface-typed field.
type Tagged interface {
	Describable
	SyncTag() Tag
}

// Registry maps tags to constructors for BindAny.
type Registry struct {
	factories map[Tag]func() Tagged
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Tag]func() Tagged)}
}

// Register associates tag with factory. Tag zero and duplicate tags are
// rejected.
func (r *Registry) Register(tag Tag, factory func() Tagged) error {
	if tag == 0 {
		return fmt.Errorf("register: tag 0 is reserved for nil")
	}
	if factory == nil {
		return fmt.Errorf("register tag %d: nil factory", tag)
	}
	if _, exists := r.factories[tag]; exists {
		return fmt.Errorf("register tag %d: already registered", tag)
	}
	r.factories[tag] = factory
	return nil
}

// MustRegister is Register that panics on error. Intended for package init.
func (r *Registry) MustRegister(tag Tag, factory func() Tagged) {
	if err := r.Register(tag, factory); err != nil {
		panic(err)
	}
}

// Has reports whether tag is registered.
func (r *Registry) Has(tag Tag) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[tag]
	return ok
}

// New constructs an empty value for tag.
func (r *Registry) New(tag Tag) (Tagged, bool) {
	if r == nil {
		return nil, false
	}
	f, ok := r.factories[tag]
	if !ok {
		return nil, false
	}
	return f(), true
}

// Tags returns the registered tags in ascending order.
func (r *Registry) Tags() []Tag {
	if r == nil {
		return nil
	}
	tags := make([]Tag, 0, len(r.factories))
	for t := range r.factories {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
