package blend

import (
	"fmt"
	"slices"
	"sort"
)

// Object is a decoded structure instance. Every implementation embeds Meta,
// which records the schema type the instance was decoded as.
type Object interface {
	DNAType() string
	stamp(typeName string)
}

// Meta carries the schema type name of a decoded object.
type Meta struct {
	dnaType string
}

// DNAType returns the schema type name this object was decoded from.
func (m *Meta) DNAType() string { return m.dnaType }

func (m *Meta) stamp(typeName string) { m.dnaType = typeName }

// Unknown stands in for a runtime-typed pointee whose type has no converter.
type Unknown struct {
	Meta
	Address uint64
}

func (u *Unknown) String() string {
	return fmt.Sprintf("unknown %s at %#x", u.DNAType(), u.Address)
}

// Converter builds and decodes the objects of one schema type.
type Converter struct {
	New    func() Object
	Decode func(r Record, dst Object) error
}

// Registry maps schema type names to converters. It is filled once before
// decoding and only read afterwards.
type Registry struct {
	converters map[string]Converter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{converters: make(map[string]Converter)}
}

// Register adds or replaces the converter for a schema type.
func (r *Registry) Register(typeName string, c Converter) {
	r.converters[typeName] = c
}

// Get retrieves the converter for a schema type.
func (r *Registry) Get(typeName string) (Converter, bool) {
	c, ok := r.converters[typeName]
	return c, ok
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.converters))
	for name := range r.converters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge copies every converter of other into r.
func (r *Registry) Merge(other *Registry) {
	for _, name := range other.Types() {
		r.converters[name] = other.converters[name]
	}
}

// Register adds a typed converter. newFn allocates an empty hull and decode
// fills it from a record.
func Register[T Object](reg *Registry, typeName string, newFn func() T, decode func(Record, T) error) {
	reg.Register(typeName, Converter{
		New: func() Object { return newFn() },
		Decode: func(r Record, dst Object) error {
			v, ok := dst.(T)
			if !ok {
				return fmt.Errorf("%w: converter for %q cannot decode into %T", ErrTypeMismatch, typeName, dst)
			}
			return decode(r, v)
		},
	})
}

// ObjectCache holds every object materialized during one decode session,
// keyed by structure cache slot then by original address. Single objects and
// instance lists live in separate partitions.
type ObjectCache struct {
	single []map[uint64]Object
	lists  []map[uint64][]Object
	count  int
}

func newObjectCache() *ObjectCache {
	return &ObjectCache{}
}

func (c *ObjectCache) grow(slot int) {
	for len(c.single) <= slot {
		c.single = append(c.single, make(map[uint64]Object))
		c.lists = append(c.lists, make(map[uint64][]Object))
	}
}

// Get returns the single object cached at (slot, addr).
func (c *ObjectCache) Get(slot int, addr uint64) (Object, bool) {
	if slot < 0 || slot >= len(c.single) {
		return nil, false
	}
	obj, ok := c.single[slot][addr]
	return obj, ok
}

// Put stores a single object. An existing entry is kept.
func (c *ObjectCache) Put(slot int, addr uint64, obj Object) {
	c.grow(slot)
	if _, ok := c.single[slot][addr]; ok {
		return
	}
	c.single[slot][addr] = obj
	c.count++
}

// GetList returns the instance list cached at (slot, addr).
func (c *ObjectCache) GetList(slot int, addr uint64) ([]Object, bool) {
	if slot < 0 || slot >= len(c.lists) {
		return nil, false
	}
	objs, ok := c.lists[slot][addr]
	return objs, ok
}

// PutList stores an instance list. An existing entry is kept.
func (c *ObjectCache) PutList(slot int, addr uint64, objs []Object) {
	c.grow(slot)
	if _, ok := c.lists[slot][addr]; ok {
		return
	}
	c.lists[slot][addr] = objs
	c.count += len(objs)
}

// Len returns the number of cached objects, list elements included.
func (c *ObjectCache) Len() int { return c.count }

// Addresses returns the sorted addresses of the single objects in a slot.
func (c *ObjectCache) Addresses(slot int) []uint64 {
	if slot < 0 || slot >= len(c.single) {
		return nil
	}
	out := make([]uint64, 0, len(c.single[slot]))
	for addr := range c.single[slot] {
		out = append(out, addr)
	}
	slices.Sort(out)
	return out
}
