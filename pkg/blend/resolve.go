package blend

import (
	"fmt"

	"github.com/twinfer/blenddna/pkg/dna"
)

// anyType is the schema type of untyped pointers. They resolve by the type of
// the block they point into.
const anyType = "void"

type resolveMode struct {
	static      string // expected schema type, empty for runtime-typed
	deferred    bool   // allocate and cache the hull but leave the body
	placeholder bool   // return *Unknown instead of nothing when no converter exists
	accept      func(Object) bool
}

func accepts[T Object](o Object) bool {
	_, ok := o.(T)
	return ok
}

func staticType(f *dna.Field) string {
	if f.Type == anyType {
		return ""
	}
	return f.Type
}

// target locates the block for ptr and checks the block's type against the
// expected one.
func (db *Database) target(ptr uint64, static string) (Block, *dna.Structure, error) {
	b, err := db.Index.Locate(ptr)
	if err != nil {
		return Block{}, nil, err
	}
	actual, err := db.Structure(b)
	if err != nil {
		return Block{}, nil, err
	}
	if static != "" && static != actual.Name {
		return Block{}, nil, fmt.Errorf("%w: expected target of %#x to be of type %q but it is a %q",
			ErrTypeMismatch, ptr, static, actual.Name)
	}
	return b, actual, nil
}

// resolve turns ptr into a single object. On a cache miss the hull is cached
// before its body is decoded, which ends recursion on cycles. In deferred
// mode the returned record still has to be decoded by the caller and pending
// is true.
func (db *Database) resolve(ep ErrorPolicy, ptr uint64, m resolveMode) (obj Object, rec Record, pending bool, err error) {
	if ptr == 0 {
		return nil, Record{}, false, nil
	}
	b, actual, err := db.target(ptr, m.static)
	if err != nil {
		return nil, Record{}, false, err
	}

	slot := db.slot(actual)
	if cached, ok := db.cache.Get(slot, ptr); ok {
		db.stats.CacheHits++
		if m.accept != nil && !m.accept(cached) {
			return nil, Record{}, false, db.apply(ep, fmt.Errorf("%w: object at %#x was decoded as %T", ErrNoConverter, ptr, cached))
		}
		return cached, Record{}, false, nil
	}

	if b.Count > 1 {
		return nil, Record{}, false, db.apply(ep, fmt.Errorf("%w: expected a single %s at %#x but block %s holds %d instances",
			ErrFieldMismatch, actual.Name, ptr, b, b.Count))
	}
	rec, err = db.recordAt(actual, b, ptr)
	if err != nil {
		return nil, Record{}, false, err
	}

	conv, ok := db.converter(actual.Name)
	if ok {
		obj = conv.New()
		ok = m.accept == nil || m.accept(obj)
	}
	if !ok {
		if err := db.apply(ep, fmt.Errorf("%w: %q at %#x", ErrNoConverter, actual.Name, ptr)); err != nil {
			return nil, Record{}, false, err
		}
		if !m.placeholder {
			return nil, Record{}, false, nil
		}
		obj, conv = &Unknown{Address: ptr}, Converter{}
	}

	obj.stamp(actual.Name)
	db.cache.Put(slot, ptr, obj)
	db.stats.PointersResolved++

	if conv.Decode == nil {
		return obj, rec, false, nil
	}
	if m.deferred {
		return obj, rec, true, nil
	}
	if err := conv.Decode(rec, obj); err != nil {
		return nil, Record{}, false, err
	}
	return obj, rec, false, nil
}

// resolveList turns ptr into the run of instances starting there. The list
// is cached before any element is decoded.
func (db *Database) resolveList(ep ErrorPolicy, ptr uint64, m resolveMode) ([]Object, error) {
	if ptr == 0 {
		return nil, nil
	}
	b, actual, err := db.target(ptr, m.static)
	if err != nil {
		return nil, err
	}

	slot := db.slot(actual)
	if cached, ok := db.cache.GetList(slot, ptr); ok {
		db.stats.CacheHits++
		return cached, nil
	}

	conv, ok := db.converter(actual.Name)
	if ok && m.accept != nil {
		ok = m.accept(conv.New())
	}
	if !ok {
		return nil, db.apply(ep, fmt.Errorf("%w: %q at %#x", ErrNoConverter, actual.Name, ptr))
	}

	n := instances(actual, b, ptr)
	objs := make([]Object, n)
	recs := make([]Record, n)
	for i := range objs {
		if recs[i], err = db.recordAt(actual, b, ptr+uint64(i)*actual.Size); err != nil {
			return nil, err
		}
		objs[i] = conv.New()
		objs[i].stamp(actual.Name)
	}
	db.cache.PutList(slot, ptr, objs)
	db.stats.PointersResolved++

	for i, obj := range objs {
		if err := conv.Decode(recs[i], obj); err != nil {
			return nil, err
		}
	}
	return objs, nil
}

// ReadPtr resolves a pointer field into a single object of static type T.
// A null pointer leaves dst nil.
func ReadPtr[T Object](r Record, ep ErrorPolicy, name string, dst *T) error {
	var zero T
	*dst = zero
	f, ptr, err := r.pointerField(ep, name)
	if f == nil {
		return err
	}
	obj, _, _, err := r.db.resolve(ep, ptr, resolveMode{static: staticType(f), accept: accepts[T]})
	if err != nil || obj == nil {
		return err
	}
	*dst = obj.(T)
	return nil
}

// ReadPtrDeferred resolves a pointer field like ReadPtr but does not decode a
// newly allocated pointee. When pending is true the caller owns decoding the
// returned record into *dst. Null pointers and cache hits are never pending.
func ReadPtrDeferred[T Object](r Record, ep ErrorPolicy, name string, dst *T) (next Record, pending bool, err error) {
	var zero T
	*dst = zero
	f, ptr, err := r.pointerField(ep, name)
	if f == nil {
		return Record{}, false, err
	}
	obj, rec, pending, err := r.db.resolve(ep, ptr, resolveMode{static: staticType(f), deferred: true, accept: accepts[T]})
	if err != nil || obj == nil {
		return Record{}, false, err
	}
	*dst = obj.(T)
	return rec, pending, nil
}

// ReadAnyPtr resolves a pointer by the type of the block it points into. A
// type without a converter yields an *Unknown carrying the type name unless
// the policy aborts.
func ReadAnyPtr(r Record, ep ErrorPolicy, name string, dst *Object) error {
	*dst = nil
	f, ptr, err := r.pointerField(ep, name)
	if f == nil {
		return err
	}
	obj, _, _, err := r.db.resolve(ep, ptr, resolveMode{placeholder: true})
	if err != nil {
		return err
	}
	*dst = obj
	return nil
}

// ReadPtrSlice resolves a pointer to a run of contiguous instances, such as
// a vertex array. The whole run shares one cache entry.
func ReadPtrSlice[T Object](r Record, ep ErrorPolicy, name string, dst *[]T) error {
	*dst = nil
	f, ptr, err := r.pointerField(ep, name)
	if f == nil {
		return err
	}
	objs, err := r.db.resolveList(ep, ptr, resolveMode{static: staticType(f), accept: accepts[T]})
	if err != nil || objs == nil {
		return err
	}
	out := make([]T, len(objs))
	for i, o := range objs {
		v, ok := o.(T)
		if !ok {
			return fmt.Errorf("%w: element %d of %s.%s is %T", ErrTypeMismatch, i, r.s.Name, name, o)
		}
		out[i] = v
	}
	*dst = out
	return nil
}

// ReadPtrArray resolves a fixed-size array of pointers. Slots past the
// on-disk length are left nil.
func ReadPtrArray[T Object](r Record, ep ErrorPolicy, name string, dst []T) error {
	clear(dst)
	f, err := r.lookup(ep, name)
	if f == nil {
		return err
	}
	if !f.IsPointer() || !f.IsArray() {
		return r.mismatch(ep, f, "a pointer array")
	}

	ptrs := make([]uint64, min(int(f.Elements()), len(dst)))
	if err := func() error {
		defer r.db.cursor.Save()()
		for i := range ptrs {
			p, err := r.readPointer(f.Offset + uint64(i)*f.ElementSize())
			if err != nil {
				return err
			}
			ptrs[i] = p
		}
		return nil
	}(); err != nil {
		return err
	}
	r.db.stats.FieldsRead++

	m := resolveMode{static: staticType(f), accept: accepts[T]}
	for i, p := range ptrs {
		obj, _, _, err := r.db.resolve(ep, p, m)
		if err != nil {
			return err
		}
		if obj != nil {
			dst[i] = obj.(T)
		}
	}
	return nil
}

// ReadPtrList resolves a pointer to a run of pointers, such as a material
// slot list. The run must fill the rest of its block exactly.
func ReadPtrList[T Object](r Record, ep ErrorPolicy, name string, dst *[]T) error {
	*dst = nil
	f, ptr, err := r.pointerField(ep, name)
	if f == nil || ptr == 0 {
		return err
	}

	b, err := r.db.Index.Locate(ptr)
	if err != nil {
		return err
	}
	ps := uint64(r.db.Layout().PointerSize)
	rest := b.End() - ptr
	if rest%ps != 0 {
		return fmt.Errorf("%w: pointer list at %#x leaves %d bytes in block %s, not a multiple of %d",
			ErrPointer, ptr, rest, b, ps)
	}

	ptrs := make([]uint64, rest/ps)
	if err := func() error {
		c := r.db.cursor
		defer c.Save()()
		if err := c.SeekTo(b.Start + int64(ptr-b.Address)); err != nil {
			return err
		}
		for i := range ptrs {
			p, err := c.Pointer()
			if err != nil {
				return fmt.Errorf("reading pointer list of %s.%s: %w", r.s.Name, name, err)
			}
			ptrs[i] = p
		}
		return nil
	}(); err != nil {
		return err
	}

	out := make([]T, len(ptrs))
	m := resolveMode{static: staticType(f), accept: accepts[T]}
	for i, p := range ptrs {
		obj, _, _, err := r.db.resolve(ep, p, m)
		if err != nil {
			return err
		}
		if obj != nil {
			out[i] = obj.(T)
		}
	}
	*dst = out
	return nil
}

// DecodeChain decodes head from r and then every node reachable through the
// forward pointer field next, one node per loop iteration. body decodes all
// other fields of a node and must not resolve next itself; back links are
// not followed. The chain ends at a null pointer or an already cached node.
func DecodeChain[T Object](r Record, ep ErrorPolicy, head T, next string, link func(T) *T, body func(Record, T) error) error {
	cur := head
	for {
		if err := body(r, cur); err != nil {
			return err
		}
		rec, pending, err := ReadPtrDeferred(r, ep, next, link(cur))
		if err != nil || !pending {
			return err
		}
		r, cur = rec, *link(cur)
	}
}

// ResolveRoot resolves the object at address by the type of its block.
func ResolveRoot[T Object](db *Database, ep ErrorPolicy, address uint64) (T, error) {
	var zero T
	if address == 0 {
		return zero, fmt.Errorf("%w: null root address", ErrPointer)
	}
	obj, _, _, err := db.resolve(ep, address, resolveMode{accept: accepts[T]})
	if err != nil {
		return zero, err
	}
	if obj == nil {
		return zero, fmt.Errorf("%w: no %T at %#x", ErrNoConverter, zero, address)
	}
	return obj.(T), nil
}

// ResolveFirst resolves the first instance of the named structure in address
// order, such as the scene of a file.
func ResolveFirst[T Object](db *Database, ep ErrorPolicy, structName string) (T, error) {
	var zero T
	b, err := db.FirstBlock(structName)
	if err != nil {
		return zero, err
	}
	return ResolveRoot[T](db, ep, b.Address)
}

// FirstBlock returns the lowest addressed block holding the named structure.
func (db *Database) FirstBlock(structName string) (Block, error) {
	idx, ok := db.Catalog.Index(structName)
	if !ok {
		return Block{}, fmt.Errorf("%w named %q", dna.ErrNoStructure, structName)
	}
	b, ok := db.Index.FirstOf(idx)
	if !ok {
		return Block{}, fmt.Errorf("no block holds a %s", structName)
	}
	return b, nil
}

// ResolveAny resolves the object at address by the type of its block,
// returning an *Unknown placeholder when no converter exists.
func (db *Database) ResolveAny(ep ErrorPolicy, address uint64) (Object, error) {
	obj, _, _, err := db.resolve(ep, address, resolveMode{placeholder: true})
	return obj, err
}
