package blend

import (
	"fmt"

	"github.com/twinfer/blenddna/pkg/dna"
)

// Address is a raw, unresolved pointer value inside a generic projection.
type Address uint64

func (a Address) String() string { return fmt.Sprintf("%#x", uint64(a)) }

// Generic is a structure decoded from the schema alone, without a dedicated
// converter. Field keys are the schema names, so pointer fields keep their
// leading asterisk.
type Generic struct {
	Meta
	Address uint64
	Fields  map[string]any
	Order   []string
}

var genericConverter = Converter{
	New: func() Object { return &Generic{} },
	Decode: func(r Record, dst Object) error {
		g, ok := dst.(*Generic)
		if !ok {
			return fmt.Errorf("%w: generic converter cannot decode into %T", ErrTypeMismatch, dst)
		}
		return g.decode(r)
	},
}

// NewGeneric decodes r into a Generic.
func NewGeneric(r Record) (*Generic, error) {
	g := &Generic{}
	g.stamp(r.s.Name)
	if err := g.decode(r); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Generic) decode(r Record) error {
	fields, err := r.Map()
	if err != nil {
		return err
	}
	g.Address = r.addr
	g.Fields = fields
	g.Order = make([]string, 0, len(r.s.Fields))
	for _, f := range r.s.Fields {
		g.Order = append(g.Order, f.Name)
	}
	return nil
}

// Map decodes every field of the record using the schema alone. Pointers
// become Address values, char arrays become strings, embedded structures
// become nested maps and other primitive arrays become slices.
func (r Record) Map() (map[string]any, error) {
	out := make(map[string]any, len(r.s.Fields))
	for i := range r.s.Fields {
		f := &r.s.Fields[i]
		v, err := r.value(f)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", r.s.Name, f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

func (r Record) value(f *dna.Field) (any, error) {
	defer r.db.cursor.Save()()
	r.db.stats.FieldsRead++

	if f.IsPointer() {
		if !f.IsArray() {
			p, err := r.readPointer(f.Offset)
			return Address(p), err
		}
		out := make([]Address, f.Elements())
		for i := range out {
			p, err := r.readPointer(f.Offset + uint64(i)*f.ElementSize())
			if err != nil {
				return nil, err
			}
			out[i] = Address(p)
		}
		return out, nil
	}

	if kind, ok := dna.PrimitiveOf(f.Type); ok {
		if !f.IsArray() {
			s, err := r.read(f.Offset, kind)
			return s.Value(), err
		}
		if kind == dna.Char {
			if err := r.seek(f.Offset); err != nil {
				return nil, err
			}
			raw, err := r.db.cursor.Bytes(int(f.Elements()))
			if err != nil {
				return nil, err
			}
			return r.db.decodeString(raw), nil
		}
		return r.primitiveArray(f, kind)
	}

	s, err := r.db.Catalog.Lookup(f.Type)
	if err != nil || s.Size == 0 || s.IsPrimitive() {
		if err := r.seek(f.Offset); err != nil {
			return nil, err
		}
		return r.db.cursor.Bytes(int(f.Size))
	}
	if !f.IsArray() {
		sub := Record{db: r.db, s: s, start: r.start + int64(f.Offset), addr: r.addr + f.Offset}
		return sub.Map()
	}
	out := make([]map[string]any, f.Elements())
	for i := range out {
		off := f.Offset + uint64(i)*s.Size
		sub := Record{db: r.db, s: s, start: r.start + int64(off), addr: r.addr + off}
		m, err := sub.Map()
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// primitiveArray reads a 1D array as a flat slice and a 2D array as rows.
func (r Record) primitiveArray(f *dna.Field, kind dna.Primitive) (any, error) {
	stride := f.ElementSize()
	row := func(base uint64, n uint64) ([]any, error) {
		out := make([]any, n)
		for i := range out {
			s, err := r.read(f.Offset+(base+uint64(i))*stride, kind)
			if err != nil {
				return nil, err
			}
			out[i] = s.Value()
		}
		return out, nil
	}
	if f.ArraySizes[1] <= 1 {
		return row(0, f.ArraySizes[0])
	}
	rows := make([][]any, f.ArraySizes[0])
	for i := range rows {
		var err error
		if rows[i], err = row(uint64(i)*f.ArraySizes[1], f.ArraySizes[1]); err != nil {
			return nil, err
		}
	}
	return rows, nil
}
