package blend

import (
	"bytes"
	"fmt"

	"github.com/twinfer/blenddna/pkg/dna"
)

// Record is one structure instance inside the buffer: the on-disk structure
// definition plus the absolute offset where the instance starts. Reads never
// move the session cursor as seen by the caller.
type Record struct {
	db    *Database
	s     *dna.Structure
	start int64
	addr  uint64
}

// Structure returns the on-disk definition of the record.
func (r Record) Structure() *dna.Structure { return r.s }

// Database returns the session the record belongs to.
func (r Record) Database() *Database { return r.db }

// Start returns the absolute buffer offset of the record.
func (r Record) Start() int64 { return r.start }

// Address returns the original memory address of the record.
func (r Record) Address() uint64 { return r.addr }

// Valid reports whether r refers to an instance.
func (r Record) Valid() bool { return r.db != nil && r.s != nil }

// Skip returns the record directly after r, for blocks holding several
// contiguous instances.
func (r Record) Skip() Record {
	return Record{db: r.db, s: r.s, start: r.start + int64(r.s.Size), addr: r.addr + r.s.Size}
}

func (r Record) label() string {
	return fmt.Sprintf("%s@%#x", r.s.Name, r.addr)
}

// lookup returns the named field. A nil field with a nil error means the
// policy substituted a default.
func (r Record) lookup(ep ErrorPolicy, name string) (*dna.Field, error) {
	f, err := r.s.Field(name)
	if err != nil {
		return nil, r.db.apply(ep, fmt.Errorf("%w: %s.%s", ErrFieldMissing, r.s.Name, name))
	}
	return f, nil
}

func (r Record) mismatch(ep ErrorPolicy, f *dna.Field, want string) error {
	return r.db.apply(ep, fmt.Errorf("%w: %s.%s (%s) cannot be read as %s", ErrFieldMismatch, r.s.Name, f.Name, f.Type, want))
}

func (r Record) seek(off uint64) error {
	if err := r.db.cursor.SeekTo(r.start + int64(off)); err != nil {
		return fmt.Errorf("reading %s: %w", r.label(), err)
	}
	return nil
}

func (r Record) read(off uint64, kind dna.Primitive) (dna.Scalar, error) {
	if err := r.seek(off); err != nil {
		return dna.Scalar{}, err
	}
	s, err := dna.ReadPrimitive(r.db.cursor, kind)
	if err != nil {
		return dna.Scalar{}, fmt.Errorf("reading %s at offset %d: %w", r.label(), off, err)
	}
	return s, nil
}

func (r Record) readPointer(off uint64) (uint64, error) {
	if err := r.seek(off); err != nil {
		return 0, err
	}
	p, err := r.db.cursor.Pointer()
	if err != nil {
		return 0, fmt.Errorf("reading pointer of %s at offset %d: %w", r.label(), off, err)
	}
	return p, nil
}

func (r Record) scalar(ep ErrorPolicy, name string) (dna.Scalar, bool, error) {
	f, err := r.lookup(ep, name)
	if f == nil {
		return dna.Scalar{}, false, err
	}
	if f.IsPointer() || f.IsArray() {
		return dna.Scalar{}, false, r.mismatch(ep, f, "a scalar")
	}
	kind, ok := dna.PrimitiveOf(f.Type)
	if !ok {
		return dna.Scalar{}, false, r.mismatch(ep, f, "a scalar")
	}

	defer r.db.cursor.Save()()
	s, err := r.read(f.Offset, kind)
	if err != nil {
		return dna.Scalar{}, false, err
	}
	r.db.stats.FieldsRead++
	return s, true, nil
}

func readScalar[V any](r Record, ep ErrorPolicy, name string, dst *V, conv func(dna.Scalar) V) error {
	var zero V
	*dst = zero
	s, ok, err := r.scalar(ep, name)
	if ok {
		*dst = conv(s)
	}
	return err
}

// Int reads an integer field, converting from the on-disk type.
func (r Record) Int(ep ErrorPolicy, name string, dst *int32) error {
	return readScalar(r, ep, name, dst, dna.Scalar.IntValue)
}

// Short reads a short field, converting from the on-disk type.
func (r Record) Short(ep ErrorPolicy, name string, dst *int16) error {
	return readScalar(r, ep, name, dst, dna.Scalar.ShortValue)
}

// Char reads a char field, converting from the on-disk type.
func (r Record) Char(ep ErrorPolicy, name string, dst *uint8) error {
	return readScalar(r, ep, name, dst, dna.Scalar.CharValue)
}

// Float reads a float field, converting from the on-disk type.
func (r Record) Float(ep ErrorPolicy, name string, dst *float32) error {
	return readScalar(r, ep, name, dst, dna.Scalar.FloatValue)
}

// Double reads a double field, converting from the on-disk type.
func (r Record) Double(ep ErrorPolicy, name string, dst *float64) error {
	return readScalar(r, ep, name, dst, dna.Scalar.DoubleValue)
}

func (r Record) arrayField(ep ErrorPolicy, name string) (*dna.Field, dna.Primitive, error) {
	f, err := r.lookup(ep, name)
	if f == nil {
		return nil, 0, err
	}
	if f.IsPointer() || !f.IsArray() {
		return nil, 0, r.mismatch(ep, f, "an array")
	}
	kind, ok := dna.PrimitiveOf(f.Type)
	if !ok {
		return nil, 0, r.mismatch(ep, f, "a primitive array")
	}
	return f, kind, nil
}

// readArray fills dst from a fixed-size array field, flattened in row order.
// Elements past the on-disk length are zero.
func readArray[V any](r Record, ep ErrorPolicy, name string, dst []V, conv func(dna.Scalar) V) error {
	clear(dst)
	f, kind, err := r.arrayField(ep, name)
	if f == nil {
		return err
	}

	defer r.db.cursor.Save()()
	n := min(int(f.Elements()), len(dst))
	stride := f.ElementSize()
	for i := 0; i < n; i++ {
		s, err := r.read(f.Offset+uint64(i)*stride, kind)
		if err != nil {
			return err
		}
		dst[i] = conv(s)
	}
	r.db.stats.FieldsRead++
	return nil
}

// IntArray reads a 1D array field into dst.
func (r Record) IntArray(ep ErrorPolicy, name string, dst []int32) error {
	return readArray(r, ep, name, dst, dna.Scalar.IntValue)
}

// ShortArray reads a 1D array field into dst.
func (r Record) ShortArray(ep ErrorPolicy, name string, dst []int16) error {
	return readArray(r, ep, name, dst, dna.Scalar.ShortValue)
}

// CharArray reads a 1D array field into dst.
func (r Record) CharArray(ep ErrorPolicy, name string, dst []uint8) error {
	return readArray(r, ep, name, dst, dna.Scalar.CharValue)
}

// FloatArray reads a 1D array field into dst.
func (r Record) FloatArray(ep ErrorPolicy, name string, dst []float32) error {
	return readArray(r, ep, name, dst, dna.Scalar.FloatValue)
}

// DoubleArray reads a 1D array field into dst.
func (r Record) DoubleArray(ep ErrorPolicy, name string, dst []float64) error {
	return readArray(r, ep, name, dst, dna.Scalar.DoubleValue)
}

// FloatMatrix reads a 2D array field into dst. Each dimension is adapted on
// its own: rows and columns missing on disk are zero.
func (r Record) FloatMatrix(ep ErrorPolicy, name string, dst [][]float32) error {
	for i := range dst {
		clear(dst[i])
	}
	f, kind, err := r.arrayField(ep, name)
	if f == nil {
		return err
	}

	defer r.db.cursor.Save()()
	stride := f.ElementSize()
	rows := min(int(f.ArraySizes[0]), len(dst))
	for i := 0; i < rows; i++ {
		cols := min(int(f.ArraySizes[1]), len(dst[i]))
		for j := 0; j < cols; j++ {
			idx := uint64(i)*f.ArraySizes[1] + uint64(j)
			s, err := r.read(f.Offset+idx*stride, kind)
			if err != nil {
				return err
			}
			dst[i][j] = s.FloatValue()
		}
	}
	r.db.stats.FieldsRead++
	return nil
}

// String reads a bounded char array up to its first NUL and decodes it with
// the session charset.
func (r Record) String(ep ErrorPolicy, name string, dst *string) error {
	*dst = ""
	f, err := r.lookup(ep, name)
	if f == nil {
		return err
	}
	if f.IsPointer() || !f.IsArray() || f.Type != "char" {
		return r.mismatch(ep, f, "a string")
	}

	defer r.db.cursor.Save()()
	if err := r.seek(f.Offset); err != nil {
		return err
	}
	raw, err := r.db.cursor.Bytes(int(f.Elements()))
	if err != nil {
		return fmt.Errorf("reading %s.%s: %w", r.s.Name, name, err)
	}
	r.db.stats.FieldsRead++
	*dst = r.db.decodeString(raw)
	return nil
}

func (db *Database) decodeString(raw []byte) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	if db.charset == nil {
		return string(raw)
	}
	out, err := db.charset.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// pointerField returns the named scalar pointer field and its raw value.
func (r Record) pointerField(ep ErrorPolicy, name string) (*dna.Field, uint64, error) {
	f, err := r.lookup(ep, name)
	if f == nil {
		return nil, 0, err
	}
	if !f.IsPointer() || f.IsArray() {
		return nil, 0, r.mismatch(ep, f, "a pointer")
	}
	defer r.db.cursor.Save()()
	ptr, err := r.readPointer(f.Offset)
	if err != nil {
		return nil, 0, err
	}
	r.db.stats.FieldsRead++
	return f, ptr, nil
}

// Pointer reads the raw value of a pointer field without resolving it.
func (r Record) Pointer(ep ErrorPolicy, name string, dst *uint64) error {
	*dst = 0
	f, ptr, err := r.pointerField(ep, name)
	if f != nil {
		*dst = ptr
	}
	return err
}

// FileOffset translates a pointer field into an absolute buffer offset, for
// pointees that are raw data rather than structures. A null pointer gives 0,
// which no block payload can start at.
func (r Record) FileOffset(ep ErrorPolicy, name string, dst *int64) error {
	*dst = 0
	f, ptr, err := r.pointerField(ep, name)
	if f == nil || ptr == 0 {
		return err
	}
	b, err := r.db.Index.Locate(ptr)
	if err != nil {
		return err
	}
	*dst = b.Start + int64(ptr-b.Address)
	return nil
}

// Sub returns the record of an embedded (by value) structure field.
func (r Record) Sub(ep ErrorPolicy, name string) (Record, error) {
	f, err := r.lookup(ep, name)
	if f == nil {
		return Record{}, err
	}
	return r.sub(ep, f)
}

func (r Record) sub(ep ErrorPolicy, f *dna.Field) (Record, error) {
	if f.IsPointer() || f.IsArray() {
		return Record{}, r.mismatch(ep, f, "an embedded structure")
	}
	s, err := r.db.Catalog.Lookup(f.Type)
	if err != nil || s.IsPrimitive() {
		return Record{}, r.mismatch(ep, f, "an embedded structure")
	}
	return Record{db: r.db, s: s, start: r.start + int64(f.Offset), addr: r.addr + f.Offset}, nil
}

// Struct decodes an embedded structure field into dst with the converter
// registered for the field's type. With the generic fallback enabled, an
// unregistered type decodes into a *Generic dst.
func (r Record) Struct(ep ErrorPolicy, name string, dst Object) error {
	sub, err := r.Sub(ep, name)
	if !sub.Valid() {
		return err
	}
	conv, ok := r.db.registry.Get(sub.s.Name)
	if !ok {
		_, isGeneric := dst.(*Generic)
		conv, ok = r.db.converter(sub.s.Name)
		ok = ok && isGeneric
	}
	if !ok {
		return r.db.apply(ep, fmt.Errorf("%w: %q embedded as %s.%s", ErrNoConverter, sub.s.Name, r.s.Name, name))
	}
	dst.stamp(sub.s.Name)
	r.db.stats.FieldsRead++
	return conv.Decode(sub, dst)
}
