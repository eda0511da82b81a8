// Package dna models the schema embedded in a self-describing binary file.
// The schema ("DNA") lists every structure the producing application wrote,
// with field names, types, sizes and offsets, and may differ from one file
// version to the next.
package dna

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema marks a malformed embedded schema. It always aborts the decode.
	ErrSchema = errors.New("malformed schema")
	// ErrNoField is returned when a structure has no field with the given name.
	ErrNoField = errors.New("no such field")
	// ErrNoStructure is returned when the catalog has no structure with the given name or index.
	ErrNoStructure = errors.New("no such structure")
)

// FieldFlag is a bit set describing how a field is stored.
type FieldFlag uint8

const (
	// FlagPointer marks a field holding a pointer-width address.
	FlagPointer FieldFlag = 1 << iota
	// FlagArray marks a fixed-size array field.
	FlagArray
)

// Field is one named member of a Structure.
type Field struct {
	Name string // lookup name, pointer asterisks kept, array brackets stripped
	Type string // schema type name

	// Size is the on-disk byte size of the whole field. For pointers this is
	// the pointer width times the array dimensions, never the pointee size.
	Size uint64
	// Offset is the byte offset inside the owning structure.
	Offset uint64

	// ArraySizes holds up to two dimensions; the second is 1 for flat arrays
	// and both are 1 for scalars.
	ArraySizes [2]uint64

	Flags FieldFlag
}

// IsPointer reports whether the field holds an address.
func (f *Field) IsPointer() bool { return f.Flags&FlagPointer != 0 }

// IsArray reports whether the field is a fixed-size array.
func (f *Field) IsArray() bool { return f.Flags&FlagArray != 0 }

// Elements returns the total number of array elements.
func (f *Field) Elements() uint64 { return f.ArraySizes[0] * f.ArraySizes[1] }

// ElementSize returns the byte size of one array element.
func (f *Field) ElementSize() uint64 {
	n := f.Elements()
	if n == 0 {
		return 0
	}
	return f.Size / n
}

func (f Field) String() string {
	return fmt.Sprintf("%s %s (size %d, offset %d)", f.Type, f.Name, f.Size, f.Offset)
}

// Structure is a named, ordered set of fields as declared in the schema.
// Two structures are the same type when their names match.
type Structure struct {
	Name   string
	Fields []Field
	Size   uint64

	index     map[string]int
	cacheSlot int
}

// NewStructure creates an empty structure of the given on-disk size.
func NewStructure(name string, size uint64) *Structure {
	return &Structure{
		Name:      name,
		Size:      size,
		index:     make(map[string]int),
		cacheSlot: -1,
	}
}

// AddField appends f and indexes it by name. A later field with the same name
// takes over the name index.
func (s *Structure) AddField(f Field) {
	s.Fields = append(s.Fields, f)
	s.index[f.Name] = len(s.Fields) - 1
}

// Field returns the field with the given name.
func (s *Structure) Field(name string) (*Field, error) {
	i, ok := s.index[name]
	if !ok {
		return nil, fmt.Errorf("structure %q: %w %q", s.Name, ErrNoField, name)
	}
	return &s.Fields[i], nil
}

// HasField reports whether the structure declares the named field.
func (s *Structure) HasField(name string) bool {
	_, ok := s.index[name]
	return ok
}

// IsPrimitive reports whether s is one of the seeded primitive pseudo-structures.
func (s *Structure) IsPrimitive() bool {
	_, ok := PrimitiveOf(s.Name)
	return ok && len(s.Fields) == 0
}

// CacheSlot returns the object cache slot assigned to this structure, or -1.
func (s *Structure) CacheSlot() int { return s.cacheSlot }

// AssignCacheSlot sets the cache slot the first time the structure takes part
// in pointer caching. Later calls keep the first slot.
func (s *Structure) AssignCacheSlot(slot int) int {
	if s.cacheSlot < 0 {
		s.cacheSlot = slot
	}
	return s.cacheSlot
}

func (s *Structure) String() string {
	return fmt.Sprintf("%s (%d fields, %d bytes)", s.Name, len(s.Fields), s.Size)
}

// Catalog is the full schema of one file.
type Catalog struct {
	Structures []*Structure

	indices   map[string]int
	nextSlot  int
	fieldsSum int
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{indices: make(map[string]int)}
}

// Add appends a structure and indexes it by name.
func (c *Catalog) Add(s *Structure) int {
	c.indices[s.Name] = len(c.Structures)
	c.Structures = append(c.Structures, s)
	c.fieldsSum += len(s.Fields)
	return len(c.Structures) - 1
}

// Lookup returns the structure with the given name.
func (c *Catalog) Lookup(name string) (*Structure, error) {
	i, ok := c.indices[name]
	if !ok {
		return nil, fmt.Errorf("%w named %q", ErrNoStructure, name)
	}
	return c.Structures[i], nil
}

// At returns the structure with the given index.
func (c *Catalog) At(i int) (*Structure, error) {
	if i < 0 || i >= len(c.Structures) {
		return nil, fmt.Errorf("%w with index %d (catalog has %d)", ErrNoStructure, i, len(c.Structures))
	}
	return c.Structures[i], nil
}

// Index returns the index of the named structure.
func (c *Catalog) Index(name string) (int, bool) {
	i, ok := c.indices[name]
	return i, ok
}

// Len returns the number of structures, primitives included.
func (c *Catalog) Len() int { return len(c.Structures) }

// NextCacheSlot hands out cache slots in order of first use.
func (c *Catalog) NextCacheSlot() int {
	slot := c.nextSlot
	c.nextSlot++
	return slot
}

// AddPrimitiveStructures seeds the catalog with the primitive pseudo-structures
// so field type lookups never need a special case.
func (c *Catalog) AddPrimitiveStructures() {
	for _, p := range primitives {
		c.Add(NewStructure(p.String(), p.Size()))
	}
}
