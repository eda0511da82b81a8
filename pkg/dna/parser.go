package dna

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/twinfer/blenddna/pkg/stream"
)

// Parse decodes the embedded schema. The cursor must point at the start of
// the schema block payload; its position is undefined afterwards.
func Parse(c *stream.Cursor) (*Catalog, error) {
	base := c.Offset()

	if err := c.Expect("SDNA"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	if err := c.Expect("NAME"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	names, err := readStringTable(c, "name")
	if err != nil {
		return nil, err
	}

	if err := section(c, base, "TYPE"); err != nil {
		return nil, err
	}
	typeNames, err := readStringTable(c, "type")
	if err != nil {
		return nil, err
	}

	if err := section(c, base, "TLEN"); err != nil {
		return nil, err
	}
	typeSizes := make([]uint64, len(typeNames))
	for i := range typeSizes {
		v, err := c.U16()
		if err != nil {
			return nil, fmt.Errorf("%w: reading length of type %q: %v", ErrSchema, typeNames[i], err)
		}
		typeSizes[i] = uint64(v)
	}

	if err := section(c, base, "STRC"); err != nil {
		return nil, err
	}
	count, err := c.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: reading structure count: %v", ErrSchema, err)
	}

	cat := NewCatalog()
	ptrSize := uint64(c.PointerSize())
	for i := uint32(0); i < count; i++ {
		typeIndex, err := c.U16()
		if err != nil {
			return nil, fmt.Errorf("%w: reading structure %d: %v", ErrSchema, i, err)
		}
		if int(typeIndex) >= len(typeNames) {
			return nil, fmt.Errorf("%w: invalid type index %d in structure name (there are only %d entries)", ErrSchema, typeIndex, len(typeNames))
		}

		s := NewStructure(typeNames[typeIndex], 0)
		fieldCount, err := c.U16()
		if err != nil {
			return nil, fmt.Errorf("%w: reading field count of %q: %v", ErrSchema, s.Name, err)
		}

		var offset uint64
		for j := uint16(0); j < fieldCount; j++ {
			ft, err := c.U16()
			if err != nil {
				return nil, fmt.Errorf("%w: reading field %d of %q: %v", ErrSchema, j, s.Name, err)
			}
			if int(ft) >= len(typeNames) {
				return nil, fmt.Errorf("%w: invalid type index %d in structure field (there are only %d entries)", ErrSchema, ft, len(typeNames))
			}
			fn, err := c.U16()
			if err != nil {
				return nil, fmt.Errorf("%w: reading field %d of %q: %v", ErrSchema, j, s.Name, err)
			}
			if int(fn) >= len(names) {
				return nil, fmt.Errorf("%w: invalid name index %d in structure field (there are only %d entries)", ErrSchema, fn, len(names))
			}

			f, err := newField(names[fn], typeNames[ft], typeSizes[ft], ptrSize)
			if err != nil {
				return nil, fmt.Errorf("structure %q: %w", s.Name, err)
			}
			f.Offset = offset
			offset += f.Size
			s.AddField(f)
		}
		s.Size = offset
		cat.Add(s)
	}

	cat.AddPrimitiveStructures()
	return cat, nil
}

// FieldCount returns the number of fields parsed from the file.
func (c *Catalog) FieldCount() int { return c.fieldsSum }

func section(c *stream.Cursor, base int64, tag string) error {
	if err := c.Align(base, 4); err != nil {
		return fmt.Errorf("%w: aligning to %s: %v", ErrSchema, tag, err)
	}
	if err := c.Expect(tag); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

func readStringTable(c *stream.Cursor, what string) ([]string, error) {
	n, err := c.U32()
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s count: %v", ErrSchema, what, err)
	}
	if int64(n) > c.Remaining() {
		return nil, fmt.Errorf("%w: %s count %d exceeds remaining %d bytes", ErrSchema, what, n, c.Remaining())
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = c.CString(); err != nil {
			return nil, fmt.Errorf("%w: reading %s %d: %v", ErrSchema, what, i, err)
		}
	}
	return out, nil
}

// newField builds a field from a raw schema declaration. Pointer declarations
// start with '*' and take the platform pointer width; array declarations carry
// up to two bracketed dimensions that multiply the size.
func newField(decl, typeName string, typeSize, ptrSize uint64) (Field, error) {
	f := Field{
		Name:       decl,
		Type:       typeName,
		Size:       typeSize,
		ArraySizes: [2]uint64{1, 1},
	}

	if strings.HasPrefix(decl, "*") {
		f.Size = ptrSize
		f.Flags |= FlagPointer
	}

	if strings.Contains(decl, "[") {
		name, dims, err := ExtractArraySize(decl)
		if err != nil {
			return Field{}, err
		}
		f.Name = name
		f.ArraySizes = dims
		f.Flags |= FlagArray
		f.Size *= dims[0] * dims[1]
	}
	return f, nil
}

// ExtractArraySize splits a C array declaration such as "foo[4][6]" into the
// bare name and its dimensions. Flat arrays get 1 as second dimension. More
// than two dimensions is a schema error. A dimension is read from its leading
// digits, so "[4 ]" is 4; a dimension without digits is an error.
func ExtractArraySize(decl string) (string, [2]uint64, error) {
	dims := [2]uint64{1, 1}
	open := strings.IndexByte(decl, '[')
	if open < 0 {
		return decl, dims, nil
	}
	name := decl[:open]

	rest := decl[open:]
	for i := 0; rest != ""; i++ {
		if rest[0] != '[' {
			return "", dims, fmt.Errorf("%w: invalid array declaration %q", ErrSchema, decl)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", dims, fmt.Errorf("%w: unterminated array declaration %q", ErrSchema, decl)
		}
		if i >= 2 {
			return "", dims, fmt.Errorf("%w: array declaration %q has more than two dimensions", ErrSchema, decl)
		}
		n, err := leadingUint(rest[1:end])
		if err != nil {
			return "", dims, fmt.Errorf("%w: invalid array dimension in %q: %v", ErrSchema, decl, err)
		}
		dims[i] = n
		rest = rest[end+1:]
	}
	return name, dims, nil
}

// leadingUint parses the decimal digits at the start of s and ignores the rest.
func leadingUint(s string) (uint64, error) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("no digits in %q", s)
	}
	return strconv.ParseUint(s[:end], 10, 64)
}
