package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/twinfer/blenddna/pkg/stream"
)

// Decl is one field declaration as it appears in the schema name table,
// pointer asterisk and array brackets included ("*next", "mat[4][4]").
type Decl struct {
	Type string
	Name string
}

// F is shorthand for a field declaration.
func F(typ, name string) Decl { return Decl{Type: typ, Name: name} }

type structDef struct {
	name   string
	fields []Decl
}

type blockDef struct {
	code    string
	address uint64
	sdna    uint32
	count   uint32
	payload []byte
}

// Builder assembles a synthetic file: preamble, data blocks, the schema
// block and the end sentinel, for any pointer width and byte order.
type Builder struct {
	layout  stream.Layout
	version string

	types   map[string]uint16
	structs []structDef
	blocks  []blockDef

	omitSchema bool
	schemaHook func([]byte) []byte
}

var primitiveSizes = map[string]uint16{
	"char":   1,
	"short":  2,
	"int":    4,
	"float":  4,
	"double": 8,
}

// NewBuilder returns a builder for the given layout.
func NewBuilder(layout stream.Layout) *Builder {
	return &Builder{
		layout:  layout,
		version: "300",
		types:   make(map[string]uint16),
	}
}

// Layout returns the layout blocks are encoded with.
func (b *Builder) Layout() stream.Layout { return b.layout }

// Version sets the three digit version written into the preamble.
func (b *Builder) Version(v string) *Builder {
	b.version = v
	return b
}

// Type declares an opaque type of the given size, such as "void".
func (b *Builder) Type(name string, size uint16) *Builder {
	b.types[name] = size
	return b
}

// Struct declares a structure. Structures are numbered in declaration order.
func (b *Builder) Struct(name string, fields ...Decl) *Builder {
	b.structs = append(b.structs, structDef{name: name, fields: fields})
	return b
}

// OmitSchema drops the schema block from the output.
func (b *Builder) OmitSchema() *Builder {
	b.omitSchema = true
	return b
}

// MangleSchema lets a test corrupt the encoded schema payload.
func (b *Builder) MangleSchema(fn func([]byte) []byte) *Builder {
	b.schemaHook = fn
	return b
}

// StructIndex returns the schema index of a declared structure.
func (b *Builder) StructIndex(name string) uint32 {
	for i, s := range b.structs {
		if s.name == name {
			return uint32(i)
		}
	}
	panic(fmt.Sprintf("testutil: structure %q not declared", name))
}

// Block adds a data block holding count instances of the named structure.
func (b *Builder) Block(code string, address uint64, structName string, count uint32, payload []byte) *Builder {
	return b.RawBlock(code, address, b.StructIndex(structName), count, payload)
}

// RawBlock adds a data block with an explicit schema index.
func (b *Builder) RawBlock(code string, address uint64, sdna, count uint32, payload []byte) *Builder {
	b.blocks = append(b.blocks, blockDef{code: code, address: address, sdna: sdna, count: count, payload: payload})
	return b
}

// Encoder returns a payload writer using the builder's layout.
func (b *Builder) Encoder() *Encoder { return NewEncoder(b.layout) }

// StructSize returns the on-disk size of a declared structure.
func (b *Builder) StructSize(name string) uint64 {
	size, err := b.sizeOf(name, 0)
	if err != nil {
		panic(err)
	}
	return size
}

func (b *Builder) sizeOf(typ string, depth int) (uint64, error) {
	if depth > 32 {
		return 0, fmt.Errorf("testutil: recursive by-value structure %q", typ)
	}
	if s, ok := primitiveSizes[typ]; ok {
		return uint64(s), nil
	}
	if s, ok := b.types[typ]; ok {
		return uint64(s), nil
	}
	for _, s := range b.structs {
		if s.name != typ {
			continue
		}
		var total uint64
		for _, f := range s.fields {
			size, err := b.fieldSize(f, depth+1)
			if err != nil {
				return 0, err
			}
			total += size
		}
		return total, nil
	}
	return 0, nil
}

func (b *Builder) fieldSize(f Decl, depth int) (uint64, error) {
	var size uint64
	if strings.HasPrefix(f.Name, "*") {
		size = uint64(b.layout.PointerSize)
	} else {
		var err error
		if size, err = b.sizeOf(f.Type, depth); err != nil {
			return 0, err
		}
	}
	rest := f.Name
	for {
		open := strings.IndexByte(rest, '[')
		if open < 0 {
			break
		}
		end := strings.IndexByte(rest[open:], ']')
		if end < 0 {
			break
		}
		var n uint64
		_, _ = fmt.Sscanf(rest[open+1:open+end], "%d", &n)
		size *= n
		rest = rest[open+end+1:]
	}
	return size, nil
}

// Schema encodes the schema block payload.
func (b *Builder) Schema() []byte {
	var names []string
	nameIdx := make(map[string]uint16)
	var typeNames []string
	typeIdx := make(map[string]uint16)

	addType := func(t string) {
		if _, ok := typeIdx[t]; !ok {
			typeIdx[t] = uint16(len(typeNames))
			typeNames = append(typeNames, t)
		}
	}
	for _, p := range []string{"char", "short", "int", "float", "double"} {
		addType(p)
	}
	for _, s := range b.structs {
		addType(s.name)
	}
	for _, s := range b.structs {
		for _, f := range s.fields {
			addType(f.Type)
			if _, ok := nameIdx[f.Name]; !ok {
				nameIdx[f.Name] = uint16(len(names))
				names = append(names, f.Name)
			}
		}
	}

	e := NewEncoder(b.layout)
	e.Tag("SDNA")
	e.Tag("NAME")
	e.Int(int32(len(names)))
	for _, n := range names {
		e.CString(n)
	}
	e.Align(4)
	e.Tag("TYPE")
	e.Int(int32(len(typeNames)))
	for _, t := range typeNames {
		e.CString(t)
	}
	e.Align(4)
	e.Tag("TLEN")
	for _, t := range typeNames {
		size, err := b.sizeOf(t, 0)
		if err != nil {
			panic(err)
		}
		e.U16(uint16(size))
	}
	e.Align(4)
	e.Tag("STRC")
	e.Int(int32(len(b.structs)))
	for _, s := range b.structs {
		e.U16(typeIdx[s.name])
		e.U16(uint16(len(s.fields)))
		for _, f := range s.fields {
			e.U16(typeIdx[f.Type])
			e.U16(nameIdx[f.Name])
		}
	}
	out := e.Bytes()
	if b.schemaHook != nil {
		out = b.schemaHook(out)
	}
	return out
}

// Preamble encodes the 12 byte file preamble.
func (b *Builder) Preamble() []byte {
	ptr, order := byte('_'), byte('v')
	if b.layout.PointerSize == 8 {
		ptr = '-'
	}
	if b.layout.BigEndian {
		order = 'V'
	}
	return append([]byte{'B', 'L', 'E', 'N', 'D', 'E', 'R', ptr, order}, b.version...)
}

// Body encodes everything after the preamble: data blocks, then the schema
// block, then the end sentinel.
func (b *Builder) Body() []byte {
	e := NewEncoder(b.layout)
	for _, blk := range b.blocks {
		e.blockHeader(blk.code, uint32(len(blk.payload)), blk.address, blk.sdna, blk.count)
		e.Raw(blk.payload)
	}
	if !b.omitSchema {
		schema := b.Schema()
		e.blockHeader("DNA1", uint32(len(schema)), 0, 0, 1)
		e.Raw(schema)
	}
	e.blockHeader("ENDB", 0, 0, 0, 0)
	return e.Bytes()
}

// Bytes encodes the complete file.
func (b *Builder) Bytes() []byte {
	return append(b.Preamble(), b.Body()...)
}

// Encoder writes values in a given layout.
type Encoder struct {
	layout stream.Layout
	order  binary.AppendByteOrder
	buf    bytes.Buffer
}

// NewEncoder creates an empty encoder.
func NewEncoder(layout stream.Layout) *Encoder {
	var order binary.AppendByteOrder = binary.LittleEndian
	if layout.BigEndian {
		order = binary.BigEndian
	}
	return &Encoder{layout: layout, order: order}
}

func (e *Encoder) blockHeader(code string, size uint32, address uint64, sdna, count uint32) {
	e.Tag(code)
	e.U32(size)
	e.Ptr(address)
	e.U32(sdna)
	e.U32(count)
}

// Tag writes a 4 byte identifier padded with NULs.
func (e *Encoder) Tag(s string) *Encoder {
	var tag [4]byte
	copy(tag[:], s)
	e.buf.Write(tag[:])
	return e
}

func (e *Encoder) U16(v uint16) *Encoder {
	e.buf.Write(e.order.AppendUint16(nil, v))
	return e
}

func (e *Encoder) U32(v uint32) *Encoder {
	e.buf.Write(e.order.AppendUint32(nil, v))
	return e
}

func (e *Encoder) Int(v int32) *Encoder { return e.U32(uint32(v)) }

func (e *Encoder) Short(v int16) *Encoder { return e.U16(uint16(v)) }

func (e *Encoder) Char(v uint8) *Encoder {
	e.buf.WriteByte(v)
	return e
}

func (e *Encoder) Float(v float32) *Encoder { return e.U32(math.Float32bits(v)) }

func (e *Encoder) Double(v float64) *Encoder {
	e.buf.Write(e.order.AppendUint64(nil, math.Float64bits(v)))
	return e
}

// Ptr writes a pointer in the layout width.
func (e *Encoder) Ptr(v uint64) *Encoder {
	if e.layout.PointerSize == 8 {
		e.buf.Write(e.order.AppendUint64(nil, v))
		return e
	}
	return e.U32(uint32(v))
}

// Chars writes s into a fixed char array of n bytes, NUL padded.
func (e *Encoder) Chars(s string, n int) *Encoder {
	b := make([]byte, n)
	copy(b, s)
	e.buf.Write(b)
	return e
}

// CString writes s followed by a NUL.
func (e *Encoder) CString(s string) *Encoder {
	e.buf.WriteString(s)
	e.buf.WriteByte(0)
	return e
}

// Zero writes n zero bytes.
func (e *Encoder) Zero(n int) *Encoder {
	e.buf.Write(make([]byte, n))
	return e
}

// Raw writes p unchanged.
func (e *Encoder) Raw(p []byte) *Encoder {
	e.buf.Write(p)
	return e
}

// Align pads with zeros to a multiple of n.
func (e *Encoder) Align(n int) *Encoder {
	if pad := e.buf.Len() % n; pad != 0 {
		e.Zero(n - pad)
	}
	return e
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int { return e.buf.Len() }

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte { return bytes.Clone(e.buf.Bytes()) }
