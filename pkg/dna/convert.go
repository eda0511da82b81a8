package dna

import (
	"fmt"
	"math"

	"github.com/twinfer/blenddna/pkg/stream"
)

// Primitive identifies one of the scalar encodings a file can store.
type Primitive uint8

const (
	Int Primitive = iota + 1
	Short
	Char
	Float
	Double
)

var primitives = []Primitive{Int, Short, Char, Float, Double}

var primitiveNames = map[string]Primitive{
	"int":    Int,
	"short":  Short,
	"char":   Char,
	"float":  Float,
	"double": Double,
}

// PrimitiveOf maps a schema type name to its primitive encoding.
func PrimitiveOf(name string) (Primitive, bool) {
	p, ok := primitiveNames[name]
	return p, ok
}

// Size returns the on-disk byte size.
func (p Primitive) Size() uint64 {
	switch p {
	case Int, Float:
		return 4
	case Short:
		return 2
	case Char:
		return 1
	case Double:
		return 8
	}
	return 0
}

func (p Primitive) String() string {
	switch p {
	case Int:
		return "int"
	case Short:
		return "short"
	case Char:
		return "char"
	case Float:
		return "float"
	case Double:
		return "double"
	}
	return fmt.Sprintf("primitive(%d)", uint8(p))
}

// Scalar is one value read from the file, kept in its source encoding until
// the caller asks for a destination type.
type Scalar struct {
	Kind  Primitive
	Int   int64
	Float float64
}

// IntScalar wraps an integer value of the given kind.
func IntScalar(kind Primitive, v int64) Scalar { return Scalar{Kind: kind, Int: v} }

// FloatScalar wraps a floating point value of the given kind.
func FloatScalar(kind Primitive, v float64) Scalar { return Scalar{Kind: kind, Float: v} }

// ReadScalar reads one value of the primitive structure src at the cursor.
func ReadScalar(c *stream.Cursor, src *Structure) (Scalar, error) {
	kind, ok := PrimitiveOf(src.Name)
	if !ok {
		return Scalar{}, fmt.Errorf("unknown source for conversion: %q", src.Name)
	}
	return ReadPrimitive(c, kind)
}

// ReadPrimitive reads one value of the given encoding at the cursor.
func ReadPrimitive(c *stream.Cursor, kind Primitive) (Scalar, error) {
	switch kind {
	case Int:
		v, err := c.I32()
		return IntScalar(kind, int64(v)), err
	case Short:
		v, err := c.I16()
		return IntScalar(kind, int64(v)), err
	case Char:
		v, err := c.U8()
		return IntScalar(kind, int64(v)), err
	case Float:
		v, err := c.F32()
		return FloatScalar(kind, float64(v)), err
	case Double:
		v, err := c.F64()
		return FloatScalar(kind, v), err
	}
	return Scalar{}, fmt.Errorf("unknown source for conversion: %v", kind)
}

func (s Scalar) isFloat() bool { return s.Kind == Float || s.Kind == Double }

// real returns the value in float form, rescaling the normalized integer
// encodings: char maps 0..255 to 0..1 and short maps -32767..32767 to -1..1.
func (s Scalar) real() float64 {
	switch s.Kind {
	case Char:
		return float64(s.Int) / 255
	case Short:
		return float64(s.Int) / 32767
	case Float, Double:
		return s.Float
	}
	return float64(s.Int)
}

// IntValue converts to a 32-bit integer. Floating point sources truncate.
func (s Scalar) IntValue() int32 {
	if s.isFloat() {
		return int32(s.Float)
	}
	return int32(s.Int)
}

// ShortValue converts to a 16-bit integer. Floating point sources are
// clamped to [-1, 1] and scaled by 32767.
func (s Scalar) ShortValue() int16 {
	if s.isFloat() {
		return int16(math.Round(clamp(s.Float, -1, 1) * 32767))
	}
	return int16(s.Int)
}

// CharValue converts to an unsigned byte. Floating point sources are clamped
// to [0, 1] and scaled by 255; short sources go through the same float form.
func (s Scalar) CharValue() uint8 {
	switch s.Kind {
	case Float, Double, Short:
		return uint8(math.Round(clamp(s.real(), 0, 1) * 255))
	}
	return uint8(s.Int)
}

// FloatValue converts to a single precision float.
func (s Scalar) FloatValue() float32 {
	return float32(s.real())
}

// DoubleValue converts to a double precision float.
func (s Scalar) DoubleValue() float64 {
	return s.real()
}

// Value returns the scalar as a Go value in its natural source type. The
// generic converter uses it to project records without a destination type.
func (s Scalar) Value() any {
	switch s.Kind {
	case Int:
		return int32(s.Int)
	case Short:
		return int16(s.Int)
	case Char:
		return uint8(s.Int)
	case Float:
		return float32(s.Float)
	case Double:
		return s.Float
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
