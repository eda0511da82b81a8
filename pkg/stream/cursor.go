// Package stream provides the byte cursor shared by every stage of a decode
// session. It wraps a kaitai.Stream and carries the two properties of the input
// file that every read depends on: pointer width and byte order.
package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// ErrOutOfBounds is returned when a seek or read would leave the buffer.
var ErrOutOfBounds = errors.New("offset out of bounds")

// Layout describes how scalars and pointers are encoded in one input file.
// It is fixed for the whole file and decided when the session starts.
type Layout struct {
	PointerSize int  // 4 or 8
	BigEndian   bool // false for little endian
}

// Validate reports whether the layout can be used for decoding.
func (l Layout) Validate() error {
	if l.PointerSize != 4 && l.PointerSize != 8 {
		return fmt.Errorf("unsupported pointer size %d", l.PointerSize)
	}
	return nil
}

func (l Layout) String() string {
	order := "le"
	if l.BigEndian {
		order = "be"
	}
	return fmt.Sprintf("ptr%d/%s", l.PointerSize*8, order)
}

// Cursor is a seekable reader over an in-memory buffer.
type Cursor struct {
	*kaitai.Stream
	layout Layout
	size   int64
}

// NewCursor creates a cursor positioned at the start of data.
func NewCursor(data []byte, layout Layout) *Cursor {
	return &Cursor{
		Stream: kaitai.NewStream(bytes.NewReader(data)),
		layout: layout,
		size:   int64(len(data)),
	}
}

// Layout returns the encoding of the underlying file.
func (c *Cursor) Layout() Layout { return c.layout }

// PointerSize returns the width of a pointer in bytes.
func (c *Cursor) PointerSize() int { return c.layout.PointerSize }

// Len returns the buffer size.
func (c *Cursor) Len() int64 { return c.size }

// Offset returns the current position.
func (c *Cursor) Offset() int64 {
	pos, err := c.Pos()
	if err != nil {
		return 0
	}
	return pos
}

// Remaining returns the number of bytes left after the current position.
func (c *Cursor) Remaining() int64 { return c.size - c.Offset() }

// SeekTo moves the cursor to an absolute offset.
func (c *Cursor) SeekTo(off int64) error {
	if off < 0 || off > c.size {
		return fmt.Errorf("seek to %d (buffer is %d bytes): %w", off, c.size, ErrOutOfBounds)
	}
	_, err := c.Seek(off, io.SeekStart)
	return err
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int64) error {
	return c.SeekTo(c.Offset() + n)
}

// Save records the current position and returns a function that restores it.
// Callers pair it with defer so the position survives every return path:
//
//	defer c.Save()()
func (c *Cursor) Save() func() {
	pos := c.Offset()
	return func() {
		_, _ = c.Seek(pos, io.SeekStart)
	}
}

// Align advances the cursor until (pos - base) is a multiple of n.
func (c *Cursor) Align(base, n int64) error {
	rel := c.Offset() - base
	if pad := rel % n; pad != 0 {
		return c.Skip(n - pad)
	}
	return nil
}

func (c *Cursor) need(n int64) error {
	if c.Remaining() < n {
		return fmt.Errorf("read %d bytes at %d: %w", n, c.Offset(), io.ErrUnexpectedEOF)
	}
	return nil
}

// U8 reads one byte.
func (c *Cursor) U8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	return c.ReadU1()
}

// U16 reads an unsigned 16-bit integer in file byte order.
func (c *Cursor) U16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	if c.layout.BigEndian {
		return c.ReadU2be()
	}
	return c.ReadU2le()
}

// I16 reads a signed 16-bit integer in file byte order.
func (c *Cursor) I16() (int16, error) {
	v, err := c.U16()
	return int16(v), err
}

// U32 reads an unsigned 32-bit integer in file byte order.
func (c *Cursor) U32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	if c.layout.BigEndian {
		return c.ReadU4be()
	}
	return c.ReadU4le()
}

// I32 reads a signed 32-bit integer in file byte order.
func (c *Cursor) I32() (int32, error) {
	v, err := c.U32()
	return int32(v), err
}

// U64 reads an unsigned 64-bit integer in file byte order.
func (c *Cursor) U64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	if c.layout.BigEndian {
		return c.ReadU8be()
	}
	return c.ReadU8le()
}

// F32 reads an IEEE 754 single.
func (c *Cursor) F32() (float32, error) {
	v, err := c.U32()
	return math.Float32frombits(v), err
}

// F64 reads an IEEE 754 double.
func (c *Cursor) F64() (float64, error) {
	v, err := c.U64()
	return math.Float64frombits(v), err
}

// Pointer reads a pointer-width integer.
func (c *Cursor) Pointer() (uint64, error) {
	if c.layout.PointerSize == 8 {
		return c.U64()
	}
	v, err := c.U32()
	return uint64(v), err
}

// Bytes reads n raw bytes.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if err := c.need(int64(n)); err != nil {
		return nil, err
	}
	return c.ReadBytes(n)
}

// Tag reads a 4-byte identifier. Trailing NUL padding is dropped, so the
// block code "OB\x00\x00" comes back as "OB".
func (c *Cursor) Tag() (string, error) {
	b, err := c.Bytes(4)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}

// Expect reads a 4-byte identifier and checks it against want.
func (c *Cursor) Expect(want string) error {
	off := c.Offset()
	got, err := c.Tag()
	if err != nil {
		return fmt.Errorf("reading tag %q: %w", want, err)
	}
	if got != want {
		return fmt.Errorf("expected tag %q at %d, found %q", want, off, got)
	}
	return nil
}

// CString reads a NUL-terminated string and consumes the terminator.
func (c *Cursor) CString() (string, error) {
	b, err := c.ReadBytesTerm(0, false, true, true)
	if err != nil {
		return "", fmt.Errorf("reading string at %d: %w", c.Offset(), err)
	}
	return string(b), nil
}
