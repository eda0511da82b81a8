package stream

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_Validate(t *testing.T) {
	require.NoError(t, Layout{PointerSize: 4}.Validate())
	require.NoError(t, Layout{PointerSize: 8, BigEndian: true}.Validate())
	require.Error(t, Layout{PointerSize: 2}.Validate())
	assert.Equal(t, "ptr64/be", Layout{PointerSize: 8, BigEndian: true}.String())
}

func TestCursor_ByteOrder(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	t.Run("little endian", func(t *testing.T) {
		c := NewCursor(data, Layout{PointerSize: 4})
		v, err := c.U32()
		require.NoError(t, err)
		assert.Equal(t, uint32(0x04030201), v)
		p, err := c.Pointer()
		require.NoError(t, err)
		assert.Equal(t, uint64(0x08070605), p)
	})

	t.Run("big endian", func(t *testing.T) {
		c := NewCursor(data, Layout{PointerSize: 8, BigEndian: true})
		v, err := c.U16()
		require.NoError(t, err)
		assert.Equal(t, uint16(0x0102), v)
		require.NoError(t, c.SeekTo(0))
		p, err := c.Pointer()
		require.NoError(t, err)
		assert.Equal(t, uint64(0x0102030405060708), p)
	})
}

func TestCursor_SaveRestores(t *testing.T) {
	c := NewCursor(make([]byte, 16), Layout{PointerSize: 4})
	require.NoError(t, c.SeekTo(4))

	func() {
		defer c.Save()()
		require.NoError(t, c.SeekTo(12))
		_, err := c.U32()
		require.NoError(t, err)
	}()

	assert.Equal(t, int64(4), c.Offset())
}

func TestCursor_Bounds(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3}, Layout{PointerSize: 4})

	_, err := c.U32()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	err = c.SeekTo(4)
	require.ErrorIs(t, err, ErrOutOfBounds)
	assert.Equal(t, int64(0), c.Offset())
}

func TestCursor_TagsAndStrings(t *testing.T) {
	data := []byte("OB\x00\x00abc\x00SDNA")
	c := NewCursor(data, Layout{PointerSize: 4})

	tag, err := c.Tag()
	require.NoError(t, err)
	assert.Equal(t, "OB", tag)

	s, err := c.CString()
	require.NoError(t, err)
	assert.Equal(t, "abc", s)

	require.NoError(t, c.Expect("SDNA"))

	require.NoError(t, c.SeekTo(0))
	require.Error(t, c.Expect("SDNA"))
}

func TestCursor_Align(t *testing.T) {
	c := NewCursor(make([]byte, 32), Layout{PointerSize: 4})
	require.NoError(t, c.SeekTo(9))
	require.NoError(t, c.Align(1, 4))
	assert.Equal(t, int64(9), c.Offset())

	require.NoError(t, c.Align(0, 4))
	assert.Equal(t, int64(12), c.Offset())
}
