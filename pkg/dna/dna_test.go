package dna_test

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/blenddna/pkg/dna"
	"github.com/twinfer/blenddna/pkg/stream"
	"github.com/twinfer/blenddna/testutil"
)

var layouts = []stream.Layout{
	{PointerSize: 4},
	{PointerSize: 8},
	{PointerSize: 4, BigEndian: true},
	{PointerSize: 8, BigEndian: true},
}

func TestExtractArraySize(t *testing.T) {
	tests := []struct {
		decl    string
		name    string
		dims    [2]uint64
		wantErr bool
	}{
		{decl: "foo[4][6]", name: "foo", dims: [2]uint64{4, 6}},
		{decl: "foo[9]", name: "foo", dims: [2]uint64{9, 1}},
		{decl: "*mtex[18]", name: "*mtex", dims: [2]uint64{18, 1}},
		{decl: "plain", name: "plain", dims: [2]uint64{1, 1}},
		{decl: "pad[4 ]", name: "pad", dims: [2]uint64{4, 1}},
		{decl: "m[3u][2]", name: "m", dims: [2]uint64{3, 2}},
		{decl: "foo[1][2][3]", wantErr: true},
		{decl: "foo[x]", wantErr: true},
		{decl: "foo[]", wantErr: true},
		{decl: "foo[3", wantErr: true},
		{decl: "foo[3]x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			name, dims, err := dna.ExtractArraySize(tt.decl)
			if tt.wantErr {
				require.ErrorIs(t, err, dna.ErrSchema)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.dims, dims)
		})
	}
}

func TestScalarConversions(t *testing.T) {
	t.Run("char to float", func(t *testing.T) {
		s := dna.IntScalar(dna.Char, 255)
		assert.Equal(t, float32(1.0), s.FloatValue())
		assert.InDelta(t, 0.5019607, dna.IntScalar(dna.Char, 128).DoubleValue(), 1e-6)
	})

	t.Run("float to short", func(t *testing.T) {
		assert.Equal(t, int16(32767), dna.FloatScalar(dna.Float, 1.0).ShortValue())
		assert.Equal(t, int16(-32767), dna.FloatScalar(dna.Float, -4.0).ShortValue())
		assert.Equal(t, int16(32767), dna.FloatScalar(dna.Double, 7.5).ShortValue())
	})

	t.Run("short to char through float", func(t *testing.T) {
		s := dna.IntScalar(dna.Short, 16000)
		assert.Equal(t, uint8(125), s.CharValue())
		assert.Equal(t, uint8(0), dna.IntScalar(dna.Short, -100).CharValue())
	})

	t.Run("float to char clamps", func(t *testing.T) {
		assert.Equal(t, uint8(255), dna.FloatScalar(dna.Float, 2).CharValue())
		assert.Equal(t, uint8(0), dna.FloatScalar(dna.Float, -2).CharValue())
		assert.Equal(t, uint8(128), dna.FloatScalar(dna.Float, 0.5).CharValue())
	})

	t.Run("short to float", func(t *testing.T) {
		assert.Equal(t, float32(1.0), dna.IntScalar(dna.Short, 32767).FloatValue())
	})

	t.Run("plain numeric", func(t *testing.T) {
		assert.Equal(t, int32(-7), dna.IntScalar(dna.Int, -7).IntValue())
		assert.Equal(t, int32(3), dna.FloatScalar(dna.Float, 3.9).IntValue())
		assert.Equal(t, int16(12), dna.IntScalar(dna.Int, 12).ShortValue())
		assert.Equal(t, uint8(200), dna.IntScalar(dna.Int, 200).CharValue())
		assert.Equal(t, float64(42), dna.IntScalar(dna.Int, 42).DoubleValue())
		assert.Equal(t, int32(200), dna.IntScalar(dna.Char, 200).IntValue())
	})

	t.Run("source type value", func(t *testing.T) {
		assert.Equal(t, int32(5), dna.IntScalar(dna.Int, 5).Value())
		assert.Equal(t, uint8(5), dna.IntScalar(dna.Char, 5).Value())
		assert.Equal(t, float32(0.25), dna.FloatScalar(dna.Float, 0.25).Value())
	})
}

func TestReadScalar(t *testing.T) {
	for _, layout := range layouts {
		t.Run(layout.String(), func(t *testing.T) {
			enc := testutil.NewEncoder(layout)
			enc.Int(-3).Short(-2).Char(7).Float(1.5).Double(-0.25)
			c := stream.NewCursor(enc.Bytes(), layout)

			cat := dna.NewCatalog()
			cat.AddPrimitiveStructures()

			want := []any{int32(-3), int16(-2), uint8(7), float32(1.5), float64(-0.25)}
			for i, typ := range []string{"int", "short", "char", "float", "double"} {
				src, err := cat.Lookup(typ)
				require.NoError(t, err)
				s, err := dna.ReadScalar(c, src)
				require.NoError(t, err)
				assert.Equal(t, want[i], s.Value(), typ)
			}

			_, err := dna.ReadScalar(c, dna.NewStructure("Object", 8))
			require.ErrorContains(t, err, "unknown source for conversion")
		})
	}
}

func sampleBuilder(layout stream.Layout) *testutil.Builder {
	return testutil.NewBuilder(layout).
		Type("void", 0).
		Struct("Link", testutil.F("Link", "*next"), testutil.F("Link", "*prev")).
		Struct("Node",
			testutil.F("Link", "link"),
			testutil.F("char", "name[24]"),
			testutil.F("float", "mat[4][4]"),
			testutil.F("void", "*data"),
			testutil.F("short", "flag"),
			testutil.F("Node", "*kids[3]"),
		)
}

func TestParse(t *testing.T) {
	for _, layout := range layouts {
		t.Run(layout.String(), func(t *testing.T) {
			b := sampleBuilder(layout)
			c := stream.NewCursor(b.Schema(), layout)

			cat, err := dna.Parse(c)
			require.NoError(t, err)

			ptr := uint64(layout.PointerSize)
			link, err := cat.Lookup("Link")
			require.NoError(t, err)
			assert.Equal(t, 2*ptr, link.Size)

			node, err := cat.Lookup("Node")
			require.NoError(t, err)

			want := []dna.Field{
				{Name: "link", Type: "Link", Size: 2 * ptr, Offset: 0, ArraySizes: [2]uint64{1, 1}},
				{Name: "name", Type: "char", Size: 24, Offset: 2 * ptr, ArraySizes: [2]uint64{24, 1}, Flags: dna.FlagArray},
				{Name: "mat", Type: "float", Size: 64, Offset: 2*ptr + 24, ArraySizes: [2]uint64{4, 4}, Flags: dna.FlagArray},
				{Name: "*data", Type: "void", Size: ptr, Offset: 2*ptr + 88, ArraySizes: [2]uint64{1, 1}, Flags: dna.FlagPointer},
				{Name: "flag", Type: "short", Size: 2, Offset: 3*ptr + 88, ArraySizes: [2]uint64{1, 1}},
				{Name: "*kids", Type: "Node", Size: 3 * ptr, Offset: 3*ptr + 90, ArraySizes: [2]uint64{3, 1}, Flags: dna.FlagPointer | dna.FlagArray},
			}
			if diff := cmp.Diff(want, node.Fields, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Node fields mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, 6*ptr+90, node.Size)
			assert.Equal(t, b.StructSize("Node"), node.Size)

			f, err := node.Field("*kids")
			require.NoError(t, err)
			assert.True(t, f.IsPointer())
			assert.True(t, f.IsArray())
			assert.Equal(t, uint64(3), f.Elements())
			assert.Equal(t, ptr, f.ElementSize())

			_, err = node.Field("kids")
			require.ErrorIs(t, err, dna.ErrNoField)

			idx, ok := cat.Index("Node")
			require.True(t, ok)
			assert.Equal(t, int(b.StructIndex("Node")), idx)

			for _, p := range []string{"int", "short", "char", "float", "double"} {
				s, err := cat.Lookup(p)
				require.NoError(t, err, p)
				assert.True(t, s.IsPrimitive())
			}
			assert.Equal(t, 7, cat.Len())
			assert.Equal(t, 8, cat.FieldCount())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	layout := stream.Layout{PointerSize: 8}
	order := binary.LittleEndian

	tests := []struct {
		name    string
		builder func() *testutil.Builder
	}{
		{
			name: "bad leading tag",
			builder: func() *testutil.Builder {
				return sampleBuilder(layout).MangleSchema(func(p []byte) []byte {
					copy(p, "XDNA")
					return p
				})
			},
		},
		{
			name: "bad section tag",
			builder: func() *testutil.Builder {
				return sampleBuilder(layout).MangleSchema(func(p []byte) []byte {
					i := indexOf(p, "TLEN")
					copy(p[i:], "TLEX")
					return p
				})
			},
		},
		{
			name: "three dimensional array",
			builder: func() *testutil.Builder {
				return testutil.NewBuilder(layout).Struct("Cube", testutil.F("float", "v[2][2][2]"))
			},
		},
		{
			name: "structure type index out of range",
			builder: func() *testutil.Builder {
				return testutil.NewBuilder(layout).
					Struct("A", testutil.F("int", "x")).
					MangleSchema(func(p []byte) []byte {
						i := indexOf(p, "STRC") + 8
						order.PutUint16(p[i:], 999)
						return p
					})
			},
		},
		{
			name: "field name index out of range",
			builder: func() *testutil.Builder {
				return testutil.NewBuilder(layout).
					Struct("A", testutil.F("int", "x")).
					MangleSchema(func(p []byte) []byte {
						i := indexOf(p, "STRC") + 14
						order.PutUint16(p[i:], 999)
						return p
					})
			},
		},
		{
			name: "truncated",
			builder: func() *testutil.Builder {
				return sampleBuilder(layout).MangleSchema(func(p []byte) []byte {
					return p[:len(p)-3]
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := stream.NewCursor(tt.builder().Schema(), layout)
			_, err := dna.Parse(c)
			require.ErrorIs(t, err, dna.ErrSchema)
		})
	}
}

func TestCatalog(t *testing.T) {
	cat := dna.NewCatalog()
	s := dna.NewStructure("Thing", 4)
	s.AddField(dna.Field{Name: "a", Type: "int", Size: 4, ArraySizes: [2]uint64{1, 1}})
	s.AddField(dna.Field{Name: "a", Type: "float", Size: 4, Offset: 4, ArraySizes: [2]uint64{1, 1}})
	cat.Add(s)

	f, err := s.Field("a")
	require.NoError(t, err)
	assert.Equal(t, "float", f.Type, "later duplicate wins the name index")

	_, err = cat.Lookup("Missing")
	require.ErrorIs(t, err, dna.ErrNoStructure)
	_, err = cat.At(5)
	require.ErrorIs(t, err, dna.ErrNoStructure)

	assert.Equal(t, -1, s.CacheSlot())
	assert.Equal(t, 0, s.AssignCacheSlot(cat.NextCacheSlot()))
	assert.Equal(t, 0, s.AssignCacheSlot(cat.NextCacheSlot()), "first slot is kept")
	assert.False(t, s.IsPrimitive())
}

func indexOf(p []byte, tag string) int {
	for i := 0; i+len(tag) <= len(p); i++ {
		if string(p[i:i+len(tag)]) == tag {
			return i
		}
	}
	panic(fmt.Sprintf("tag %q not found", tag))
}
