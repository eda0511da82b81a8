package scene_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/blenddna/pkg/blend"
	"github.com/twinfer/blenddna/pkg/scene"
	"github.com/twinfer/blenddna/pkg/stream"
	"github.com/twinfer/blenddna/testutil"
)

var layouts = []stream.Layout{
	{PointerSize: 4},
	{PointerSize: 8},
	{PointerSize: 4, BigEndian: true},
	{PointerSize: 8, BigEndian: true},
}

const (
	addrScene   = 0x1000
	addrWorld   = 0x2000
	addrBase1   = 0x3000
	addrBase2   = 0x3100
	addrCamObj  = 0x4000
	addrMeshObj = 0x4100
	addrCamera  = 0x5000
	addrMesh    = 0x6000
	addrVerts   = 0x7000
	addrFaces   = 0x7100
	addrMatList = 0x7200
	addrMat     = 0x7300
)

func sceneSchema(layout stream.Layout) *testutil.Builder {
	F := testutil.F
	return testutil.NewBuilder(layout).
		Type("void", 0).
		Struct("ID", F("char", "name[24]"), F("short", "flag")).
		Struct("ListBase", F("void", "*first"), F("void", "*last")).
		Struct("Scene", F("ID", "id"), F("Object", "*camera"), F("World", "*world"), F("Base", "*basact"), F("ListBase", "base")).
		Struct("World", F("ID", "id")).
		Struct("Base", F("Base", "*next"), F("Base", "*prev"), F("Object", "*object")).
		Struct("Object",
			F("ID", "id"), F("short", "type"),
			F("float", "obmat[4][4]"), F("float", "parentinv[4][4]"),
			F("char", "parsubstr[32]"),
			F("Object", "*parent"), F("Object", "*track"),
			F("void", "*data"), F("ListBase", "modifiers")).
		Struct("Camera",
			F("ID", "id"), F("char", "type"), F("short", "flag"),
			F("float", "lens"), F("float", "sensor_x"), F("float", "clipsta"), F("float", "clipend")).
		Struct("Mesh",
			F("ID", "id"), F("int", "totvert"), F("int", "totedge"), F("int", "totface"),
			F("MVert", "*mvert"), F("MEdge", "*medge"), F("MFace", "*mface"), F("Material", "**mat")).
		Struct("MVert", F("float", "co[3]"), F("short", "no[3]"), F("char", "flag"), F("char", "bweight")).
		Struct("MEdge", F("int", "v1"), F("int", "v2")).
		Struct("MFace", F("int", "v1"), F("int", "v2"), F("int", "v3"), F("int", "v4"), F("short", "mat_nr"), F("char", "flag")).
		Struct("Material", F("ID", "id"), F("float", "r"), F("float", "g"), F("float", "b"), F("float", "alpha"))
}

func id(e *testutil.Encoder, name string) *testutil.Encoder {
	return e.Chars(name, 24).Short(0)
}

func object(b *testutil.Builder, name string, typ int16, tx float32, parent, data uint64) []byte {
	e := id(b.Encoder(), name).Short(typ)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			v := float32(0)
			if i == j {
				v = 1
			}
			if i == 3 && j == 0 {
				v = tx
			}
			e.Float(v)
		}
	}
	for i := 0; i < 16; i++ {
		e.Float(0)
	}
	return e.Chars("", 32).Ptr(parent).Ptr(0).Ptr(data).Ptr(0).Ptr(0).Bytes()
}

func buildScene(layout stream.Layout) *testutil.Builder {
	b := sceneSchema(layout)

	b.Block("SC", addrScene, "Scene", 1, id(b.Encoder(), "SCScene").
		Ptr(addrCamObj).Ptr(addrWorld).Ptr(addrBase1).
		Ptr(addrBase1).Ptr(addrBase2).Bytes())
	b.Block("WO", addrWorld, "World", 1, id(b.Encoder(), "WOWorld").Bytes())

	b.Block("DATA", addrBase1, "Base", 1, b.Encoder().Ptr(addrBase2).Ptr(0).Ptr(addrCamObj).Bytes())
	b.Block("DATA", addrBase2, "Base", 1, b.Encoder().Ptr(0).Ptr(addrBase1).Ptr(addrMeshObj).Bytes())

	b.Block("OB", addrCamObj, "Object", 1, object(b, "OBCamera", 11, 0, 0, addrCamera))
	b.Block("OB", addrMeshObj, "Object", 1, object(b, "OBCube", 1, 1.5, addrCamObj, addrMesh))

	b.Block("CA", addrCamera, "Camera", 1, id(b.Encoder(), "CACamera").
		Char(1).Short(4).Float(50).Float(36).Float(0.1).Float(100).Bytes())

	b.Block("ME", addrMesh, "Mesh", 1, id(b.Encoder(), "MECube").
		Int(3).Int(0).Int(1).
		Ptr(addrVerts).Ptr(0).Ptr(addrFaces).Ptr(addrMatList).Bytes())
	verts := b.Encoder()
	for i := 0; i < 3; i++ {
		verts.Float(float32(i)).Float(0).Float(0).Short(0).Short(0).Short(32767).Char(0).Char(0)
	}
	b.Block("DATA", addrVerts, "MVert", 3, verts.Bytes())
	b.Block("DATA", addrFaces, "MFace", 1, b.Encoder().Int(0).Int(1).Int(2).Int(0).Short(0).Char(0).Bytes())
	b.RawBlock("DATA", addrMatList, 0, 1, b.Encoder().Ptr(addrMat).Bytes())
	b.Block("MA", addrMat, "Material", 1, id(b.Encoder(), "MARed").
		Float(1).Float(0).Float(0).Float(1).Bytes())
	return b
}

func load(t *testing.T, b *testutil.Builder, logs *bytes.Buffer) *blend.Database {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	db, err := blend.Load(b.Body(), b.Layout(), blend.WithRegistry(scene.Registry()), blend.WithLogger(logger))
	require.NoError(t, err)
	return db
}

func TestExtract(t *testing.T) {
	for _, layout := range layouts {
		t.Run(layout.String(), func(t *testing.T) {
			var logs bytes.Buffer
			db := load(t, buildScene(layout), &logs)

			sc, err := scene.Extract(db)
			require.NoError(t, err)
			assert.Equal(t, "Scene", sc.ID.DisplayName())
			assert.Equal(t, "Scene", sc.DNAType())
			require.NotNil(t, sc.World)
			assert.Equal(t, "WOWorld", sc.World.ID.Name)

			objs := sc.Objects()
			require.Len(t, objs, 2)
			cam, cube := objs[0], objs[1]
			assert.Same(t, sc.Camera, cam)
			assert.Same(t, sc.BasAct, sc.Bases()[0])
			assert.Same(t, sc.Base.Last, sc.Bases()[1])
			assert.Nil(t, sc.Bases()[1].Prev, "back links are not resolved")

			assert.Equal(t, scene.ObjectCamera, cam.Type)
			assert.Equal(t, "camera", cam.Type.String())
			camera, ok := cam.Data.(*scene.Camera)
			require.True(t, ok, "camera data is %T", cam.Data)
			assert.Equal(t, scene.CameraOrtho, camera.Type)
			assert.Equal(t, int16(4), camera.Flag)
			assert.Equal(t, float32(50), camera.Lens)
			assert.Equal(t, float32(100), camera.ClipEnd)

			assert.Equal(t, scene.ObjectMesh, cube.Type)
			assert.Same(t, cam, cube.Parent)
			assert.Nil(t, cube.Track)
			assert.Equal(t, float32(1.5), cube.Matrix[3][0])
			assert.Equal(t, float32(1), cube.Matrix[2][2])

			mesh, ok := cube.Data.(*scene.Mesh)
			require.True(t, ok, "cube data is %T", cube.Data)
			assert.Equal(t, int32(3), mesh.TotVert)
			require.Len(t, mesh.Verts, 3)
			assert.Equal(t, float32(2), mesh.Verts[2].Co[0])
			assert.Equal(t, [3]float32{0, 0, 1}, mesh.Verts[1].No)
			assert.Nil(t, mesh.Edges)
			require.Len(t, mesh.Faces, 1)
			assert.Equal(t, int32(2), mesh.Faces[0].V3)
			require.Len(t, mesh.Materials, 1)
			assert.Equal(t, "Red", mesh.Materials[0].ID.DisplayName())
			assert.Equal(t, float32(1), mesh.Materials[0].R)
			assert.Equal(t, float32(1), mesh.Materials[0].Alpha)

			assert.Contains(t, logs.String(), "Missing field, using default")
			assert.Contains(t, logs.String(), "*proxy_from")
		})
	}
}

func TestExtract_SharedObjects(t *testing.T) {
	var logs bytes.Buffer
	db := load(t, buildScene(stream.Layout{PointerSize: 8}), &logs)

	sc, err := scene.Extract(db)
	require.NoError(t, err)

	again, err := blend.ResolveRoot[*scene.Object](db, blend.Fail, addrCamObj)
	require.NoError(t, err)
	assert.Same(t, sc.Camera, again, "objects are shared through the session cache")

	stats := db.Stats()
	assert.Positive(t, stats.CacheHits)
	assert.Equal(t, stats.CachedObjects, db.Cache().Len())
}

func TestExtract_NoScene(t *testing.T) {
	b := sceneSchema(stream.Layout{PointerSize: 4})
	b.Block("WO", addrWorld, "World", 1, id(b.Encoder(), "WOWorld").Bytes())

	var logs bytes.Buffer
	db := load(t, b, &logs)
	_, err := scene.Extract(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no block holds a Scene")
}

// groupChain builds a group whose member list has n nodes and starts at
// node entry. Even nodes reference one shared object.
func groupChain(layout stream.Layout, n, entry int) *testutil.Builder {
	F := testutil.F
	b := testutil.NewBuilder(layout).
		Struct("ID", F("char", "name[24]"), F("short", "flag")).
		Struct("Object", F("ID", "id"), F("int", "type")).
		Struct("Group", F("ID", "id"), F("int", "layer"), F("GroupObject", "*gobject")).
		Struct("GroupObject", F("GroupObject", "*next"), F("GroupObject", "*prev"), F("Object", "*ob"))

	const base = 0x10000
	stride := uint64(3 * layout.PointerSize)
	addr := func(i int) uint64 { return base + uint64(i)*stride*2 }

	b.Block("GR", 0x100, "Group", 1, id(b.Encoder(), "GRGroup").Int(1).Ptr(addr(entry)).Bytes())
	b.Block("OB", 0x200, "Object", 1, id(b.Encoder(), "OBEmpty").Int(0).Bytes())
	for i := 0; i < n; i++ {
		next, prev := uint64(0), uint64(0)
		if i+1 < n {
			next = addr(i + 1)
		}
		if i > 0 {
			prev = addr(i - 1)
		}
		ob := uint64(0)
		if i%2 == 0 {
			ob = 0x200
		}
		b.Block("DATA", addr(i), "GroupObject", 1, b.Encoder().Ptr(next).Ptr(prev).Ptr(ob).Bytes())
	}
	return b
}

func groupRegistry() *blend.Registry {
	reg := scene.Registry()
	blend.Register(reg, "Object", func() *scene.Object { return &scene.Object{} }, func(r blend.Record, o *scene.Object) error {
		if err := r.Struct(blend.Fail, "id", &o.ID); err != nil {
			return err
		}
		var typ int32
		err := r.Int(blend.Fail, "type", &typ)
		o.Type = scene.ObjectType(typ)
		return err
	})
	return reg
}

func TestGroupChain(t *testing.T) {
	const n = 5000
	for _, layout := range layouts {
		t.Run(layout.String(), func(t *testing.T) {
			db, err := blend.Load(groupChain(layout, n, 0).Body(), layout, blend.WithRegistry(groupRegistry()))
			require.NoError(t, err)

			g, err := blend.ResolveRoot[*scene.Group](db, blend.Fail, 0x100)
			require.NoError(t, err)
			assert.Equal(t, int32(1), g.Layer)

			count := 0
			var prev *scene.GroupObject
			for m := g.Objects; m != nil; m = m.Next {
				assert.Same(t, prev, m.Prev)
				prev = m
				count++
			}
			assert.Equal(t, n, count)

			members := g.Members()
			require.Len(t, members, n/2)
			assert.Same(t, members[0], members[1])
			assert.Equal(t, "Empty", members[0].ID.DisplayName())
		})
	}

	entries := []struct {
		name  string
		entry int
		nodes int
	}{
		{"entered at the tail", n - 1, 1},
		{"entered in the middle", n / 2, n - n/2},
	}
	for _, tt := range entries {
		t.Run(tt.name, func(t *testing.T) {
			layout := stream.Layout{PointerSize: 8}
			db, err := blend.Load(groupChain(layout, n, tt.entry).Body(), layout, blend.WithRegistry(groupRegistry()))
			require.NoError(t, err)

			g, err := blend.ResolveRoot[*scene.Group](db, blend.Fail, 0x100)
			require.NoError(t, err)
			require.NotNil(t, g.Objects)
			assert.Nil(t, g.Objects.Prev, "back links are not followed")

			count := 0
			for m := g.Objects; m != nil; m = m.Next {
				count++
			}
			assert.Equal(t, tt.nodes, count)
			assert.Less(t, db.Cache().Len(), tt.nodes+3, "nodes before the entry are never decoded")
		})
	}
}

func TestLamp(t *testing.T) {
	F := testutil.F
	schema := func(fields ...testutil.Decl) *testutil.Builder {
		return testutil.NewBuilder(stream.Layout{PointerSize: 8}).
			Struct("ID", F("char", "name[24]"), F("short", "flag")).
			Struct("Lamp", fields...)
	}

	t.Run("decode", func(t *testing.T) {
		b := schema(F("ID", "id"), F("short", "type"), F("float", "r"), F("float", "g"), F("float", "b"), F("float", "energy"), F("short", "falloff_type"))
		b.Block("LA", 0x100, "Lamp", 1, id(b.Encoder(), "LASun").Short(1).Float(1).Float(0.5).Float(0.25).Float(2).Short(2).Bytes())

		var logs bytes.Buffer
		db := load(t, b, &logs)
		l, err := blend.ResolveRoot[*scene.Lamp](db, blend.Fail, 0x100)
		require.NoError(t, err)
		assert.Equal(t, scene.LampSun, l.Type)
		assert.Equal(t, "sun", l.Type.String())
		assert.Equal(t, float32(0.5), l.G)
		assert.Equal(t, float32(2), l.Energy)
		assert.Equal(t, scene.FalloffInvSquare, l.Falloff)
		assert.Zero(t, l.K)
		assert.Contains(t, logs.String(), "Lamp.k", "missing k is a warning")
		assert.NotContains(t, logs.String(), "Lamp.dist", "missing dist is ignored")
	})

	t.Run("missing type fails", func(t *testing.T) {
		b := schema(F("ID", "id"), F("float", "r"))
		b.Block("LA", 0x100, "Lamp", 1, id(b.Encoder(), "LASun").Float(1).Bytes())

		var logs bytes.Buffer
		db := load(t, b, &logs)
		_, err := blend.ResolveRoot[*scene.Lamp](db, blend.Fail, 0x100)
		require.ErrorIs(t, err, blend.ErrFieldMissing)
	})
}

func TestPackedFile(t *testing.T) {
	F := testutil.F
	for _, layout := range layouts {
		t.Run(layout.String(), func(t *testing.T) {
			b := testutil.NewBuilder(layout).
				Type("void", 0).
				Struct("PackedFile", F("int", "size"), F("int", "seek"), F("void", "*data"))
			b.Block("DATA", 0x100, "PackedFile", 1, b.Encoder().Int(5).Int(0).Ptr(0x202).Bytes())
			b.RawBlock("DATA", 0x200, 0, 1, []byte("..hello.."))

			var logs bytes.Buffer
			db := load(t, b, &logs)
			p, err := blend.ResolveRoot[*scene.PackedFile](db, blend.Fail, 0x100)
			require.NoError(t, err)
			assert.Equal(t, int32(5), p.Size)
			assert.NotZero(t, p.Data)

			data, err := p.Contents(db)
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), data)
		})
	}
}
