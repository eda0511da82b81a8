package scene

import (
	"github.com/twinfer/blenddna/pkg/blend"
)

// Mesh is polygon geometry. Vertices, edges and faces each live in one block
// of contiguous instances.
type Mesh struct {
	blend.Meta
	ID        ID
	TotVert   int32
	TotEdge   int32
	TotFace   int32
	Verts     []*MVert
	Edges     []*MEdge
	Faces     []*MFace
	Materials []*Material
}

func decodeMesh(r blend.Record, m *Mesh) error {
	if err := r.Struct(blend.Fail, "id", &m.ID); err != nil {
		return err
	}
	for _, c := range []struct {
		name string
		dst  *int32
	}{
		{"totface", &m.TotFace},
		{"totedge", &m.TotEdge},
		{"totvert", &m.TotVert},
	} {
		if err := r.Int(blend.Fail, c.name, c.dst); err != nil {
			return err
		}
	}
	if err := blend.ReadPtrSlice(r, blend.Fail, "*mface", &m.Faces); err != nil {
		return err
	}
	if err := blend.ReadPtrSlice(r, blend.Fail, "*mvert", &m.Verts); err != nil {
		return err
	}
	if err := blend.ReadPtrSlice(r, blend.Warn, "*medge", &m.Edges); err != nil {
		return err
	}
	return blend.ReadPtrList(r, blend.Fail, "**mat", &m.Materials)
}

// MVert is one vertex. Normals are stored as shorts on disk and come back
// normalized to [-1, 1].
type MVert struct {
	blend.Meta
	Co     [3]float32
	No     [3]float32
	Flag   uint8
	Weight uint8
}

func decodeMVert(r blend.Record, v *MVert) error {
	if err := r.FloatArray(blend.Fail, "co", v.Co[:]); err != nil {
		return err
	}
	if err := r.FloatArray(blend.Fail, "no", v.No[:]); err != nil {
		return err
	}
	if err := r.Char(blend.Ignore, "flag", &v.Flag); err != nil {
		return err
	}
	return r.Char(blend.Ignore, "bweight", &v.Weight)
}

// MEdge is one edge between two vertex indices.
type MEdge struct {
	blend.Meta
	V1, V2 int32
	Crease uint8
	Weight uint8
	Flag   int16
}

func decodeMEdge(r blend.Record, e *MEdge) error {
	if err := r.Int(blend.Fail, "v1", &e.V1); err != nil {
		return err
	}
	if err := r.Int(blend.Fail, "v2", &e.V2); err != nil {
		return err
	}
	if err := r.Char(blend.Ignore, "crease", &e.Crease); err != nil {
		return err
	}
	if err := r.Char(blend.Ignore, "bweight", &e.Weight); err != nil {
		return err
	}
	return r.Short(blend.Ignore, "flag", &e.Flag)
}

// MFace is a triangle or quad. V4 is 0 for triangles.
type MFace struct {
	blend.Meta
	V1, V2, V3, V4 int32
	MatNr          int16
	Flag           uint8
}

func decodeMFace(r blend.Record, f *MFace) error {
	for _, c := range []struct {
		name string
		dst  *int32
	}{
		{"v1", &f.V1},
		{"v2", &f.V2},
		{"v3", &f.V3},
		{"v4", &f.V4},
	} {
		if err := r.Int(blend.Fail, c.name, c.dst); err != nil {
			return err
		}
	}
	if err := r.Short(blend.Fail, "mat_nr", &f.MatNr); err != nil {
		return err
	}
	return r.Char(blend.Ignore, "flag", &f.Flag)
}

// Material holds the basic shading colors of a surface.
type Material struct {
	blend.Meta
	ID                  ID
	R, G, B             float32
	SpecR, SpecG, SpecB float32
	AmbR, AmbG, AmbB    float32
	Emit                float32
	Alpha               float32
	Hardness            int16
	Mode                int32
	Group               *Group
}

func decodeMaterial(r blend.Record, m *Material) error {
	if err := r.Struct(blend.Fail, "id", &m.ID); err != nil {
		return err
	}
	for _, c := range []struct {
		name string
		dst  *float32
	}{
		{"r", &m.R}, {"g", &m.G}, {"b", &m.B},
		{"specr", &m.SpecR}, {"specg", &m.SpecG}, {"specb", &m.SpecB},
		{"ambr", &m.AmbR}, {"ambg", &m.AmbG}, {"ambb", &m.AmbB},
		{"emit", &m.Emit},
		{"alpha", &m.Alpha},
	} {
		if err := r.Float(blend.Warn, c.name, c.dst); err != nil {
			return err
		}
	}
	if err := r.Short(blend.Ignore, "har", &m.Hardness); err != nil {
		return err
	}
	if err := r.Int(blend.Ignore, "mode", &m.Mode); err != nil {
		return err
	}
	return blend.ReadPtr(r, blend.Ignore, "*group", &m.Group)
}
