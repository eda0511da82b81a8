// Package scene holds converters for the scene graph types of a file: the
// scene itself, its object bases, objects and the data they carry.
//
//	db, err := blend.Load(body, layout, blend.WithRegistry(scene.Registry()))
//	sc, err := scene.Extract(db)
//	for _, obj := range sc.Objects() { ... }
package scene

import (
	"fmt"

	"github.com/twinfer/blenddna/pkg/blend"
)

// Scene is the root of a file's scene graph.
type Scene struct {
	blend.Meta
	ID     ID
	Camera *Object
	World  *World
	BasAct *Base
	Base   ListBase
}

func decodeScene(r blend.Record, s *Scene) error {
	if err := r.Struct(blend.Fail, "id", &s.ID); err != nil {
		return err
	}
	if err := blend.ReadPtr(r, blend.Warn, "*camera", &s.Camera); err != nil {
		return err
	}
	if err := blend.ReadPtr(r, blend.Warn, "*world", &s.World); err != nil {
		return err
	}
	if err := blend.ReadPtr(r, blend.Warn, "*basact", &s.BasAct); err != nil {
		return err
	}
	return r.Struct(blend.Ignore, "base", &s.Base)
}

// Bases returns the bases of the scene in list order.
func (s *Scene) Bases() []*Base {
	first, _ := s.Base.First.(*Base)
	var out []*Base
	seen := make(map[*Base]bool)
	for b := first; b != nil && !seen[b]; b = b.Next {
		seen[b] = true
		out = append(out, b)
	}
	return out
}

// Objects returns the objects linked into the scene, skipping bases without
// one.
func (s *Scene) Objects() []*Object {
	var out []*Object
	for _, b := range s.Bases() {
		if b.Object != nil {
			out = append(out, b.Object)
		}
	}
	return out
}

// World holds environment settings.
type World struct {
	blend.Meta
	ID ID
}

func decodeWorld(r blend.Record, w *World) error {
	return r.Struct(blend.Fail, "id", &w.ID)
}

// CameraType is the projection of a camera.
type CameraType int32

const (
	CameraPerspective CameraType = 0
	CameraOrtho       CameraType = 1
)

func (t CameraType) String() string {
	switch t {
	case CameraPerspective:
		return "perspective"
	case CameraOrtho:
		return "ortho"
	}
	return fmt.Sprintf("CameraType(%d)", int32(t))
}

// Camera is the data of a camera object.
type Camera struct {
	blend.Meta
	ID        ID
	Type      CameraType
	Flag      int16
	Lens      float32
	SensorX   float32
	ClipStart float32
	ClipEnd   float32
}

func decodeCamera(r blend.Record, c *Camera) error {
	if err := r.Struct(blend.Fail, "id", &c.ID); err != nil {
		return err
	}
	var typ int32
	if err := r.Int(blend.Warn, "type", &typ); err != nil {
		return err
	}
	c.Type = CameraType(typ)
	if err := r.Short(blend.Warn, "flag", &c.Flag); err != nil {
		return err
	}
	if err := r.Float(blend.Warn, "lens", &c.Lens); err != nil {
		return err
	}
	if err := r.Float(blend.Warn, "sensor_x", &c.SensorX); err != nil {
		return err
	}
	if err := r.Float(blend.Ignore, "clipsta", &c.ClipStart); err != nil {
		return err
	}
	return r.Float(blend.Ignore, "clipend", &c.ClipEnd)
}

// LampType is the emitter shape of a lamp.
type LampType int32

const (
	LampLocal LampType = 0
	LampSun   LampType = 1
	LampSpot  LampType = 2
	LampHemi  LampType = 3
	LampArea  LampType = 4
)

func (t LampType) String() string {
	switch t {
	case LampLocal:
		return "local"
	case LampSun:
		return "sun"
	case LampSpot:
		return "spot"
	case LampHemi:
		return "hemi"
	case LampArea:
		return "area"
	}
	return fmt.Sprintf("LampType(%d)", int32(t))
}

// FalloffType is the distance attenuation of a lamp.
type FalloffType int32

const (
	FalloffConstant  FalloffType = 0
	FalloffInvLinear FalloffType = 1
	FalloffInvSquare FalloffType = 2
)

// Lamp is the data of a lamp object.
type Lamp struct {
	blend.Meta
	ID         ID
	Type       LampType
	Flags      int16
	ColorModel int16
	TotTex     int16
	R, G, B, K float32
	Energy     float32
	Dist       float32
	SpotSize   float32
	SpotBlend  float32
	Att1, Att2 float32
	Falloff    FalloffType
	SunBright  float32
	AreaSize   float32
	AreaSizeY  float32
	AreaSizeZ  float32
	AreaShape  int16
}

func decodeLamp(r blend.Record, l *Lamp) error {
	if err := r.Struct(blend.Fail, "id", &l.ID); err != nil {
		return err
	}
	var typ, falloff int32
	if err := r.Int(blend.Fail, "type", &typ); err != nil {
		return err
	}
	l.Type = LampType(typ)

	for _, c := range []struct {
		name string
		dst  *int16
	}{
		{"flags", &l.Flags},
		{"colormodel", &l.ColorModel},
		{"totex", &l.TotTex},
	} {
		if err := r.Short(blend.Ignore, c.name, c.dst); err != nil {
			return err
		}
	}
	for _, c := range []struct {
		name string
		dst  *float32
	}{
		{"r", &l.R}, {"g", &l.G}, {"b", &l.B}, {"k", &l.K},
	} {
		if err := r.Float(blend.Warn, c.name, c.dst); err != nil {
			return err
		}
	}
	for _, c := range []struct {
		name string
		dst  *float32
	}{
		{"energy", &l.Energy},
		{"dist", &l.Dist},
		{"spotsize", &l.SpotSize},
		{"spotblend", &l.SpotBlend},
		{"att1", &l.Att1},
		{"att2", &l.Att2},
		{"sun_brightness", &l.SunBright},
		{"area_size", &l.AreaSize},
		{"area_sizey", &l.AreaSizeY},
		{"area_sizez", &l.AreaSizeZ},
	} {
		if err := r.Float(blend.Ignore, c.name, c.dst); err != nil {
			return err
		}
	}
	if err := r.Int(blend.Ignore, "falloff_type", &falloff); err != nil {
		return err
	}
	l.Falloff = FalloffType(falloff)
	return r.Short(blend.Ignore, "area_shape", &l.AreaShape)
}

// Registry returns a registry with converters for every type in this package.
func Registry() *blend.Registry {
	reg := blend.NewRegistry()
	blend.Register(reg, "ID", func() *ID { return &ID{} }, decodeID)
	blend.Register(reg, "ListBase", func() *ListBase { return &ListBase{} }, decodeListBase)
	blend.Register(reg, "PackedFile", func() *PackedFile { return &PackedFile{} }, decodePackedFile)
	blend.Register(reg, "Scene", func() *Scene { return &Scene{} }, decodeScene)
	blend.Register(reg, "World", func() *World { return &World{} }, decodeWorld)
	blend.Register(reg, "Base", func() *Base { return &Base{} }, decodeBase)
	blend.Register(reg, "Object", func() *Object { return &Object{} }, decodeObject)
	blend.Register(reg, "Group", func() *Group { return &Group{} }, decodeGroup)
	blend.Register(reg, "GroupObject", func() *GroupObject { return &GroupObject{} }, decodeGroupObject)
	blend.Register(reg, "Camera", func() *Camera { return &Camera{} }, decodeCamera)
	blend.Register(reg, "Lamp", func() *Lamp { return &Lamp{} }, decodeLamp)
	blend.Register(reg, "Mesh", func() *Mesh { return &Mesh{} }, decodeMesh)
	blend.Register(reg, "MVert", func() *MVert { return &MVert{} }, decodeMVert)
	blend.Register(reg, "MEdge", func() *MEdge { return &MEdge{} }, decodeMEdge)
	blend.Register(reg, "MFace", func() *MFace { return &MFace{} }, decodeMFace)
	blend.Register(reg, "Material", func() *Material { return &Material{} }, decodeMaterial)
	return reg
}

// Extract resolves the first scene of the file. The database must have been
// loaded with a registry that includes this package's converters.
func Extract(db *blend.Database) (*Scene, error) {
	sc, err := blend.ResolveFirst[*Scene](db, blend.Fail, "Scene")
	if err != nil {
		return nil, fmt.Errorf("extracting scene: %w", err)
	}
	return sc, nil
}
