package scene

import (
	"fmt"

	"github.com/twinfer/blenddna/pkg/blend"
)

// ObjectType is the kind of data an Object carries.
type ObjectType int32

const (
	ObjectEmpty   ObjectType = 0
	ObjectMesh    ObjectType = 1
	ObjectCurve   ObjectType = 2
	ObjectSurface ObjectType = 3
	ObjectFont    ObjectType = 4
	ObjectMBall   ObjectType = 5
	ObjectLamp    ObjectType = 10
	ObjectCamera  ObjectType = 11
	ObjectWave    ObjectType = 21
	ObjectLattice ObjectType = 22
)

var objectTypeNames = map[ObjectType]string{
	ObjectEmpty:   "empty",
	ObjectMesh:    "mesh",
	ObjectCurve:   "curve",
	ObjectSurface: "surface",
	ObjectFont:    "font",
	ObjectMBall:   "mball",
	ObjectLamp:    "lamp",
	ObjectCamera:  "camera",
	ObjectWave:    "wave",
	ObjectLattice: "lattice",
}

func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ObjectType(%d)", int32(t))
}

// Object places data in the scene. Data is runtime-typed: a *Mesh, *Camera,
// *Lamp, or an *blend.Unknown for types without a converter.
type Object struct {
	blend.Meta
	ID        ID
	Type      ObjectType
	Matrix    [4][4]float32
	ParentInv [4][4]float32
	ParSubstr string

	Parent     *Object
	Track      *Object
	Proxy      *Object
	ProxyFrom  *Object
	ProxyGroup *Object
	DupGroup   *Group
	Data       blend.Object
	Modifiers  ListBase
}

func rows(m *[4][4]float32) [][]float32 {
	return [][]float32{m[0][:], m[1][:], m[2][:], m[3][:]}
}

func decodeObject(r blend.Record, o *Object) error {
	if err := r.Struct(blend.Fail, "id", &o.ID); err != nil {
		return err
	}
	var typ int32
	if err := r.Int(blend.Fail, "type", &typ); err != nil {
		return err
	}
	o.Type = ObjectType(typ)
	if err := r.FloatMatrix(blend.Warn, "obmat", rows(&o.Matrix)); err != nil {
		return err
	}
	if err := r.FloatMatrix(blend.Warn, "parentinv", rows(&o.ParentInv)); err != nil {
		return err
	}
	if err := r.String(blend.Warn, "parsubstr", &o.ParSubstr); err != nil {
		return err
	}

	for _, p := range []struct {
		name string
		dst  **Object
	}{
		{"*parent", &o.Parent},
		{"*track", &o.Track},
		{"*proxy", &o.Proxy},
		{"*proxy_from", &o.ProxyFrom},
		{"*proxy_group", &o.ProxyGroup},
	} {
		if err := blend.ReadPtr(r, blend.Warn, p.name, p.dst); err != nil {
			return err
		}
	}
	if err := blend.ReadPtr(r, blend.Warn, "*dup_group", &o.DupGroup); err != nil {
		return err
	}
	if err := blend.ReadAnyPtr(r, blend.Fail, "*data", &o.Data); err != nil {
		return err
	}
	return r.Struct(blend.Ignore, "modifiers", &o.Modifiers)
}

// Base links an object into a scene. Bases form a forward chain through Next;
// back links are never resolved, so Prev is always nil.
type Base struct {
	blend.Meta
	Prev   *Base
	Next   *Base
	Object *Object
}

func decodeBase(r blend.Record, b *Base) error {
	return blend.DecodeChain(r, blend.Warn, b, "*next",
		func(b *Base) **Base { return &b.Next },
		func(r blend.Record, b *Base) error {
			b.Prev = nil
			return blend.ReadPtr(r, blend.Warn, "*object", &b.Object)
		})
}

// Group is a named collection of objects.
type Group struct {
	blend.Meta
	ID      ID
	Layer   int32
	Objects *GroupObject
}

func decodeGroup(r blend.Record, g *Group) error {
	if err := r.Struct(blend.Fail, "id", &g.ID); err != nil {
		return err
	}
	if err := r.Int(blend.Ignore, "layer", &g.Layer); err != nil {
		return err
	}
	return blend.ReadPtr(r, blend.Ignore, "*gobject", &g.Objects)
}

// GroupObject is one member of a Group.
type GroupObject struct {
	blend.Meta
	Prev   *GroupObject
	Next   *GroupObject
	Object *Object
}

// Group members are decoded as a chain so long groups do not recurse. Prev
// links come from the walk itself; the stored back pointer is never followed,
// so the entry node has no Prev.
func decodeGroupObject(r blend.Record, g *GroupObject) error {
	var prev *GroupObject
	return blend.DecodeChain(r, blend.Fail, g, "*next",
		func(g *GroupObject) **GroupObject { return &g.Next },
		func(r blend.Record, g *GroupObject) error {
			g.Prev, prev = prev, g
			return blend.ReadPtr(r, blend.Ignore, "*ob", &g.Object)
		})
}

// Members returns the objects of g in list order.
func (g *Group) Members() []*Object {
	var out []*Object
	seen := make(map[*GroupObject]bool)
	for m := g.Objects; m != nil && !seen[m]; m = m.Next {
		seen[m] = true
		if m.Object != nil {
			out = append(out, m.Object)
		}
	}
	return out
}
