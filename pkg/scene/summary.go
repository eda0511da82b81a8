package scene

// Summary is a flat, serializable view of a decoded scene.
type Summary struct {
	Name    string          `json:"name"`
	Camera  string          `json:"camera,omitempty"`
	World   string          `json:"world,omitempty"`
	Objects []ObjectSummary `json:"objects"`
}

// ObjectSummary describes one object of a Summary. Data names the schema
// type of the object data, empty when the object carries none.
type ObjectSummary struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Data   string `json:"data,omitempty"`
	Parent string `json:"parent,omitempty"`
}

// Summarize flattens the scene into names.
func (s *Scene) Summarize() Summary {
	sum := Summary{Name: s.ID.DisplayName(), Objects: []ObjectSummary{}}
	if s.Camera != nil {
		sum.Camera = s.Camera.ID.DisplayName()
	}
	if s.World != nil {
		sum.World = s.World.ID.DisplayName()
	}
	for _, obj := range s.Objects() {
		o := ObjectSummary{Name: obj.ID.DisplayName(), Type: obj.Type.String()}
		if obj.Data != nil {
			o.Data = obj.Data.DNAType()
		}
		if obj.Parent != nil {
			o.Parent = obj.Parent.ID.DisplayName()
		}
		sum.Objects = append(sum.Objects, o)
	}
	return sum
}
