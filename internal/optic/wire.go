package optic

import (
	"encoding/json"
)

type wireFrame struct {
	Origin [3]float64    `json:"origin"`
	Rot    [3][3]float64 `json:"rot"`
}

type wireItem struct {
	Name    string         `json:"name"`
	Role    Role           `json:"role"`
	Parent  int            `json:"parent"`
	Frame   wireFrame      `json:"coord_sys"`
	Forward *Coating       `json:"forward_coating,omitempty"`
	Reverse *Coating       `json:"reverse_coating,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

type wireModel struct {
	Name  string     `json:"name"`
	Pupil Pupil      `json:"pupil"`
	Items []wireItem `json:"items"`
}

// MarshalJSON encodes the posed, coated model for the ray-tracing engine.
// Frames are global.
func (m *Model) MarshalJSON() ([]byte, error) {
	w := wireModel{Name: m.Name, Pupil: m.Pupil, Items: make([]wireItem, len(m.items))}
	for i, it := range m.items {
		w.Items[i] = wireItem{
			Name:   it.Name,
			Role:   it.Role,
			Parent: it.Parent,
			Frame: wireFrame{
				Origin: [3]float64{it.Frame.Origin.X, it.Frame.Origin.Y, it.Frame.Origin.Z},
				Rot:    it.Frame.Rot.Rows(),
			},
			Forward: it.Forward,
			Reverse: it.Reverse,
			Params:  it.Params,
		}
	}
	return json.Marshal(w)
}
