package optic

import (
	"maps"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sells-group/rayven/internal/model"
)

// Role is what an item does in the optical train.
type Role string

const (
	RoleRefractive Role = "refractive"
	RoleDetector   Role = "detector"
	RoleMirror     Role = "mirror"
	RoleCompound   Role = "compound"
	RoleOther      Role = "other"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleRefractive, RoleDetector, RoleMirror, RoleCompound, RoleOther:
		return true
	default:
		return false
	}
}

// Kind is the coating classification of an item, fixed when the model is built.
type Kind int

const (
	KindOther Kind = iota
	KindLens
	KindFilter
	KindDetector
)

func (k Kind) String() string {
	switch k {
	case KindLens:
		return "lens"
	case KindFilter:
		return "filter"
	case KindDetector:
		return "detector"
	default:
		return "other"
	}
}

const filterMarker = "Filter"

// Coating splits incident flux into a reflected and a transmitted fraction.
type Coating struct {
	Reflect  float64 `json:"reflect"`
	Transmit float64 `json:"transmit"`
}

// SimpleCoating returns a coating reflecting r and transmitting 1-r.
func SimpleCoating(r float64) *Coating {
	return &Coating{Reflect: r, Transmit: 1 - r}
}

// Item is one node of the optical model. Frame is global.
type Item struct {
	Name         string
	Role         Role
	Kind         Kind
	FilterSuffix string
	Parent       int
	Frame        CoordSys
	Forward      *Coating
	Reverse      *Coating
	Params       map[string]any
}

// IsSurface reports whether the item interacts with rays.
func (it *Item) IsSurface() bool { return it.Role != RoleCompound }

// Pupil describes the entrance pupil used to build ray bundles.
type Pupil struct {
	Size        float64 `json:"size"`
	Obscuration float64 `json:"obscuration"`
	StopSurface string  `json:"stop_surface"`
	BackDist    float64 `json:"back_dist"`
	InMedium    float64 `json:"in_medium"`
}

// Model is an optical model. Index 0 is the root item. Pose methods return
// modified copies; coating setters mutate in place and are meant for the
// per-star clone.
type Model struct {
	Name  string
	Pupil Pupil
	items []Item
	index map[string]int
}

// Classify derives the coating kind of a surface from its role and name.
// The filter suffix is the text that follows "Filter" in the name.
func Classify(name string, role Role) (Kind, string) {
	switch {
	case strings.Contains(name, "Detector"):
		return KindDetector, ""
	case role == RoleRefractive && strings.Contains(name, filterMarker):
		i := strings.Index(name, filterMarker)
		return KindFilter, name[i+len(filterMarker):]
	case role == RoleRefractive:
		return KindLens, ""
	default:
		return KindOther, ""
	}
}

// NewModel builds a model from items listed parent-first. Parent of the
// first item must be -1; every other parent must precede its child.
func NewModel(name string, pupil Pupil, items []Item) (*Model, error) {
	if len(items) == 0 {
		return nil, eris.Wrapf(model.ErrInvalidValue, "optic: model %q has no items", name)
	}
	m := &Model{
		Name:  name,
		Pupil: pupil,
		items: make([]Item, len(items)),
		index: make(map[string]int, len(items)),
	}
	for i, it := range items {
		if it.Name == "" {
			return nil, eris.Wrapf(model.ErrInvalidValue, "optic: item %d has no name", i)
		}
		if _, dup := m.index[it.Name]; dup {
			return nil, eris.Wrapf(model.ErrInvalidValue, "optic: duplicate item name %q", it.Name)
		}
		if i == 0 && it.Parent != -1 {
			return nil, eris.Wrapf(model.ErrInvalidValue, "optic: root item %q must not have a parent", it.Name)
		}
		if i > 0 && (it.Parent < 0 || it.Parent >= i) {
			return nil, eris.Wrapf(model.ErrInvalidValue, "optic: item %q has invalid parent %d", it.Name, it.Parent)
		}
		if it.Role == "" {
			it.Role = RoleOther
		}
		if !it.Role.Valid() {
			return nil, eris.Wrapf(model.ErrInvalidValue,
				"optic: item %q has unknown type %q (want refractive, detector, mirror, compound or other)", it.Name, string(it.Role))
		}
		if it.Frame.Rot.m == nil {
			it.Frame.Rot = Identity()
		}
		it.Kind, it.FilterSuffix = Classify(it.Name, it.Role)
		if it.Forward == nil {
			it.Forward = SimpleCoating(0)
		}
		if it.Reverse == nil {
			it.Reverse = SimpleCoating(0)
		}
		m.items[i] = it
		m.index[it.Name] = i
	}
	if pupil.StopSurface != "" {
		if _, ok := m.index[pupil.StopSurface]; !ok {
			return nil, eris.Wrapf(model.ErrInvalidValue, "optic: stop surface %q not in model %q", pupil.StopSurface, name)
		}
	}
	if m.Pupil.InMedium == 0 {
		m.Pupil.InMedium = 1
	}
	return m, nil
}

// Clone returns a deep copy.
func (m *Model) Clone() *Model {
	out := &Model{
		Name:  m.Name,
		Pupil: m.Pupil,
		items: make([]Item, len(m.items)),
		index: maps.Clone(m.index),
	}
	for i, it := range m.items {
		c := it
		if it.Forward != nil {
			f := *it.Forward
			c.Forward = &f
		}
		if it.Reverse != nil {
			r := *it.Reverse
			c.Reverse = &r
		}
		c.Params = maps.Clone(it.Params)
		out.items[i] = c
	}
	return out
}

// Len returns the number of items.
func (m *Model) Len() int { return len(m.items) }

// Item returns a copy of item i.
func (m *Model) Item(i int) Item { return m.items[i] }

// Root returns the root item.
func (m *Model) Root() Item { return m.items[0] }

// Find returns the index of the named item.
func (m *Model) Find(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

// Lookup returns a copy of the named item or an error naming it.
func (m *Model) Lookup(name string) (Item, error) {
	i, ok := m.index[name]
	if !ok {
		return Item{}, eris.Wrapf(model.ErrInvalidValue, "optic: no item %q in model %q", name, m.Name)
	}
	return m.items[i], nil
}

// Surfaces returns the indexes of ray-interacting items in model order.
func (m *Model) Surfaces() []int {
	var out []int
	for i := range m.items {
		if m.items[i].IsSurface() {
			out = append(out, i)
		}
	}
	return out
}

// Subtree returns i followed by all of its descendants in model order.
func (m *Model) Subtree(i int) []int {
	in := map[int]bool{i: true}
	out := []int{i}
	for j := i + 1; j < len(m.items); j++ {
		if in[m.items[j].Parent] {
			in[j] = true
			out = append(out, j)
		}
	}
	return out
}

// SetCoatings replaces both coatings of item i.
func (m *Model) SetCoatings(i int, forward, reverse *Coating) {
	m.items[i].Forward = forward
	m.items[i].Reverse = reverse
}

// SetForwardCoating replaces the forward coating of item i.
func (m *Model) SetForwardCoating(i int, c *Coating) {
	m.items[i].Forward = c
}

// WithGlobalShift translates every item by d.
func (m *Model) WithGlobalShift(d r3.Vec) *Model {
	out := m.Clone()
	for i := range out.items {
		out.items[i].Frame = out.items[i].Frame.Shifted(d)
	}
	return out
}

// WithGlobalRotation rotates every item by rot about the global point center.
func (m *Model) WithGlobalRotation(rot Rotation, center r3.Vec) *Model {
	out := m.Clone()
	out.rotate(out.allIndexes(), rot, center)
	return out
}

// WithLocalRotation rotates every item by rot expressed in frame, about
// center given in frame coordinates. A nil frame means the root item's frame.
func (m *Model) WithLocalRotation(rot Rotation, center r3.Vec, frame *CoordSys) *Model {
	f := m.items[0].Frame
	if frame != nil {
		f = *frame
	}
	out := m.Clone()
	out.rotate(out.allIndexes(), f.Rot.Mul(rot).Mul(f.Rot.T()), f.ToGlobal(center))
	return out
}

// WithLocallyRotatedOptic rotates the named item and its descendants by rot
// expressed in the item's own frame, about the item's origin.
func (m *Model) WithLocallyRotatedOptic(name string, rot Rotation) (*Model, error) {
	i, ok := m.index[name]
	if !ok {
		return nil, eris.Wrapf(model.ErrInvalidValue, "optic: no item %q in model %q", name, m.Name)
	}
	f := m.items[i].Frame
	out := m.Clone()
	out.rotate(out.Subtree(i), f.Rot.Mul(rot).Mul(f.Rot.T()), f.Origin)
	return out, nil
}

func (m *Model) rotate(idx []int, rot Rotation, center r3.Vec) {
	for _, i := range idx {
		m.items[i].Frame = m.items[i].Frame.Rotated(rot, center)
	}
}

func (m *Model) allIndexes() []int {
	out := make([]int, len(m.items))
	for i := range out {
		out[i] = i
	}
	return out
}
