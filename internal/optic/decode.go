package optic

import (
	"io"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// frameDoc is a frame relative to the parent item. Rot defaults to identity.
type frameDoc struct {
	Origin [3]float64     `yaml:"origin"`
	Rot    *[3][3]float64 `yaml:"rot"`
}

type itemDoc struct {
	Name    string         `yaml:"name"`
	Type    Role           `yaml:"type"`
	Frame   frameDoc       `yaml:"coord_sys"`
	Params  map[string]any `yaml:"params"`
	Forward *Coating       `yaml:"forward_coating"`
	Reverse *Coating       `yaml:"reverse_coating"`
	Items   []itemDoc      `yaml:"items"`
}

type pupilDoc struct {
	Size        float64 `yaml:"size"`
	Obscuration float64 `yaml:"obscuration"`
	StopSurface string  `yaml:"stop_surface"`
	BackDist    float64 `yaml:"back_dist"`
	InMedium    float64 `yaml:"in_medium"`
}

type modelDoc struct {
	itemDoc `yaml:",inline"`
	Pupil   pupilDoc `yaml:"pupil"`
}

// Decode reads a YAML optical model description. Item frames in the file are
// relative to the enclosing item; the returned model holds global frames.
func Decode(r io.Reader) (*Model, error) {
	var doc modelDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, eris.Wrap(err, "optic: decode model")
	}
	if doc.Type == "" {
		doc.Type = RoleCompound
	}

	var items []Item
	if err := flatten(&items, doc.itemDoc, -1, GlobalCoordSys()); err != nil {
		return nil, err
	}

	pupil := Pupil{
		Size:        doc.Pupil.Size,
		Obscuration: doc.Pupil.Obscuration,
		StopSurface: doc.Pupil.StopSurface,
		BackDist:    doc.Pupil.BackDist,
		InMedium:    doc.Pupil.InMedium,
	}
	m, err := NewModel(doc.Name, pupil, items)
	if err != nil {
		return nil, eris.Wrapf(err, "optic: build model %q", doc.Name)
	}
	return m, nil
}

func flatten(out *[]Item, d itemDoc, parent int, parentFrame CoordSys) error {
	local := CoordSys{
		Origin: r3.Vec{X: d.Frame.Origin[0], Y: d.Frame.Origin[1], Z: d.Frame.Origin[2]},
		Rot:    Identity(),
	}
	if d.Frame.Rot != nil {
		rot, err := NewRotation(*d.Frame.Rot)
		if err != nil {
			return eris.Wrapf(err, "optic: item %q", d.Name)
		}
		local.Rot = rot
	}
	frame := parentFrame.Compose(local)

	role := d.Type
	if role == "" && len(d.Items) > 0 {
		role = RoleCompound
	}

	idx := len(*out)
	*out = append(*out, Item{
		Name:    d.Name,
		Role:    role,
		Parent:  parent,
		Frame:   frame,
		Forward: d.Forward,
		Reverse: d.Reverse,
		Params:  d.Params,
	})
	for _, child := range d.Items {
		if err := flatten(out, child, idx, frame); err != nil {
			return err
		}
	}
	return nil
}
