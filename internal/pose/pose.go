// Package pose places instrument optical models in the dome's global frame
// from mount angles. Angles enter in degrees and are held as unit.Angle.
package pose

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/optic"
)

// Step is one rigid-body operation of a mount's pose sequence.
type Step struct {
	Name  string
	Apply func(*optic.Model) (*optic.Model, error)
}

// Mount builds a posed optical model.
type Mount interface {
	Kind() model.MountKind
	// ModelName is the base description loaded from the model source.
	ModelName() (string, error)
	// Steps returns the pose operations applied after loading, in order.
	Steps() []Step
}

// Build loads the mount's base model and applies its steps in order. No
// model is returned if any step fails.
func Build(m Mount, src optic.Source) (*optic.Model, error) {
	name, err := m.ModelName()
	if err != nil {
		return nil, err
	}
	om, err := src.Load(name)
	if err != nil {
		return nil, eris.Wrapf(err, "pose: load %s base model", m.Kind())
	}
	for _, s := range m.Steps() {
		om, err = s.Apply(om)
		if err != nil {
			return nil, eris.Wrapf(err, "pose: %s step %q", m.Kind(), s.Name)
		}
		zap.L().Debug("pose: applied step", zap.String("mount", string(m.Kind())), zap.String("step", s.Name))
	}
	return om, nil
}

// FromSpec builds the mount recorded in a run spec.
func FromSpec(spec model.MountSpec, band model.Band) (Mount, error) {
	switch spec.Kind {
	case model.MountTMA:
		return NewTMA(spec.Az, spec.Alt, band)
	case model.MountCBP:
		return NewCBP(spec.DomeAz, spec.Az, spec.Alt), nil
	default:
		return nil, eris.Wrapf(model.ErrInvalidValue, "pose: mount must be 'tma' or 'cbp', currently: %q", string(spec.Kind))
	}
}

// infallible adapts a pose operation that cannot fail.
func infallible(f func(*optic.Model) *optic.Model) func(*optic.Model) (*optic.Model, error) {
	return func(m *optic.Model) (*optic.Model, error) { return f(m), nil }
}
