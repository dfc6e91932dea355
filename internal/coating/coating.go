// Package coating sets per-surface reflect/transmit fractions on an optical
// model from a reflectance table.
package coating

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/optic"
)

// Apply sets both coatings of every non-detector surface. Lens surfaces
// listed in refl reflect their table value; filter surfaces reflect the value
// keyed by band and the surface's filter suffix (e.g. "r_entrance"). All
// other surfaces are fully transmissive. Detector surfaces are left alone.
func Apply(m *optic.Model, refl model.ReflectanceMap, band model.Band) error {
	for _, i := range m.Surfaces() {
		it := m.Item(i)

		switch {
		case it.Role == optic.RoleRefractive && refl.Has(it.Name):
			r, _ := refl.Lookup(it.Name)
			m.SetCoatings(i, optic.SimpleCoating(r), optic.SimpleCoating(r))
		case it.Kind == optic.KindFilter:
			key := string(band) + it.FilterSuffix
			r, err := refl.Lookup(key)
			if err != nil {
				return eris.Wrapf(err, "coating: filter surface %q", it.Name)
			}
			m.SetCoatings(i, optic.SimpleCoating(r), optic.SimpleCoating(r))
		case it.Kind == optic.KindDetector:
			continue
		default:
			m.SetCoatings(i, optic.SimpleCoating(0), optic.SimpleCoating(0))
		}
	}
	return nil
}

// ApplyDetector sets the forward coating of detector surfaces to the
// reflectance of detectorType. Reverse coatings are not touched.
func ApplyDetector(m *optic.Model, refl model.ReflectanceMap, detectorType string) error {
	for _, i := range m.Surfaces() {
		it := m.Item(i)
		if it.Role != optic.RoleDetector || !strings.Contains(it.Name, "Detector") {
			continue
		}
		r, err := refl.Lookup(detectorType)
		if err != nil {
			return eris.Wrapf(err, "coating: detector type %q", detectorType)
		}
		m.SetForwardCoating(i, optic.SimpleCoating(r))
	}
	return nil
}
