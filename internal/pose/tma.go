package pose

import (
	"github.com/rotisserie/eris"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/optic"
)

// TMAGeometry holds the as-built telescope mount dimensions (metres).
type TMAGeometry struct {
	M1VertexHeight         float64
	ElevationBearingHeight float64
	RotatorAngle           unit.Angle
	AzimuthOffset          unit.Angle
	CameraName             string
	CalibrationModel       string
}

// DefaultTMAGeometry returns the Rubin telescope mount geometry.
func DefaultTMAGeometry() TMAGeometry {
	return TMAGeometry{
		M1VertexHeight:         3.53,
		ElevationBearingHeight: 5.425,
		RotatorAngle:           unit.AngleFromDeg(270),
		CameraName:             "LSSTCamera",
		CalibrationModel:       "CBP/LSST.yaml",
	}
}

// TMA is the telescope mount pointed at (Az, Alt) with an optional filter.
type TMA struct {
	Az       unit.Angle
	Alt      unit.Angle
	Band     model.Band
	Geometry TMAGeometry
}

// NewTMA validates the band and converts the angles from degrees.
func NewTMA(azDeg, altDeg float64, band model.Band) (*TMA, error) {
	if band != model.BandNone && !band.Valid() {
		return nil, eris.Wrapf(model.ErrInvalidValue, "pose: band must be either 'u', 'g', 'r', 'i', 'z', 'y' or none, currently: %q", string(band))
	}
	return &TMA{
		Az:       unit.AngleFromDeg(azDeg),
		Alt:      unit.AngleFromDeg(altDeg),
		Band:     band,
		Geometry: DefaultTMAGeometry(),
	}, nil
}

// Kind implements Mount.
func (t *TMA) Kind() model.MountKind { return model.MountTMA }

// ModelName returns LSST_<band>.yaml, or the calibration model without a band.
func (t *TMA) ModelName() (string, error) {
	if t.Band == model.BandNone {
		return t.Geometry.CalibrationModel, nil
	}
	if !t.Band.Valid() {
		return "", eris.Wrapf(model.ErrInvalidValue, "pose: band must be either 'u', 'g', 'r', 'i', 'z', 'y' or none, currently: %q", string(t.Band))
	}
	return "LSST_" + string(t.Band) + ".yaml", nil
}

// Steps implements Mount.
func (t *TMA) Steps() []Step {
	g := t.Geometry
	global := optic.GlobalCoordSys()
	az := -(t.Az + g.AzimuthOffset).Rad()
	alt := -(unit.AngleFromDeg(90) - t.Alt).Rad()

	return []Step{
		{Name: "raise to M1 vertex height", Apply: infallible(func(m *optic.Model) *optic.Model {
			return m.WithGlobalShift(r3.Vec{Z: g.M1VertexHeight})
		})},
		{Name: "rotate camera rotator", Apply: func(m *optic.Model) (*optic.Model, error) {
			return m.WithLocallyRotatedOptic(g.CameraName, optic.RotZ(g.RotatorAngle.Rad()))
		}},
		{Name: "rotate to azimuth", Apply: infallible(func(m *optic.Model) *optic.Model {
			return m.WithLocalRotation(optic.RotZ(az), r3.Vec{}, nil)
		})},
		{Name: "rotate to altitude", Apply: infallible(func(m *optic.Model) *optic.Model {
			return m.WithLocalRotation(optic.RotX(alt), r3.Vec{Z: g.ElevationBearingHeight}, &global)
		})},
	}
}
