package pose

import (
	"math"

	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/optic"
)

// CBPGeometry holds the collimated beam projector placement in the dome.
type CBPGeometry struct {
	ModelName          string
	BaseRotation       unit.Angle
	PlacementRadius    float64
	PlacementAngle     unit.Angle
	RingHeight         float64
	MountHeight        float64
	CassegrainName     string
	CassegrainRotation unit.Angle
}

// DefaultCBPGeometry returns the as-built projector placement. The placement
// angle is 60° from north, measured from the x axis which is 90° off north.
func DefaultCBPGeometry() CBPGeometry {
	return CBPGeometry{
		ModelName:          "CBP.yaml",
		BaseRotation:       unit.AngleFromDeg(-120),
		PlacementRadius:    12.4,
		PlacementAngle:     unit.AngleFromDeg(60 + 90),
		RingHeight:         12.135,
		MountHeight:        0.998,
		CassegrainName:     "Cassegrain",
		CassegrainRotation: unit.AngleFromDeg(46.5),
	}
}

// Position returns the projector's global offset.
func (g CBPGeometry) Position() r3.Vec {
	s, c := math.Sincos(g.PlacementAngle.Rad())
	return r3.Vec{
		X: g.PlacementRadius * c,
		Y: g.PlacementRadius * s,
		Z: g.RingHeight + g.MountHeight,
	}
}

// CBP is the projector on the dome, at mount azimuth Az and altitude Alt,
// with the dome rotated to DomeAz.
type CBP struct {
	DomeAz   unit.Angle
	Az       unit.Angle
	Alt      unit.Angle
	Geometry CBPGeometry
}

// NewCBP converts the angles from degrees.
func NewCBP(domeAzDeg, azDeg, altDeg float64) *CBP {
	return &CBP{
		DomeAz:   unit.AngleFromDeg(domeAzDeg),
		Az:       unit.AngleFromDeg(azDeg),
		Alt:      unit.AngleFromDeg(altDeg),
		Geometry: DefaultCBPGeometry(),
	}
}

// Kind implements Mount.
func (c *CBP) Kind() model.MountKind { return model.MountCBP }

// ModelName implements Mount.
func (c *CBP) ModelName() (string, error) { return c.Geometry.ModelName, nil }

// DomeRotation is the dome azimuth as an explicit rotation about +z.
func (c *CBP) DomeRotation() (optic.Rotation, error) {
	s, co := math.Sincos(-c.DomeAz.Rad())
	return optic.NewRotation([3][3]float64{
		{co, -s, 0},
		{s, co, 0},
		{0, 0, 1},
	})
}

// Steps implements Mount. The starting pose points at the horizon with
// azimuth zero facing the telescope.
func (c *CBP) Steps() []Step {
	g := c.Geometry
	alt := (unit.AngleFromDeg(-90) + c.Alt).Rad()
	az := -c.Az.Rad()

	return []Step{
		{Name: "face telescope", Apply: infallible(func(m *optic.Model) *optic.Model {
			return m.WithLocalRotation(optic.RotZ(g.BaseRotation.Rad()), r3.Vec{}, nil)
		})},
		{Name: "move to dome position", Apply: infallible(func(m *optic.Model) *optic.Model {
			return m.WithGlobalShift(g.Position())
		})},
		{Name: "rotate to altitude", Apply: infallible(func(m *optic.Model) *optic.Model {
			return m.WithLocalRotation(optic.RotX(alt), r3.Vec{}, nil)
		})},
		{Name: "rotate dome", Apply: func(m *optic.Model) (*optic.Model, error) {
			rot, err := c.DomeRotation()
			if err != nil {
				return nil, err
			}
			return m.WithGlobalRotation(rot, r3.Vec{}), nil
		}},
		{Name: "rotate to azimuth", Apply: infallible(func(m *optic.Model) *optic.Model {
			return m.WithGlobalRotation(optic.RotZ(az), r3.Vec{})
		})},
		{Name: "rotate cassegrain", Apply: func(m *optic.Model) (*optic.Model, error) {
			return m.WithLocallyRotatedOptic(g.CassegrainName, optic.RotZ(g.CassegrainRotation.Rad()))
		}},
	}
}
