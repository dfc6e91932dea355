// Package ray builds the ray bundles sent to the ray-tracing engine and
// checks the ray families it returns.
package ray

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/optic"
)

// Vector is a columnar bundle of rays expressed in Frame. Velocities are
// direction cosines divided by the refractive index of the medium.
type Vector struct {
	X          []float64 `json:"x"`
	Y          []float64 `json:"y"`
	Z          []float64 `json:"z"`
	VX         []float64 `json:"vx"`
	VY         []float64 `json:"vy"`
	VZ         []float64 `json:"vz"`
	T          []float64 `json:"t"`
	Flux       []float64 `json:"flux"`
	Wavelength float64   `json:"wavelength"`
	Frame      Frame     `json:"coord_sys"`
}

// Frame is the wire form of an optic.CoordSys.
type Frame struct {
	Origin [3]float64    `json:"origin"`
	Rot    [3][3]float64 `json:"rot"`
}

func frameOf(c optic.CoordSys) Frame {
	return Frame{
		Origin: [3]float64{c.Origin.X, c.Origin.Y, c.Origin.Z},
		Rot:    c.Rot.Rows(),
	}
}

// Len returns the number of rays.
func (v *Vector) Len() int { return len(v.X) }

func (v *Vector) push(p, vel r3.Vec) {
	v.X = append(v.X, p.X)
	v.Y = append(v.Y, p.Y)
	v.Z = append(v.Z, p.Z)
	v.VX = append(v.VX, vel.X)
	v.VY = append(v.VY, vel.Y)
	v.VZ = append(v.VZ, vel.Z)
	v.T = append(v.T, 0)
	v.Flux = append(v.Flux, 1)
}

// DirCos converts field angles (radians) to direction cosines using the
// postel (azimuthal equidistant) projection.
func DirCos(thetaX, thetaY float64) r3.Vec {
	rho := math.Hypot(thetaX, thetaY)
	if rho == 0 {
		return r3.Vec{Z: 1}
	}
	s := math.Sin(rho)
	return r3.Vec{
		X: thetaX / rho * s,
		Y: thetaY / rho * s,
		Z: math.Cos(rho),
	}
}

// PolarConfig selects the ring sampling of AsPolar.
type PolarConfig struct {
	Wavelength float64
	ThetaX     float64
	ThetaY     float64
	NRad       int
	NAz        int
}

// AsPolar fills the annular entrance pupil of m with concentric rings of
// rays arriving from field angle (ThetaX, ThetaY). Rings run from the outer
// edge inward; each ring holds a multiple of six rays proportional to its
// radius, at least six. A ring of radius zero holds a single ray. Rays start
// BackDist upstream of the stop surface, travelling toward -z.
func AsPolar(m *optic.Model, cfg PolarConfig) (*Vector, error) {
	if cfg.NRad <= 0 || cfg.NAz <= 0 {
		return nil, eris.Wrapf(model.ErrInvalidValue, "ray: nrad and naz must be positive, got %d and %d", cfg.NRad, cfg.NAz)
	}
	if cfg.Wavelength <= 0 {
		return nil, eris.Wrapf(model.ErrInvalidValue, "ray: wavelength must be positive, got %g", cfg.Wavelength)
	}
	p := m.Pupil
	if p.Size <= 0 {
		return nil, eris.Wrapf(model.ErrInvalidValue, "ray: model %q has no pupil size", m.Name)
	}

	frame := m.Root().Frame
	if p.StopSurface != "" {
		stop, err := m.Lookup(p.StopSurface)
		if err != nil {
			return nil, err
		}
		frame = stop.Frame
	}

	n := p.InMedium
	if n <= 0 {
		n = 1
	}
	d := r3.Scale(-1, DirCos(cfg.ThetaX, cfg.ThetaY))
	vel := r3.Scale(1/n, d)
	back := r3.Scale(p.BackDist, d)

	outer := p.Size / 2
	inner := outer * p.Obscuration

	v := &Vector{Wavelength: cfg.Wavelength, Frame: frameOf(frame)}
	for _, r := range ringRadii(outer, inner, cfg.NRad) {
		if r == 0 {
			v.push(r3.Sub(r3.Vec{}, back), vel)
			continue
		}
		nphi := int(float64(cfg.NAz)*r/outer/6) * 6
		if nphi < 6 {
			nphi = 6
		}
		for k := 0; k < nphi; k++ {
			s, c := math.Sincos(2 * math.Pi * float64(k) / float64(nphi))
			v.push(r3.Sub(r3.Vec{X: r * c, Y: r * s}, back), vel)
		}
	}
	return v, nil
}

// ringRadii spaces n radii evenly from outer down to inner, both included.
func ringRadii(outer, inner float64, n int) []float64 {
	if n == 1 {
		return []float64{outer}
	}
	out := make([]float64, n)
	step := (inner - outer) / float64(n-1)
	for i := range out {
		out[i] = outer + step*float64(i)
	}
	out[n-1] = inner
	return out
}

// ValidateFamily checks that a family's arrays are co-indexed.
func ValidateFamily(f *model.RayFamily) error {
	if f == nil {
		return eris.New("ray: nil family")
	}
	if len(f.X) != len(f.Flux) || len(f.Y) != len(f.Flux) {
		return eris.Errorf("ray: family %s has mismatched lengths x=%d y=%d flux=%d",
			f.Label(), len(f.X), len(f.Y), len(f.Flux))
	}
	return nil
}
