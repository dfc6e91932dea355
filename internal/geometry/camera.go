// Package geometry describes the camera: filter set, median wavelength per
// band, plate scale and the physical extent of the detector mosaic.
package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/rayven/internal/config"
	"github.com/sells-group/rayven/internal/model"
)

// LSSTCam mosaic half-width in millimetres.
const lsstHalfWidthMM = 325.0

// Camera is immutable after construction. Accessors return copies.
type Camera struct {
	name        string
	components  []string
	wavelengths map[model.Band]float64
	pixelScale  float64
	bounds      *geom.Bounds
}

// Option configures a Camera.
type Option func(*Camera)

// WithName sets the camera name.
func WithName(name string) Option {
	return func(c *Camera) { c.name = name }
}

// WithFocalPlane sets the mosaic bounding box in millimetres.
func WithFocalPlane(minX, maxX, minY, maxY float64) Option {
	return func(c *Camera) {
		c.bounds = geom.NewBounds(geom.XY).Set(minX, minY, maxX, maxY)
	}
}

// WithWavelength overrides the median wavelength (nm) of one band.
func WithWavelength(b model.Band, nm float64) Option {
	return func(c *Camera) { c.wavelengths[b] = nm }
}

// WithPixelScale sets the plate scale in arcsec per pixel.
func WithPixelScale(arcsec float64) Option {
	return func(c *Camera) { c.pixelScale = arcsec }
}

// New builds a camera starting from the LSSTCam defaults.
func New(opts ...Option) (*Camera, error) {
	c := &Camera{
		name: "LSSTCam",
		components: []string{
			"L1_entrance", "L1_exit", "L2_entrance", "L2_exit",
			"Filter_entrance", "Filter_exit", "L3_entrance", "L3_exit", "Detector",
		},
		wavelengths: map[model.Band]float64{
			model.BandU: 372,
			model.BandG: 481,
			model.BandR: 622,
			model.BandI: 756,
			model.BandZ: 868,
			model.BandY: 975,
		},
		pixelScale: 0.2,
		bounds:     geom.NewBounds(geom.XY).Set(-lsstHalfWidthMM, -lsstHalfWidthMM, lsstHalfWidthMM, lsstHalfWidthMM),
	}
	for _, o := range opts {
		o(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LSSTCam returns the default camera.
func LSSTCam() *Camera {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

// FromConfig builds a camera with the configured mosaic bounds and plate scale.
func FromConfig(cfg config.GeometryConfig) (*Camera, error) {
	opts := []Option{WithFocalPlane(cfg.MinX, cfg.MaxX, cfg.MinY, cfg.MaxY)}
	if cfg.PixelScale > 0 {
		opts = append(opts, WithPixelScale(cfg.PixelScale))
	}
	return New(opts...)
}

func (c *Camera) validate() error {
	if c.bounds.Min(0) >= c.bounds.Max(0) || c.bounds.Min(1) >= c.bounds.Max(1) {
		return eris.Wrapf(model.ErrInvalidValue, "geometry: focal plane must have positive extent, got x=[%g,%g] y=[%g,%g]",
			c.bounds.Min(0), c.bounds.Max(0), c.bounds.Min(1), c.bounds.Max(1))
	}
	for b, nm := range c.wavelengths {
		if nm <= 0 {
			return eris.Wrapf(model.ErrInvalidValue, "geometry: wavelength for band %s must be positive, got %g", b, nm)
		}
	}
	if c.pixelScale <= 0 {
		return eris.Wrapf(model.ErrInvalidValue, "geometry: pixel scale must be positive, got %g", c.pixelScale)
	}
	return nil
}

// Name returns the camera name.
func (c *Camera) Name() string { return c.name }

// Components returns the nominal optical surfaces from entrance to detector.
func (c *Camera) Components() []string {
	out := make([]string, len(c.components))
	copy(out, c.components)
	return out
}

// Filters returns the bands the camera carries.
func (c *Camera) Filters() []model.Band {
	out := make([]model.Band, 0, len(model.Bands))
	for _, b := range model.Bands {
		if _, ok := c.wavelengths[b]; ok {
			out = append(out, b)
		}
	}
	return out
}

// MedianWavelengthNM returns the band's median wavelength in nanometres.
func (c *Camera) MedianWavelengthNM(b model.Band) (float64, error) {
	nm, ok := c.wavelengths[b]
	if !ok {
		return 0, eris.Wrapf(model.ErrInvalidValue, "geometry: no median wavelength for band %q", b.String())
	}
	return nm, nil
}

// Wavelength returns the band's median wavelength in metres.
func (c *Camera) Wavelength(b model.Band) (float64, error) {
	nm, err := c.MedianWavelengthNM(b)
	if err != nil {
		return 0, err
	}
	return nm * 1e-9, nil
}

// PixelScale returns the plate scale in arcsec per pixel.
func (c *Camera) PixelScale() float64 { return c.pixelScale }

// Bounds returns a copy of the mosaic bounding box (mm).
func (c *Camera) Bounds() *geom.Bounds { return c.bounds.Clone() }

// FocalPlane returns the mosaic extent as minX, maxX, minY, maxY (mm).
func (c *Camera) FocalPlane() (minX, maxX, minY, maxY float64) {
	return c.bounds.Min(0), c.bounds.Max(0), c.bounds.Min(1), c.bounds.Max(1)
}

// Contains reports whether (x, y) lies within the mosaic, edges included.
func (c *Camera) Contains(x, y float64) bool {
	return c.bounds.OverlapsPoint(geom.XY, geom.Coord{x, y})
}
