// Package focalplane bins ghost samples into flux images over the detector
// mosaic and encodes them for display.
package focalplane

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rayven/internal/geometry"
	"github.com/sells-group/rayven/internal/model"
)

// Bins is the image shape: NX columns along x, NY rows along y.
type Bins struct {
	NX int
	NY int
}

// Square returns n bins on both axes.
func Square(n int) Bins { return Bins{NX: n, NY: n} }

// Pair returns nx bins along x and ny along y.
func Pair(nx, ny int) Bins { return Bins{NX: nx, NY: ny} }

// DefaultMaxBins bounds each image axis when no limit is configured.
const DefaultMaxBins = 4096

// Within returns ErrInvalidValue unless both axes are in [1, limit]. A
// non-positive limit means DefaultMaxBins.
func (b Bins) Within(limit int) error {
	if err := b.validate(); err != nil {
		return err
	}
	if limit <= 0 {
		limit = DefaultMaxBins
	}
	if b.NX > limit || b.NY > limit {
		return eris.Wrapf(model.ErrInvalidValue, "focalplane: bins %dx%d exceed the limit of %d per axis", b.NX, b.NY, limit)
	}
	return nil
}

func (b Bins) validate() error {
	if b.NX <= 0 || b.NY <= 0 {
		return eris.Wrapf(model.ErrInvalidValue, "focalplane: bins must be positive, got %dx%d", b.NX, b.NY)
	}
	return nil
}

// Binner sums sample flux into equal-width bins over the camera's mosaic.
type Binner struct {
	minX, maxX, minY, maxY float64
}

// NewBinner bins over cam's focal-plane bounding box.
func NewBinner(cam *geometry.Camera) *Binner {
	minX, maxX, minY, maxY := cam.FocalPlane()
	return &Binner{minX: minX, maxX: maxX, minY: minY, maxY: maxY}
}

// Bin bins one ghost.
func (b *Binner) Bin(g model.Ghost, bins Bins) (*model.BinnedImage, error) {
	return b.BinSamples(g.X, g.Y, g.Flux, bins)
}

// BinBundle bins every ghost of a bundle into one image, each sample
// weighted by scale.
func (b *Binner) BinBundle(bundle model.GhostBundle, bins Bins, scale float64) (*model.BinnedImage, error) {
	img, err := b.empty(bins)
	if err != nil {
		return nil, err
	}
	for _, g := range bundle.Ghosts {
		if err := b.accumulate(img, g.X, g.Y, g.Flux, bins, scale); err != nil {
			return nil, err
		}
	}
	return img, nil
}

// BinSamples sums flux into a Bins.NY×Bins.NX image. Row 0 holds the
// largest y. The last bin on each axis includes its upper edge; samples
// outside the mosaic are dropped.
func (b *Binner) BinSamples(x, y, flux []float64, bins Bins) (*model.BinnedImage, error) {
	img, err := b.empty(bins)
	if err != nil {
		return nil, err
	}
	if err := b.accumulate(img, x, y, flux, bins, 1); err != nil {
		return nil, err
	}
	return img, nil
}

func (b *Binner) empty(bins Bins) (*model.BinnedImage, error) {
	if err := bins.validate(); err != nil {
		return nil, err
	}
	return model.NewBinnedImage(bins.NY, bins.NX, b.minX, b.maxX, b.minY, b.maxY)
}

func (b *Binner) accumulate(img *model.BinnedImage, x, y, flux []float64, bins Bins, scale float64) error {
	if len(x) != len(flux) || len(y) != len(flux) {
		return eris.Errorf("focalplane: sample lengths differ: x=%d y=%d flux=%d", len(x), len(y), len(flux))
	}
	for i := range flux {
		ix, ok := binIndex(x[i], b.minX, b.maxX, bins.NX)
		if !ok {
			continue
		}
		iy, ok := binIndex(y[i], b.minY, b.maxY, bins.NY)
		if !ok {
			continue
		}
		row := bins.NY - 1 - iy
		img.Pix.Set(row, ix, img.Pix.At(row, ix)+scale*flux[i])
	}
	return nil
}

func binIndex(v, lo, hi float64, n int) (int, bool) {
	if math.IsNaN(v) || v < lo || v > hi {
		return 0, false
	}
	if v == hi {
		return n - 1, true
	}
	i := int((v - lo) / (hi - lo) * float64(n))
	if i >= n {
		i = n - 1
	}
	return i, true
}
