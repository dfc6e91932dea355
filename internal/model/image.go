package model

import (
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// BinnedImage is summed ghost flux over a rectangular focal-plane region.
// Pix has one row per y bin and one column per x bin; row 0 is the bin with
// the largest y, matching the mosaic display convention.
type BinnedImage struct {
	Pix  *mat.Dense
	MinX float64
	MaxX float64
	MinY float64
	MaxY float64
}

// NewBinnedImage allocates a zero image of rows×cols over the given region.
func NewBinnedImage(rows, cols int, minX, maxX, minY, maxY float64) (*BinnedImage, error) {
	if rows <= 0 || cols <= 0 {
		return nil, eris.Wrapf(ErrInvalidValue, "binned image: shape must be positive, got %dx%d", rows, cols)
	}
	return &BinnedImage{
		Pix:  mat.NewDense(rows, cols, nil),
		MinX: minX,
		MaxX: maxX,
		MinY: minY,
		MaxY: maxY,
	}, nil
}

// Dims returns the number of rows and columns.
func (b *BinnedImage) Dims() (rows, cols int) { return b.Pix.Dims() }

// At returns the flux in the given row and column.
func (b *BinnedImage) At(row, col int) float64 { return b.Pix.At(row, col) }

// Sum returns the total binned flux.
func (b *BinnedImage) Sum() float64 { return mat.Sum(b.Pix) }

// Max returns the brightest pixel value.
func (b *BinnedImage) Max() float64 { return mat.Max(b.Pix) }

// AddScaled accumulates scale*o into b. Both images must share a shape.
func (b *BinnedImage) AddScaled(scale float64, o *BinnedImage) error {
	br, bc := b.Dims()
	or, oc := o.Dims()
	if br != or || bc != oc {
		return eris.Errorf("binned image: shape mismatch %dx%d vs %dx%d", br, bc, or, oc)
	}
	b.Pix.Apply(func(i, j int, v float64) float64 {
		return v + scale*o.Pix.At(i, j)
	}, b.Pix)
	return nil
}
