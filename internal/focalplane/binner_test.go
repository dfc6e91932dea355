package focalplane

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rayven/internal/geometry"
	"github.com/sells-group/rayven/internal/model"
)

func unitBinner(t *testing.T) *Binner {
	t.Helper()
	cam, err := geometry.New(geometry.WithFocalPlane(-1, 1, -1, 1))
	require.NoError(t, err)
	return NewBinner(cam)
}

func TestBin_OriginScenario(t *testing.T) {
	t.Parallel()

	g := model.Ghost{Name: "g", X: []float64{0, 0}, Y: []float64{0, 0}, Flux: []float64{1, 2}}
	img, err := unitBinner(t).Bin(g, Square(2))
	require.NoError(t, err)

	rows, cols := img.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, 3.0, img.At(0, 1))
	assert.Equal(t, 3.0, img.Sum())
}

func TestBin_Orientation(t *testing.T) {
	t.Parallel()

	// One sample per quadrant.
	g := model.Ghost{
		X:    []float64{-0.5, 0.5, -0.5, 0.5},
		Y:    []float64{0.5, 0.5, -0.5, -0.5},
		Flux: []float64{1, 2, 3, 4},
	}
	img, err := unitBinner(t).Bin(g, Square(2))
	require.NoError(t, err)

	assert.Equal(t, 1.0, img.At(0, 0))
	assert.Equal(t, 2.0, img.At(0, 1))
	assert.Equal(t, 3.0, img.At(1, 0))
	assert.Equal(t, 4.0, img.At(1, 1))
}

func TestBin_AllOutside(t *testing.T) {
	t.Parallel()

	g := model.Ghost{
		X:    []float64{-5, 5, 0, math.NaN()},
		Y:    []float64{0, 0, 1.0001, 0},
		Flux: []float64{1, 1, 1, 1},
	}
	img, err := unitBinner(t).Bin(g, Pair(3, 4))
	require.NoError(t, err)

	rows, cols := img.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, 0.0, img.Sum())
	assert.Equal(t, 0.0, img.Max())
}

func TestBin_FluxConservation(t *testing.T) {
	t.Parallel()

	var x, y, flux []float64
	for i := 0; i < 200; i++ {
		f := float64(i)
		x = append(x, 0.99*math.Sin(f))
		y = append(y, 0.99*math.Cos(1.7*f))
		flux = append(flux, 0.01*f)
	}
	img, err := unitBinner(t).BinSamples(x, y, flux, Pair(7, 5))
	require.NoError(t, err)

	var want float64
	for _, f := range flux {
		want += f
	}
	assert.InDelta(t, want, img.Sum(), 1e-9)
}

func TestBin_UpperEdgeIncluded(t *testing.T) {
	t.Parallel()

	img, err := unitBinner(t).BinSamples([]float64{1, -1}, []float64{1, -1}, []float64{2, 5}, Square(4))
	require.NoError(t, err)
	assert.Equal(t, 2.0, img.At(0, 3))
	assert.Equal(t, 5.0, img.At(3, 0))
}

func TestBin_InvalidBins(t *testing.T) {
	t.Parallel()

	_, err := unitBinner(t).Bin(model.Ghost{}, Pair(0, 3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidValue))
}

func TestBins_Within(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Pair(16, 32).Within(32))
	assert.NoError(t, Square(DefaultMaxBins).Within(0))

	for _, b := range []Bins{Pair(33, 1), Pair(1, 33), Pair(0, 4), Square(2000000000)} {
		err := b.Within(32)
		require.Error(t, err, b)
		assert.True(t, errors.Is(err, model.ErrInvalidValue), b)
	}
	assert.Error(t, Square(DefaultMaxBins+1).Within(-1))
}

func TestBin_LengthMismatch(t *testing.T) {
	t.Parallel()

	_, err := unitBinner(t).BinSamples([]float64{0}, []float64{0, 1}, []float64{1}, Square(2))
	assert.Error(t, err)
}

func TestBinBundle(t *testing.T) {
	t.Parallel()

	bundle := model.GhostBundle{Ghosts: []model.Ghost{
		{X: []float64{0.5}, Y: []float64{0.5}, Flux: []float64{1}},
		{X: []float64{-0.5, 3}, Y: []float64{-0.5, 0}, Flux: []float64{2, 100}},
	}}
	img, err := unitBinner(t).BinBundle(bundle, Square(2), 10)
	require.NoError(t, err)

	assert.Equal(t, 10.0, img.At(0, 1))
	assert.Equal(t, 20.0, img.At(1, 0))
	assert.Equal(t, 30.0, img.Sum())
}

func TestBin_LSSTCamBounds(t *testing.T) {
	t.Parallel()

	b := NewBinner(geometry.LSSTCam())
	img, err := b.BinSamples([]float64{-325, 0, 324.9}, []float64{325, 0, -324.9}, []float64{1, 1, 1}, Square(500))
	require.NoError(t, err)
	assert.Equal(t, 3.0, img.Sum())
	assert.Equal(t, 1.0, img.At(0, 0))
	assert.Equal(t, 1.0, img.At(499, 499))
	assert.Equal(t, -325.0, img.MinX)
}
