package ray

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sells-group/rayven/internal/model"
	"github.com/sells-group/rayven/internal/optic"
)

func pupilModel(t *testing.T, obscuration float64) *optic.Model {
	t.Helper()
	m, err := optic.NewModel("Toy", optic.Pupil{
		Size:        2,
		Obscuration: obscuration,
		StopSurface: "M1",
		BackDist:    10,
	}, []optic.Item{
		{Name: "Toy", Role: optic.RoleCompound, Parent: -1},
		{Name: "M1", Role: optic.RoleMirror, Parent: 0, Frame: optic.CoordSys{Origin: r3.Vec{Z: 3.53}}},
	})
	require.NoError(t, err)
	return m
}

func TestDirCos(t *testing.T) {
	t.Parallel()

	assert.Equal(t, r3.Vec{Z: 1}, DirCos(0, 0))

	d := DirCos(0.01, -0.02)
	assert.InDelta(t, 1, r3.Norm(d), 1e-12)
	assert.Greater(t, d.X, 0.0)
	assert.Less(t, d.Y, 0.0)

	rho := math.Hypot(0.01, -0.02)
	assert.InDelta(t, math.Cos(rho), d.Z, 1e-15)
}

func TestRingRadii(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []float64{1}, ringRadii(1, 0.5, 1))
	assert.InDeltaSlice(t, []float64{1, 0.75, 0.5}, ringRadii(1, 0.5, 3), 1e-15)
}

func TestAsPolar_RingCounts(t *testing.T) {
	t.Parallel()

	m := pupilModel(t, 0)
	v, err := AsPolar(m, PolarConfig{Wavelength: 622e-9, NRad: 3, NAz: 60})
	require.NoError(t, err)

	// Radii 1, 0.5, 0 give 60, 30 and a single centre ray.
	assert.Equal(t, 91, v.Len())
	assert.Len(t, v.Flux, 91)
	assert.Equal(t, 622e-9, v.Wavelength)
	assert.Equal(t, [3]float64{0, 0, 3.53}, v.Frame.Origin)
}

func TestAsPolar_MinimumSix(t *testing.T) {
	t.Parallel()

	m := pupilModel(t, 0.5)
	v, err := AsPolar(m, PolarConfig{Wavelength: 500e-9, NRad: 2, NAz: 1})
	require.NoError(t, err)
	assert.Equal(t, 12, v.Len())
}

func TestAsPolar_BackDistAndDirection(t *testing.T) {
	t.Parallel()

	m := pupilModel(t, 0.5)
	v, err := AsPolar(m, PolarConfig{Wavelength: 500e-9, NRad: 1, NAz: 6})
	require.NoError(t, err)
	require.Equal(t, 6, v.Len())

	for i := 0; i < v.Len(); i++ {
		assert.InDelta(t, 10, v.Z[i], 1e-12)
		assert.InDelta(t, -1, v.VZ[i], 1e-12)
		assert.InDelta(t, 1, math.Hypot(v.X[i], v.Y[i]), 1e-12)
		assert.Equal(t, 1.0, v.Flux[i])
	}
}

func TestAsPolar_Invalid(t *testing.T) {
	t.Parallel()

	m := pupilModel(t, 0)
	_, err := AsPolar(m, PolarConfig{Wavelength: 500e-9, NRad: 0, NAz: 10})
	assert.Error(t, err)

	_, err = AsPolar(m, PolarConfig{Wavelength: 0, NRad: 1, NAz: 10})
	assert.Error(t, err)

	nopupil, err := optic.NewModel("Bare", optic.Pupil{}, []optic.Item{{Name: "Bare", Parent: -1}})
	require.NoError(t, err)
	_, err = AsPolar(nopupil, PolarConfig{Wavelength: 500e-9, NRad: 1, NAz: 10})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Bare"))
}

func TestValidateFamily(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateFamily(&model.RayFamily{X: []float64{1}, Y: []float64{2}, Flux: []float64{3}}))
	assert.NoError(t, ValidateFamily(&model.RayFamily{}))
	assert.Error(t, ValidateFamily(nil))

	err := ValidateFamily(&model.RayFamily{Path: []string{"L1_exit"}, X: []float64{1, 2}, Y: []float64{2}, Flux: []float64{3}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "L1_exit")
}
