package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleFactors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode ScalingMode
		want []float64
	}{
		{ScalingConstant, []float64{1, 1, 1}},
		{ScalingFlux, []float64{1200, 300, 95}},
		{ScalingMag, []float64{4.5, 6.0, 7.25}},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			t.Parallel()
			tbl := testStars(t)
			got, err := ScaleFactors(tbl, tt.mode)
			require.NoError(t, err)
			assert.Len(t, got, tbl.Len())
			assert.InDeltaSlice(t, tt.want, got, 1e-12)
		})
	}
}

func TestScaleFactors_Bogus(t *testing.T) {
	t.Parallel()

	_, err := ScaleFactors(testStars(t), ScalingMode("bogus"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidValue))
	for _, want := range []string{"constant", "flux", "mag", "bogus"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestScaleFactors_EmptyTable(t *testing.T) {
	t.Parallel()

	tbl := NewStarTable(RequiredColumns, nil)
	got, err := ScaleFactors(tbl, ScalingConstant)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScaleFactors_MissingColumnsFailsFirst(t *testing.T) {
	t.Parallel()

	tbl := NewStarTable([]string{"ra", "dec"}, nil)
	_, err := ScaleFactors(tbl, ScalingConstant)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumns))
}
