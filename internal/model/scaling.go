package model

import (
	"github.com/rotisserie/eris"
)

// ScalingMode selects the per-star scale factor used to normalize ghost flux.
type ScalingMode string

const (
	ScalingConstant ScalingMode = "constant"
	ScalingFlux     ScalingMode = "flux"
	ScalingMag      ScalingMode = "mag"
)

// ScaleFactors returns one scale factor per star: ones for constant, the flux
// column for flux and the magnitude column for mag.
func ScaleFactors(t *StarTable, mode ScalingMode) ([]float64, error) {
	if err := ValidateStarTable(t); err != nil {
		return nil, err
	}

	switch mode {
	case ScalingConstant:
		out := make([]float64, t.Len())
		for i := range out {
			out[i] = 1
		}
		return out, nil
	case ScalingFlux:
		return t.Column(ColFlux)
	case ScalingMag:
		return t.Column(ColMag)
	default:
		return nil, eris.Wrapf(ErrInvalidValue, "scaling must be 'constant', 'flux' or 'mag', currently: %q", string(mode))
	}
}
