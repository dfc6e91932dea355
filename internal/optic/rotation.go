// Package optic holds the optical model: a flat arena of named surfaces and
// sub-assemblies with parent links, their global coordinate frames and the
// coating state the ray-tracing engine reads.
package optic

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sells-group/rayven/internal/model"
)

const rotationTolerance = 1e-9

// Rotation is a proper 3×3 rotation matrix. The zero value is the identity.
type Rotation struct {
	m *mat.Dense
}

// Identity returns the identity rotation.
func Identity() Rotation {
	return Rotation{m: mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})}
}

// RotX rotates by theta radians about the x axis.
func RotX(theta float64) Rotation {
	s, c := math.Sincos(theta)
	return Rotation{m: mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})}
}

// RotY rotates by theta radians about the y axis.
func RotY(theta float64) Rotation {
	s, c := math.Sincos(theta)
	return Rotation{m: mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})}
}

// RotZ rotates by theta radians about the z axis.
func RotZ(theta float64) Rotation {
	s, c := math.Sincos(theta)
	return Rotation{m: mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})}
}

// NewRotation builds a rotation from explicit row-major elements. The matrix
// must be orthonormal with determinant +1.
func NewRotation(rows [3][3]float64) (Rotation, error) {
	m := mat.NewDense(3, 3, nil)
	for i := range rows {
		m.SetRow(i, rows[i][:])
	}

	var prod mat.Dense
	prod.Mul(m, m.T())
	if !mat.EqualApprox(&prod, Identity().m, rotationTolerance) {
		return Rotation{}, eris.Wrapf(model.ErrInvalidValue, "optic: rotation matrix is not orthonormal: %v", rows)
	}
	if det := mat.Det(m); math.Abs(det-1) > rotationTolerance {
		return Rotation{}, eris.Wrapf(model.ErrInvalidValue, "optic: rotation matrix must have determinant +1, got %g", det)
	}
	return Rotation{m: m}, nil
}

func (r Rotation) dense() *mat.Dense {
	if r.m == nil {
		return Identity().m
	}
	return r.m
}

// At returns element (i, j).
func (r Rotation) At(i, j int) float64 { return r.dense().At(i, j) }

// Rows returns the matrix in row-major form.
func (r Rotation) Rows() [3][3]float64 {
	var out [3][3]float64
	d := r.dense()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = d.At(i, j)
		}
	}
	return out
}

// Mul returns r·o, the rotation that applies o first and then r.
func (r Rotation) Mul(o Rotation) Rotation {
	out := mat.NewDense(3, 3, nil)
	out.Mul(r.dense(), o.dense())
	return Rotation{m: out}
}

// T returns the inverse rotation.
func (r Rotation) T() Rotation {
	return Rotation{m: mat.DenseCopyOf(r.dense().T())}
}

// Apply rotates v.
func (r Rotation) Apply(v r3.Vec) r3.Vec {
	out := mat.NewVecDense(3, nil)
	out.MulVec(r.dense(), mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// EqualApprox reports whether r and o agree element-wise within tol.
func (r Rotation) EqualApprox(o Rotation, tol float64) bool {
	return mat.EqualApprox(r.dense(), o.dense(), tol)
}
