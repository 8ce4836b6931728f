// Package transform provides the spatial transforms used by 4D motion
// correction: an invertible affine voxel-to-world map and a 6-parameter
// rigid-body transform with a preconditioned parameter vector suitable for
// derivative-free optimization.
package transform

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Affine is an invertible 4x4 homogeneous map from voxel grid coordinates to
// physical world coordinates. The inverse is computed once at construction
// and reused on every resampling pass.
type Affine struct {
	m   *mat.Dense
	inv *mat.Dense
}

// NewAffine validates and wraps a 4x4 voxel-to-world matrix. A singular
// matrix is rejected: the realignment engine cannot map world coordinates
// back onto the grid without the inverse.
func NewAffine(m *mat.Dense) (*Affine, error) {
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return nil, fmt.Errorf("voxel-to-world map must be 4x4, got %dx%d", r, c)
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("voxel-to-world map is not invertible: %v", err)
	}
	return &Affine{m: mat.DenseCopyOf(m), inv: &inv}, nil
}

// NewScalingAffine builds a diagonal voxel-to-world map from per-axis voxel
// sizes in millimetres.
func NewScalingAffine(sx, sy, sz float64) (*Affine, error) {
	m := mat.NewDense(4, 4, []float64{
		sx, 0, 0, 0,
		0, sy, 0, 0,
		0, 0, sz, 0,
		0, 0, 0, 1,
	})
	return NewAffine(m)
}

// Matrix returns the voxel-to-world matrix.
func (a *Affine) Matrix() *mat.Dense { return a.m }

// Inverse returns the cached world-to-voxel matrix.
func (a *Affine) Inverse() *mat.Dense { return a.inv }

// ApplyPoints applies a 4x4 homogeneous matrix to a point set given as
// parallel coordinate slices, writing the mapped coordinates into ox, oy, oz
// (which may alias the inputs).
func ApplyPoints(m *mat.Dense, xs, ys, zs, ox, oy, oz []float64) {
	m00, m01, m02, m03 := m.At(0, 0), m.At(0, 1), m.At(0, 2), m.At(0, 3)
	m10, m11, m12, m13 := m.At(1, 0), m.At(1, 1), m.At(1, 2), m.At(1, 3)
	m20, m21, m22, m23 := m.At(2, 0), m.At(2, 1), m.At(2, 2), m.At(2, 3)
	for i := range xs {
		x, y, z := xs[i], ys[i], zs[i]
		ox[i] = m00*x + m01*y + m02*z + m03
		oy[i] = m10*x + m11*y + m12*z + m13
		oz[i] = m20*x + m21*y + m22*z + m23
	}
}
