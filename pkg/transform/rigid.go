package transform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultBrainRadius is the anatomical scale, in millimetres, used to
// condition the rigid parameter vector. Scaling the rotation angles by the
// radius makes a unit optimizer step displace the edge of the head by
// roughly one millimetre, matching the effect of a unit translation step.
const DefaultBrainRadius = 100.0

// Rigid is a rigid-body (rotation + translation) transform in world
// coordinates. It is represented by its 4x4 homogeneous matrix; the
// 6-element parameter vector [tx, ty, tz, rx*radius, ry*radius, rz*radius]
// is derived on demand. The rotation uses the Rz*Ry*Rx Euler convention.
type Rigid struct {
	m      *mat.Dense
	radius float64
}

// NewRigid returns the identity transform. A non-positive radius selects
// DefaultBrainRadius.
func NewRigid(radius float64) *Rigid {
	if radius <= 0 {
		radius = DefaultBrainRadius
	}
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		m.Set(i, i, 1)
	}
	return &Rigid{m: m, radius: radius}
}

// Radius returns the conditioning radius.
func (r *Rigid) Radius() float64 { return r.radius }

// Matrix returns the 4x4 homogeneous matrix. The engine composes it with
// the voxel-to-world maps on every cost evaluation; callers must not
// modify it.
func (r *Rigid) Matrix() *mat.Dense { return r.m }

// SetParams rebuilds the transform from a conditioned parameter vector.
// Rotation entries are divided by the radius to recover angles in radians.
func (r *Rigid) SetParams(p []float64) {
	tx, ty, tz := p[0], p[1], p[2]
	ax, ay, az := p[3]/r.radius, p[4]/r.radius, p[5]/r.radius

	ca, sa := math.Cos(ax), math.Sin(ax)
	cb, sb := math.Cos(ay), math.Sin(ay)
	cg, sg := math.Cos(az), math.Sin(az)

	// R = Rz(az) * Ry(ay) * Rx(ax)
	r.m.Set(0, 0, cg*cb)
	r.m.Set(0, 1, cg*sb*sa-sg*ca)
	r.m.Set(0, 2, cg*sb*ca+sg*sa)
	r.m.Set(1, 0, sg*cb)
	r.m.Set(1, 1, sg*sb*sa+cg*ca)
	r.m.Set(1, 2, sg*sb*ca-cg*sa)
	r.m.Set(2, 0, -sb)
	r.m.Set(2, 1, cb*sa)
	r.m.Set(2, 2, cb*ca)
	r.m.Set(0, 3, tx)
	r.m.Set(1, 3, ty)
	r.m.Set(2, 3, tz)
	r.m.Set(3, 0, 0)
	r.m.Set(3, 1, 0)
	r.m.Set(3, 2, 0)
	r.m.Set(3, 3, 1)
}

// Params extracts the conditioned parameter vector from the matrix.
// Angles are recovered from the Rz*Ry*Rx factorization; head motion stays
// far from the gimbal-lock singularity at |ay| = pi/2.
func (r *Rigid) Params() []float64 {
	ay := math.Asin(-r.m.At(2, 0))
	ax := math.Atan2(r.m.At(2, 1), r.m.At(2, 2))
	az := math.Atan2(r.m.At(1, 0), r.m.At(0, 0))
	return []float64{
		r.m.At(0, 3), r.m.At(1, 3), r.m.At(2, 3),
		ax * r.radius, ay * r.radius, az * r.radius,
	}
}

// Apply maps a single world point through the transform.
func (r *Rigid) Apply(x, y, z float64) (float64, float64, float64) {
	return r.m.At(0, 0)*x + r.m.At(0, 1)*y + r.m.At(0, 2)*z + r.m.At(0, 3),
		r.m.At(1, 0)*x + r.m.At(1, 1)*y + r.m.At(1, 2)*z + r.m.At(1, 3),
		r.m.At(2, 0)*x + r.m.At(2, 1)*y + r.m.At(2, 2)*z + r.m.At(2, 3)
}

// Compose returns outer applied after inner (group product outer * inner).
// The product of two rigid matrices is rigid; the result inherits the outer
// transform's radius.
func Compose(outer, inner *Rigid) *Rigid {
	var prod mat.Dense
	prod.Mul(outer.m, inner.m)
	return &Rigid{m: &prod, radius: outer.radius}
}

// Copy returns an independent transform with the same matrix and radius.
func (r *Rigid) Copy() *Rigid {
	return &Rigid{m: mat.DenseCopyOf(r.m), radius: r.radius}
}

// String formats the transform as its parameter vector, translations first.
func (r *Rigid) String() string {
	p := r.Params()
	return fmt.Sprintf("rigid[t=(%.4f %.4f %.4f) r*rad=(%.4f %.4f %.4f)]",
		p[0], p[1], p[2], p[3], p[4], p[5])
}
