// Package spline implements 4D cubic B-spline interpolation for intensity
// volumes: a one-time recursive prefilter that turns raw intensities into
// spline coefficients, and a separable sampler that evaluates the
// coefficient volume at arbitrary fractional (x, y, z, t) grid coordinates.
//
// The prefilter is the classic causal/anticausal recursion with pole
// sqrt(3)-2 applied independently along each axis, using mirror boundary
// conditions. Sampling mirrors out-of-range coordinates back into the grid,
// so points pushed outside the volume by a large candidate motion degrade
// gracefully instead of producing sentinel values.
package spline

import (
	"math"

	"fmrirealign/pkg/volume"
)

// pole of the cubic B-spline prefilter, sqrt(3) - 2.
const pole = -0.26794919243112270647

// tolerance controlling the truncation horizon of the causal boundary sum.
const initTolerance = 1e-10

// Coefficients holds the prefiltered B-spline coefficient volume for one
// run. It is computed once per run and is read-only afterwards, so it can be
// shared across parallel resampling passes.
type Coefficients struct {
	nx, ny, nz, nt int
	c              []float64
}

// NewCoefficients prefilters a volume into interpolation coefficients.
// Cost is linear in the volume size.
func NewCoefficients(vol *volume.Volume4D) *Coefficients {
	co := &Coefficients{
		nx: vol.Nx, ny: vol.Ny, nz: vol.Nz, nt: vol.Nt,
		c: append([]float64(nil), vol.Data()...),
	}
	// Layout is ((x*ny+y)*nz+z)*nt+t, time axis fastest.
	strideT := 1
	strideZ := co.nt
	strideY := co.nz * co.nt
	strideX := co.ny * co.nz * co.nt
	co.filterAxis(co.nx, strideX)
	co.filterAxis(co.ny, strideY)
	co.filterAxis(co.nz, strideZ)
	co.filterAxis(co.nt, strideT)
	return co
}

// filterAxis runs the recursive prefilter along every line of one axis.
func (co *Coefficients) filterAxis(n, stride int) {
	if n < 2 {
		return
	}
	total := len(co.c)
	block := n * stride
	line := make([]float64, n)
	for base := 0; base < total; base += block {
		for offset := 0; offset < stride; offset++ {
			start := base + offset
			for k := 0; k < n; k++ {
				line[k] = co.c[start+k*stride]
			}
			filterLine(line)
			for k := 0; k < n; k++ {
				co.c[start+k*stride] = line[k]
			}
		}
	}
}

// filterLine converts one line of intensities into cubic spline
// coefficients in place (gain, causal recursion, anticausal recursion).
func filterLine(line []float64) {
	n := len(line)
	gain := (1 - pole) * (1 - 1/pole)
	for i := range line {
		line[i] *= gain
	}
	line[0] = initialCausal(line)
	for i := 1; i < n; i++ {
		line[i] += pole * line[i-1]
	}
	line[n-1] = initialAnticausal(line)
	for i := n - 2; i >= 0; i-- {
		line[i] = pole * (line[i+1] - line[i])
	}
}

// initialCausal computes the mirror-boundary starting value of the causal
// recursion, truncating the geometric sum once terms drop below tolerance.
func initialCausal(line []float64) float64 {
	n := len(line)
	horizon := int(math.Ceil(math.Log(initTolerance) / math.Log(-pole)))
	if horizon < n {
		zn := pole
		sum := line[0]
		for i := 1; i < horizon; i++ {
			sum += zn * line[i]
			zn *= pole
		}
		return sum
	}
	// Short line: use the exact expression over the full mirror period.
	zn := pole
	iz := 1 / pole
	z2n := math.Pow(pole, float64(n-1))
	sum := line[0] + z2n*line[n-1]
	z2n *= z2n * iz
	for i := 1; i <= n-2; i++ {
		sum += (zn + z2n) * line[i]
		zn *= pole
		z2n *= iz
	}
	return sum / (1 - math.Pow(pole, float64(2*n-2)))
}

// initialAnticausal computes the mirror-boundary starting value of the
// anticausal recursion.
func initialAnticausal(line []float64) float64 {
	n := len(line)
	return (pole / (pole*pole - 1)) * (pole*line[n-2] + line[n-1])
}

// mirror reflects an index into [0, n-1] with period 2(n-1).
func mirror(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}

// weights evaluates the four cubic B-spline basis values for a fractional
// offset f in [0, 1).
func weights(f float64) (w0, w1, w2, w3 float64) {
	g := 1 - f
	w0 = g * g * g / 6
	w1 = (4 - 6*f*f + 3*f*f*f) / 6
	w2 = (1 + 3*f + 3*f*f - 3*f*f*f) / 6
	w3 = f * f * f / 6
	return
}

// taps resolves one coordinate into up to four mirrored tap indices and
// their weights. Axes of length one degenerate to a single pass-through tap.
func taps(u float64, n int, idx *[4]int, w *[4]float64) int {
	if n == 1 {
		idx[0], w[0] = 0, 1
		return 1
	}
	fl := math.Floor(u)
	f := u - fl
	i := int(fl)
	w[0], w[1], w[2], w[3] = weights(f)
	for k := 0; k < 4; k++ {
		idx[k] = mirror(i-1+k, n)
	}
	return 4
}

// Sample evaluates the spline at a fractional grid coordinate.
func (co *Coefficients) Sample(x, y, z, t float64) float64 {
	var ix, iy, iz, it [4]int
	var wx, wy, wz, wt [4]float64
	nxTaps := taps(x, co.nx, &ix, &wx)
	nyTaps := taps(y, co.ny, &iy, &wy)
	nzTaps := taps(z, co.nz, &iz, &wz)
	ntTaps := taps(t, co.nt, &it, &wt)

	strideZ := co.nt
	strideY := co.nz * co.nt
	strideX := co.ny * co.nz * co.nt

	sum := 0.0
	for a := 0; a < nxTaps; a++ {
		baseX := ix[a] * strideX
		for b := 0; b < nyTaps; b++ {
			baseY := baseX + iy[b]*strideY
			wxy := wx[a] * wy[b]
			for c := 0; c < nzTaps; c++ {
				baseZ := baseY + iz[c]*strideZ
				wxyz := wxy * wz[c]
				for d := 0; d < ntTaps; d++ {
					sum += wxyz * wt[d] * co.c[baseZ+it[d]]
				}
			}
		}
	}
	return sum
}

// SampleInto evaluates the spline at a set of coordinates, writing the
// interpolated intensities into dst. All slices must share one length.
func (co *Coefficients) SampleInto(dst, xs, ys, zs, ts []float64) {
	for i := range dst {
		dst[i] = co.Sample(xs[i], ys[i], zs[i], ts[i])
	}
}
