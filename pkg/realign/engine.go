package realign

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"fmrirealign/pkg/optim"
	"fmrirealign/pkg/spline"
	"fmrirealign/pkg/transform"
	"fmrirealign/pkg/volume"
)

// Engine estimates per-scan rigid motion within one run. It owns a
// regularly subsampled voxel mask, one rigid transform per scan, the spline
// coefficient volume derived once from the raw data, and the mask-by-scan
// matrix of resampled intensities driving the cost function.
type Engine struct {
	series    *Series
	nscans    int
	optimizer string
	verbose   bool

	// Mask grid coordinates in the reference frame, one entry per mask
	// voxel; fixed for the engine's lifetime.
	maskX, maskY, maskZ []float64

	// data holds resampled intensities, one row per mask voxel and one
	// column per scan.
	data *mat.Dense

	transforms []*transform.Rigid
	timestamps []float64
	coeffs     *spline.Coefficients

	// Leave-one-out statistics fixed while one scan is optimized.
	m1    []float64
	d2    []float64
	alpha float64
	beta  float64

	// Resampling scratch, reused across cost evaluations.
	sx, sy, sz, st []float64
	composed       mat.Dense
	inner          mat.Dense
}

// NewEngine builds a motion estimation engine for one run. The optimizer
// name is validated first, before the O(volume) spline precompute, so a
// misconfiguration fails before any real work. Initial transforms default
// to the identity; a provided list must have one transform per scan.
func NewEngine(series *Series, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if err := optim.Validate(opts.Optimizer); err != nil {
		return nil, err
	}
	vol := series.Vol
	e := &Engine{
		series:    series,
		nscans:    vol.Nt,
		optimizer: opts.Optimizer,
		verbose:   opts.Verbose,
	}

	for x := 0; x < vol.Nx; x += opts.Speedup {
		for y := 0; y < vol.Ny; y += opts.Speedup {
			for z := 0; z < vol.Nz; z += opts.Speedup {
				e.maskX = append(e.maskX, float64(x))
				e.maskY = append(e.maskY, float64(y))
				e.maskZ = append(e.maskZ, float64(z))
			}
		}
	}
	maskSize := len(e.maskX)
	e.data = mat.NewDense(maskSize, e.nscans, nil)
	e.m1 = make([]float64, maskSize)
	e.d2 = make([]float64, maskSize)
	e.sx = make([]float64, maskSize)
	e.sy = make([]float64, maskSize)
	e.sz = make([]float64, maskSize)
	e.st = make([]float64, maskSize)

	if opts.Transforms != nil {
		if len(opts.Transforms) != e.nscans {
			return nil, fmt.Errorf("got %d initial transforms for %d scans",
				len(opts.Transforms), e.nscans)
		}
		e.transforms = opts.Transforms
	} else {
		e.transforms = make([]*transform.Rigid, e.nscans)
		for t := range e.transforms {
			e.transforms[t] = transform.NewRigid(transform.DefaultBrainRadius)
		}
	}

	e.timestamps = make([]float64, e.nscans)
	for t := range e.timestamps {
		e.timestamps[t] = series.Timing.TR * float64(t)
	}

	e.coeffs = spline.NewCoefficients(vol)
	return e, nil
}

// MaskSize returns the number of voxels in the subsampled mask.
func (e *Engine) MaskSize() int { return len(e.maskX) }

// Transforms returns the engine's per-scan transform list. The slice is
// shared with the engine: it reflects the current optimization state.
func (e *Engine) Transforms() []*transform.Rigid { return e.transforms }

// gridCoords maps reference grid coordinates to source grid coordinates
// under a candidate transform: inverse(Wsrc) * A * Wref applied pointwise.
func (e *Engine) gridCoords(a *mat.Dense, xs, ys, zs, ox, oy, oz []float64) {
	e.inner.Mul(a, e.series.World.Matrix())
	e.composed.Mul(e.series.World.Inverse(), &e.inner)
	transform.ApplyPoints(&e.composed, xs, ys, zs, ox, oy, oz)
}

// ResampleMasked resamples scan t under its current transform into the
// scan's column of the sample matrix. The z coordinate of every mask point
// is resolved through the slice timing model to a grid time, so spatial
// motion and slice timing are corrected in a single 4D interpolation.
func (e *Engine) ResampleMasked(t int) {
	e.gridCoords(e.transforms[t].Matrix(), e.maskX, e.maskY, e.maskZ, e.sx, e.sy, e.sz)
	stamp := e.timestamps[t]
	for i := range e.sz {
		e.st[i] = e.series.Timing.ToGridTime(e.sz[i], stamp)
	}
	for i := range e.sx {
		e.data.Set(i, t, e.coeffs.Sample(e.sx[i], e.sy[i], e.sz[i], e.st[i]))
	}
}

// ResampleAllMasked refreshes every scan's column under the current
// transforms.
func (e *Engine) ResampleAllMasked() {
	for t := 0; t < e.nscans; t++ {
		if e.verbose {
			fmt.Printf("Resampling scan %d/%d\n", t+1, e.nscans)
		}
		e.ResampleMasked(t)
	}
}

// BeginMotionDetection freezes the statistics of all scans except t before
// t's transform is optimized. The global intensity variance decomposes as
//
//	V = (n-1)/n * V1 + (n-1)/n^2 * (x1-m1)^2
//	  = alpha + beta * d2
//
// where V1 and m1 are the variance and mean over the fixed scans. Only the
// d2 term changes while scan t moves, so each cost evaluation stays O(mask)
// instead of O(mask * nscans).
//
// The sample matrix must already be resampled; CorrectMotion refreshes it
// once per sweep.
func (e *Engine) BeginMotionDetection(t int) {
	e.ResampleMasked(t)
	n := float64(e.nscans)
	m := float64(e.nscans - 1)
	fixed := make([]float64, e.nscans-1)
	v1 := e.d2 // reuse scratch for the per-voxel fixed-scan variance
	for i := range e.m1 {
		k := 0
		for s := 0; s < e.nscans; s++ {
			if s == t {
				continue
			}
			fixed[k] = e.data.At(i, s)
			k++
		}
		mean := floats.Sum(fixed) / m
		e.m1[i] = mean
		v1[i] = floats.Dot(fixed, fixed)/m - mean*mean
	}
	e.alpha = (n - 1) / n * stat.Mean(v1, nil)
	e.beta = (n - 1) / (n * n)
}

// MSID is the mean square intensity difference between scan t (resampled
// under its current transform) and the leave-one-out mean. This is the
// quantity minimized per scan; alpha and beta are constant while scan t is
// the one moving, so minimizing MSID minimizes the variance.
func (e *Engine) MSID(t int) float64 {
	e.ResampleMasked(t)
	for i := range e.d2 {
		d := e.data.At(i, t) - e.m1[i]
		e.d2[i] = d * d
	}
	return stat.Mean(e.d2, nil)
}

// Variance reports the full leave-one-out variance estimate for scan t
// using the frozen decomposition.
func (e *Engine) Variance(t int) float64 {
	return e.alpha + e.beta*e.MSID(t)
}

// SafeVariance recomputes the mean intensity variance across all scans from
// scratch, without the leave-one-out decomposition. Diagnostic only; it is
// never called inside the optimization loop.
func (e *Engine) SafeVariance(t int) float64 {
	e.ResampleMasked(t)
	n := float64(e.nscans)
	v := make([]float64, len(e.m1))
	for i := range v {
		sum, sumSq := 0.0, 0.0
		for s := 0; s < e.nscans; s++ {
			x := e.data.At(i, s)
			sum += x
			sumSq += x * x
		}
		mean := sum / n
		v[i] = sumSq/n - mean*mean
	}
	return stat.Mean(v, nil)
}

// CorrectMotion runs one full coordinate-descent sweep: resample every scan
// under the current transforms, then optimize each scan's rigid parameters
// in strict index order. The ordering matters: each scan's cost depends on
// the just-updated transforms of the scans processed before it, so this
// loop must not be parallelized.
func (e *Engine) CorrectMotion() error {
	e.ResampleAllMasked()
	for t := 0; t < e.nscans; t++ {
		if e.verbose {
			fmt.Printf("Correcting motion of scan %d/%d...\n", t+1, e.nscans)
		}
		e.BeginMotionDetection(t)
		tr := e.transforms[t]
		scan := t
		loss := func(p []float64) float64 {
			tr.SetParams(p)
			return e.MSID(scan)
		}
		p, err := optim.Minimize(e.optimizer, loss, tr.Params())
		if err != nil {
			return fmt.Errorf("optimizing scan %d: %w", t, err)
		}
		tr.SetParams(p)
		if e.verbose {
			fmt.Printf("  %v\n", tr)
		}
	}
	return nil
}

// ResampleFull resamples the entire voxel grid of every scan under its
// final transform, producing the motion- and slice-timing-corrected volume.
func (e *Engine) ResampleFull() *volume.Volume4D {
	vol := e.series.Vol
	nvox := vol.NumVoxels()
	xs := make([]float64, nvox)
	ys := make([]float64, nvox)
	zs := make([]float64, nvox)
	i := 0
	for x := 0; x < vol.Nx; x++ {
		for y := 0; y < vol.Ny; y++ {
			for z := 0; z < vol.Nz; z++ {
				xs[i], ys[i], zs[i] = float64(x), float64(y), float64(z)
				i++
			}
		}
	}
	ox := make([]float64, nvox)
	oy := make([]float64, nvox)
	oz := make([]float64, nvox)
	out, _ := volume.New(vol.Nx, vol.Ny, vol.Nz, vol.Nt)
	for t := 0; t < e.nscans; t++ {
		if e.verbose {
			fmt.Printf("Fully resampling scan %d/%d\n", t+1, e.nscans)
		}
		e.gridCoords(e.transforms[t].Matrix(), xs, ys, zs, ox, oy, oz)
		stamp := e.timestamps[t]
		i = 0
		for x := 0; x < vol.Nx; x++ {
			for y := 0; y < vol.Ny; y++ {
				for z := 0; z < vol.Nz; z++ {
					gt := e.series.Timing.ToGridTime(oz[i], stamp)
					out.Set(x, y, z, t, e.coeffs.Sample(ox[i], oy[i], oz[i], gt))
					i++
				}
			}
		}
	}
	return out
}
