// Package realign implements rigid-body motion correction of 4D fMRI time
// series with integrated slice-timing correction. Each scan of a run gets
// its own rigid transform, estimated by minimizing a leave-one-out intensity
// variance cost over a subsampled voxel mask; multiple runs are corrected
// within-run first and then aligned to each other through their mean images.
package realign

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"fmrirealign/pkg/timing"
	"fmrirealign/pkg/transform"
	"fmrirealign/pkg/volume"
)

// Series ties together everything one acquisition run owns: the raw 4D
// intensity volume, the voxel-to-world map of its grid and the slice
// acquisition timing.
type Series struct {
	Vol    *volume.Volume4D
	World  *transform.Affine
	Timing *timing.Acquisition
}

// NewSeries validates a run. The world map must be invertible (checked by
// transform.NewAffine) and the timing model must describe exactly the
// volume's slice count.
func NewSeries(vol *volume.Volume4D, world *mat.Dense, acq *timing.Acquisition) (*Series, error) {
	if vol == nil {
		return nil, fmt.Errorf("nil volume")
	}
	aff, err := transform.NewAffine(world)
	if err != nil {
		return nil, err
	}
	if acq == nil {
		return nil, fmt.Errorf("nil acquisition timing")
	}
	if acq.NSlices != vol.Nz {
		return nil, fmt.Errorf("timing model has %d slices, volume has %d", acq.NSlices, vol.Nz)
	}
	return &Series{Vol: vol, World: aff, Timing: acq}, nil
}

// Options is the configuration surface of the realignment entry points.
// The zero value of each field selects its documented default.
type Options struct {
	// WithinLoops is the number of coordinate-descent sweeps inside each
	// run (default 2). The leave-one-out reference mean improves as the
	// transforms improve, so the sweep is repeated.
	WithinLoops int

	// BetweenLoops is the number of sweeps used to align run-mean images
	// to each other (default 5).
	BetweenLoops int

	// Speedup is the voxel mask subsampling stride (default 4, coerced
	// to at least 1).
	Speedup int

	// Optimizer selects the derivative-free minimizer: "simplex",
	// "powell" or "conjugate-gradient" (default "powell"). Unrecognized
	// names are a configuration error.
	Optimizer string

	// Verbose enables per-scan progress reporting.
	Verbose bool

	// Transforms optionally seeds the engine with initial per-scan
	// transforms instead of the identity.
	Transforms []*transform.Rigid
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		WithinLoops:  2,
		BetweenLoops: 5,
		Speedup:      4,
		Optimizer:    "powell",
	}
}

// withDefaults fills zero-valued fields and coerces the mask stride.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.WithinLoops == 0 {
		o.WithinLoops = def.WithinLoops
	}
	if o.BetweenLoops == 0 {
		o.BetweenLoops = def.BetweenLoops
	}
	if o.Speedup == 0 {
		o.Speedup = def.Speedup
	}
	if o.Speedup < 1 {
		o.Speedup = 1
	}
	if o.Optimizer == "" {
		o.Optimizer = def.Optimizer
	}
	return o
}
