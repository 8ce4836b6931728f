package realign

import (
	"fmt"

	"fmrirealign/pkg/timing"
	"fmrirealign/pkg/transform"
	"fmrirealign/pkg/volume"
)

// Realign estimates one rigid transform per scan of a single run, repeating
// the coordinate-descent sweep loops times (the reference mean improves as
// the transforms do).
func Realign(series *Series, opts Options) ([]*transform.Rigid, error) {
	opts = opts.withDefaults()
	engine, err := NewEngine(series, opts)
	if err != nil {
		return nil, err
	}
	for loop := 0; loop < opts.WithinLoops; loop++ {
		if err := engine.CorrectMotion(); err != nil {
			return nil, fmt.Errorf("within-run correction loop %d: %w", loop+1, err)
		}
	}
	return engine.Transforms(), nil
}

// Resample4D resamples a corrected volume over the full grid. A nil
// transform list resamples under the identity, which applies the
// slice-timing correction alone.
func Resample4D(series *Series, transforms []*transform.Rigid) (*volume.Volume4D, error) {
	engine, err := NewEngine(series, Options{Transforms: transforms})
	if err != nil {
		return nil, err
	}
	return engine.ResampleFull(), nil
}

// RealignRuns performs two-level motion correction over several acquisition
// runs. Each run is first corrected independently; the temporal mean of
// every corrected run then forms one scan of a synthetic series whose
// realignment yields one between-run transform per run. The final transform
// for scan i of run r is between[r] composed after within[r][i], so the
// within-run correction applies first.
//
// A single run short-circuits: its within-run transforms are returned
// without a between-run pass.
func RealignRuns(runs []*Series, opts Options) ([][]*transform.Rigid, error) {
	opts = opts.withDefaults()
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs to realign")
	}
	// Seeded transforms belong to a single engine; every run starts from
	// its own identity list.
	opts.Transforms = nil

	within := make([][]*transform.Rigid, len(runs))
	for r, run := range runs {
		if opts.Verbose {
			fmt.Printf("Realigning run %d/%d\n", r+1, len(runs))
		}
		transforms, err := Realign(run, opts)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", r+1, err)
		}
		within[r] = transforms
	}
	if len(runs) == 1 {
		return within, nil
	}

	means, err := runMeans(runs, within, opts)
	if err != nil {
		return nil, err
	}
	meanSeries, err := meanImageSeries(runs, means)
	if err != nil {
		return nil, err
	}

	betweenOpts := opts
	betweenOpts.WithinLoops = opts.BetweenLoops
	betweenOpts.Transforms = nil
	if opts.Verbose {
		fmt.Printf("Aligning %d run-mean images\n", len(runs))
	}
	between, err := Realign(meanSeries, betweenOpts)
	if err != nil {
		return nil, fmt.Errorf("between-run correction: %w", err)
	}

	final := make([][]*transform.Rigid, len(runs))
	for r := range runs {
		final[r] = make([]*transform.Rigid, len(within[r]))
		for i, w := range within[r] {
			final[r][i] = transform.Compose(between[r], w)
		}
	}
	return final, nil
}

// runMeans resamples each corrected run over the full grid and reduces it
// to its temporal mean image.
func runMeans(runs []*Series, within [][]*transform.Rigid, opts Options) ([]*volume.Volume4D, error) {
	means := make([]*volume.Volume4D, len(runs))
	for r, run := range runs {
		if opts.Verbose {
			fmt.Printf("Resampling corrected run %d/%d\n", r+1, len(runs))
		}
		corrected, err := Resample4D(run, within[r])
		if err != nil {
			return nil, fmt.Errorf("resampling run %d: %w", r+1, err)
		}
		means[r] = corrected.TemporalMean()
	}
	return means, nil
}

// meanImageSeries stacks the run means into a synthetic time series in
// which each run's mean image plays the role of one scan. The means are
// already corrected static images, so the series carries no intra-volume
// slice timing (tr = 1, trSlices = 0). All runs must share the first run's
// grid; the first run's voxel-to-world map describes the stack.
func meanImageSeries(runs []*Series, means []*volume.Volume4D) (*Series, error) {
	first := runs[0].Vol
	for r, run := range runs[1:] {
		v := run.Vol
		if v.Nx != first.Nx || v.Ny != first.Ny || v.Nz != first.Nz {
			return nil, fmt.Errorf("run %d grid %dx%dx%d differs from run 1 grid %dx%dx%d",
				r+2, v.Nx, v.Ny, v.Nz, first.Nx, first.Ny, first.Nz)
		}
	}
	stacked, err := volume.StackMeans(means)
	if err != nil {
		return nil, fmt.Errorf("stacking run means: %w", err)
	}
	acq, err := timing.NewAcquisition(stacked.Nz, 1.0, 0.0, 0.0, nil, false)
	if err != nil {
		return nil, err
	}
	return NewSeries(stacked, runs[0].World.Matrix(), acq)
}
