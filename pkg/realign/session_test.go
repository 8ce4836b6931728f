package realign

import (
	"math"
	"testing"

	"fmrirealign/pkg/volume"
)

// meanSquareDiff computes the voxelwise MSE between two static images
func meanSquareDiff(a, b *volume.Volume4D) float64 {
	da, db := a.Data(), b.Data()
	sum := 0.0
	for i := range da {
		d := da[i] - db[i]
		sum += d * d
	}
	return sum / float64(len(da))
}

// TestRealignRunsEmpty verifies input validation
func TestRealignRunsEmpty(t *testing.T) {
	if _, err := RealignRuns(nil, Options{}); err == nil {
		t.Error("Expected error for empty run list")
	}
}

// TestSingleRunShortCircuit verifies that a single run skips the
// between-run pass entirely: the multi-run output equals the plain
// within-run correction
func TestSingleRunShortCircuit(t *testing.T) {
	series := makeSeries(t, 8, 7, 5, 2, true, 0)
	opts := Options{WithinLoops: 1, Speedup: 2, Optimizer: "powell"}

	multi, err := RealignRuns([]*Series{series}, opts)
	if err != nil {
		t.Fatalf("RealignRuns failed: %v", err)
	}
	if len(multi) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(multi))
	}

	single, err := Realign(series, opts)
	if err != nil {
		t.Fatalf("Realign failed: %v", err)
	}
	if len(multi[0]) != len(single) {
		t.Fatalf("Expected %d transforms, got %d", len(single), len(multi[0]))
	}
	for scan := range single {
		want := single[scan].Params()
		got := multi[0][scan].Params()
		for i := range want {
			if math.Abs(got[i]-want[i]) > 1e-10 {
				t.Errorf("Scan %d parameter %d: expected %g, got %g", scan, i, want[i], got[i])
			}
		}
	}
}

// TestTwoIdenticalRuns verifies that identical, already-aligned runs come
// out of the two-level correction with identity transforms
func TestTwoIdenticalRuns(t *testing.T) {
	run1 := makeSeries(t, 8, 7, 5, 2, true, 0)
	run2 := makeSeries(t, 8, 7, 5, 2, true, 0)
	opts := Options{WithinLoops: 1, BetweenLoops: 1, Speedup: 2, Optimizer: "powell"}

	transforms, err := RealignRuns([]*Series{run1, run2}, opts)
	if err != nil {
		t.Fatalf("RealignRuns failed: %v", err)
	}
	if len(transforms) != 2 || len(transforms[0]) != 2 || len(transforms[1]) != 2 {
		t.Fatalf("Unexpected transform shape: %d runs", len(transforms))
	}
	for r := range transforms {
		for scan, tr := range transforms[r] {
			for i, p := range tr.Params() {
				if math.Abs(p) > 1e-6 {
					t.Errorf("Run %d scan %d parameter %d: expected identity, got %g", r, scan, i, p)
				}
			}
		}
	}
}

// TestBetweenRunCorrection verifies the two-level scheme on a synthetic
// pair of runs with a known one-voxel offset between them: the estimated
// between-run transforms must approximately cancel the injected shift, and
// the corrected run means must agree far better than the raw ones
func TestBetweenRunCorrection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping between-run integration test in short mode")
	}
	run1 := makeSeries(t, 12, 10, 6, 2, true, 0)
	run2 := makeSeries(t, 12, 10, 6, 2, true, 1.0)
	opts := Options{WithinLoops: 1, BetweenLoops: 2, Speedup: 1, Optimizer: "powell"}

	transforms, err := RealignRuns([]*Series{run1, run2}, opts)
	if err != nil {
		t.Fatalf("RealignRuns failed: %v", err)
	}

	// The runs were static, so the within-run level is the identity and the
	// final transforms are the between-run corrections. Aligning the two
	// blobs requires a relative x translation of -1 voxel.
	p1 := transforms[0][0].Params()
	p2 := transforms[1][0].Params()
	relX := p1[0] - p2[0]
	if math.Abs(relX+1.0) > 0.4 {
		t.Errorf("Expected relative x translation near -1, got %g", relX)
	}
	for i := 1; i < 3; i++ {
		if math.Abs(p1[i]-p2[i]) > 0.3 {
			t.Errorf("Expected negligible relative translation on axis %d, got %g", i, p1[i]-p2[i])
		}
	}

	// Corrected mean images must agree much better than the raw ones.
	rawMSE := meanSquareDiff(run1.Vol.TemporalMean(), run2.Vol.TemporalMean())
	corr1, err := Resample4D(run1, transforms[0])
	if err != nil {
		t.Fatalf("Resample4D failed: %v", err)
	}
	corr2, err := Resample4D(run2, transforms[1])
	if err != nil {
		t.Fatalf("Resample4D failed: %v", err)
	}
	corrMSE := meanSquareDiff(corr1.TemporalMean(), corr2.TemporalMean())
	if corrMSE > 0.5*rawMSE {
		t.Errorf("Expected corrected MSE well below raw MSE %g, got %g", rawMSE, corrMSE)
	}
}

// TestRunGridMismatch verifies that runs with different grids are rejected
// before the between-run pass
func TestRunGridMismatch(t *testing.T) {
	run1 := makeSeries(t, 8, 7, 5, 2, true, 0)
	run2 := makeSeries(t, 8, 7, 6, 2, true, 0)
	opts := Options{WithinLoops: 1, BetweenLoops: 1, Speedup: 2, Optimizer: "powell"}
	if _, err := RealignRuns([]*Series{run1, run2}, opts); err == nil {
		t.Error("Expected error for mismatched run grids")
	}
}

// TestResample4DIdentity verifies the convenience resampler with a nil
// transform list on a static series
func TestResample4DIdentity(t *testing.T) {
	series := makeSeries(t, 7, 6, 5, 2, true, 0)
	out, err := Resample4D(series, nil)
	if err != nil {
		t.Fatalf("Resample4D failed: %v", err)
	}
	vol := series.Vol
	for x := 0; x < vol.Nx; x++ {
		for y := 0; y < vol.Ny; y++ {
			for z := 0; z < vol.Nz; z++ {
				for s := 0; s < vol.Nt; s++ {
					if math.Abs(out.At(x, y, z, s)-vol.At(x, y, z, s)) > 1e-7 {
						t.Errorf("Voxel (%d,%d,%d,%d) changed under identity resampling", x, y, z, s)
					}
				}
			}
		}
	}
}
