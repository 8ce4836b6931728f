package volume

import (
	"math"
	"testing"
)

// TestNewValidation verifies dimension checks
func TestNewValidation(t *testing.T) {
	if _, err := New(0, 4, 4, 2); err == nil {
		t.Error("Expected error for zero dimension")
	}
	if _, err := FromData(2, 2, 2, 2, make([]float64, 15)); err == nil {
		t.Error("Expected error for mismatched data length")
	}
}

// TestAtSet verifies indexing round-trips
func TestAtSet(t *testing.T) {
	vol, err := New(3, 4, 5, 2)
	if err != nil {
		t.Fatalf("Failed to create volume: %v", err)
	}
	vol.Set(2, 3, 4, 1, 42.5)
	if got := vol.At(2, 3, 4, 1); got != 42.5 {
		t.Errorf("Expected 42.5, got %g", got)
	}
	if vol.NumVoxels() != 60 {
		t.Errorf("Expected 60 voxels, got %d", vol.NumVoxels())
	}
}

// TestTemporalMean verifies per-voxel averaging over the time axis
func TestTemporalMean(t *testing.T) {
	vol, err := New(2, 2, 1, 3)
	if err != nil {
		t.Fatalf("Failed to create volume: %v", err)
	}
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			for s := 0; s < 3; s++ {
				vol.Set(x, y, 0, s, float64(x+y)+float64(s))
			}
		}
	}
	mean := vol.TemporalMean()
	if mean.Nt != 1 {
		t.Fatalf("Expected single time point, got %d", mean.Nt)
	}
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			want := float64(x+y) + 1.0
			if got := mean.At(x, y, 0, 0); math.Abs(got-want) > 1e-15 {
				t.Errorf("Voxel (%d,%d): expected %g, got %g", x, y, want, got)
			}
		}
	}
}

// TestStackMeans verifies assembling run means into a synthetic series
func TestStackMeans(t *testing.T) {
	m1, _ := New(2, 2, 2, 1)
	m2, _ := New(2, 2, 2, 1)
	for i := range m1.Data() {
		m1.Data()[i] = 1.0
		m2.Data()[i] = 2.0
	}
	stacked, err := StackMeans([]*Volume4D{m1, m2})
	if err != nil {
		t.Fatalf("StackMeans failed: %v", err)
	}
	if stacked.Nt != 2 {
		t.Fatalf("Expected 2 time points, got %d", stacked.Nt)
	}
	if stacked.At(1, 1, 1, 0) != 1.0 || stacked.At(1, 1, 1, 1) != 2.0 {
		t.Errorf("Expected stacked values (1, 2), got (%g, %g)",
			stacked.At(1, 1, 1, 0), stacked.At(1, 1, 1, 1))
	}
}

// TestStackMeansValidation verifies shape checks
func TestStackMeansValidation(t *testing.T) {
	if _, err := StackMeans(nil); err == nil {
		t.Error("Expected error for empty mean list")
	}
	m1, _ := New(2, 2, 2, 1)
	m2, _ := New(2, 2, 2, 2)
	if _, err := StackMeans([]*Volume4D{m1, m2}); err == nil {
		t.Error("Expected error for non-static mean image")
	}
	m3, _ := New(3, 2, 2, 1)
	if _, err := StackMeans([]*Volume4D{m1, m3}); err == nil {
		t.Error("Expected error for mismatched grids")
	}
}
