// Package volume provides the 4D intensity array shared by the motion
// correction pipeline. A Volume4D is a dense (x, y, z, t) scalar grid stored
// as a flat slice; it is treated as immutable once a run's correction starts.
package volume

import (
	"fmt"
)

// Volume4D is a dense 4-dimensional scalar field indexed (x, y, z, t).
// The time axis varies fastest in memory.
type Volume4D struct {
	Nx, Ny, Nz, Nt int
	data           []float64
}

// New allocates a zero-filled volume with the given dimensions.
func New(nx, ny, nz, nt int) (*Volume4D, error) {
	if nx < 1 || ny < 1 || nz < 1 || nt < 1 {
		return nil, fmt.Errorf("invalid volume dimensions %dx%dx%dx%d", nx, ny, nz, nt)
	}
	return &Volume4D{
		Nx: nx, Ny: ny, Nz: nz, Nt: nt,
		data: make([]float64, nx*ny*nz*nt),
	}, nil
}

// FromData wraps an existing flat intensity slice. The slice is used
// directly, not copied; its length must match the dimensions.
func FromData(nx, ny, nz, nt int, data []float64) (*Volume4D, error) {
	if nx < 1 || ny < 1 || nz < 1 || nt < 1 {
		return nil, fmt.Errorf("invalid volume dimensions %dx%dx%dx%d", nx, ny, nz, nt)
	}
	if len(data) != nx*ny*nz*nt {
		return nil, fmt.Errorf("data length %d does not match dimensions %dx%dx%dx%d",
			len(data), nx, ny, nz, nt)
	}
	return &Volume4D{Nx: nx, Ny: ny, Nz: nz, Nt: nt, data: data}, nil
}

func (v *Volume4D) index(x, y, z, t int) int {
	return ((x*v.Ny+y)*v.Nz+z)*v.Nt + t
}

// At returns the intensity at grid position (x, y, z, t).
func (v *Volume4D) At(x, y, z, t int) float64 {
	return v.data[v.index(x, y, z, t)]
}

// Set stores an intensity at grid position (x, y, z, t).
func (v *Volume4D) Set(x, y, z, t int, value float64) {
	v.data[v.index(x, y, z, t)] = value
}

// Data exposes the underlying flat slice, time axis fastest.
func (v *Volume4D) Data() []float64 {
	return v.data
}

// NumVoxels returns the spatial voxel count of one scan.
func (v *Volume4D) NumVoxels() int {
	return v.Nx * v.Ny * v.Nz
}

// TemporalMean averages the volume over its time axis, producing a single
// static scan. Used to build the representative image of a corrected run.
func (v *Volume4D) TemporalMean() *Volume4D {
	mean := &Volume4D{
		Nx: v.Nx, Ny: v.Ny, Nz: v.Nz, Nt: 1,
		data: make([]float64, v.Nx*v.Ny*v.Nz),
	}
	nt := float64(v.Nt)
	for i := 0; i < len(mean.data); i++ {
		sum := 0.0
		for t := 0; t < v.Nt; t++ {
			sum += v.data[i*v.Nt+t]
		}
		mean.data[i] = sum / nt
	}
	return mean
}

// StackMeans assembles per-run mean images (each Nt == 1) into a synthetic
// time series in which run index plays the role of scan index.
func StackMeans(means []*Volume4D) (*Volume4D, error) {
	if len(means) == 0 {
		return nil, fmt.Errorf("no mean images to stack")
	}
	first := means[0]
	out, err := New(first.Nx, first.Ny, first.Nz, len(means))
	if err != nil {
		return nil, err
	}
	for r, m := range means {
		if m.Nt != 1 {
			return nil, fmt.Errorf("mean image %d has %d time points, want 1", r, m.Nt)
		}
		if m.Nx != first.Nx || m.Ny != first.Ny || m.Nz != first.Nz {
			return nil, fmt.Errorf("mean image %d has grid %dx%dx%d, want %dx%dx%d",
				r, m.Nx, m.Ny, m.Nz, first.Nx, first.Ny, first.Nz)
		}
		for i, val := range m.data {
			out.data[i*len(means)+r] = val
		}
	}
	return out, nil
}
