// Package timing models the slice-by-slice acquisition timing of an fMRI
// run. Each slice of a volume is sampled at a slightly different moment, so
// the realignment engine needs to convert between grid time (fractional scan
// index) and physical scanner time for a given slice.
package timing

import (
	"fmt"
	"math"
)

// Order names a slice acquisition ordering policy.
type Order string

const (
	Ascending  Order = "ascending"
	Descending Order = "descending"
)

// DefaultTRSlices signals that the inter-slice repetition time should
// default to TR / NSlices.
const DefaultTRSlices = -1.0

// Acquisition encodes the timing of one run: repetition time, inter-slice
// time, start offset and the order in which physical slices are acquired.
type Acquisition struct {
	NSlices  int
	TR       float64
	TRSlices float64
	Start    float64
	Reversed bool

	// order[k] is the physical slice acquired k-th; rank is its inverse.
	order []int
	rank  []int
}

// BuildOrder constructs the acquisition sequence for a named policy.
// Interleaved acquisition alternates the two halves of the stack
// (0, p, 1, p+1, ... with p = nslices/2), appending the last slice when the
// count is odd; descending reverses the resulting sequence.
func BuildOrder(nslices int, policy Order, interleaved bool) []int {
	seq := make([]int, 0, nslices)
	if !interleaved {
		for i := 0; i < nslices; i++ {
			seq = append(seq, i)
		}
	} else {
		p := nslices / 2
		for i := 0; i < p; i++ {
			seq = append(seq, i, p+i)
		}
		if nslices%2 != 0 {
			seq = append(seq, nslices-1)
		}
	}
	if policy == Descending {
		for i, j := 0, len(seq)-1; i < j; i, j = i+1, j-1 {
			seq[i], seq[j] = seq[j], seq[i]
		}
	}
	return seq
}

// NewAcquisition validates and assembles the timing model for one run.
// A nil order means ascending; trSlices == DefaultTRSlices selects the
// conventional TR/NSlices spacing. An explicit order must be a permutation
// of 0..nslices-1.
func NewAcquisition(nslices int, tr, trSlices, start float64, order []int, reversed bool) (*Acquisition, error) {
	if nslices < 1 {
		return nil, fmt.Errorf("invalid slice count %d", nslices)
	}
	if tr <= 0 {
		return nil, fmt.Errorf("repetition time must be positive, got %g", tr)
	}
	if trSlices == DefaultTRSlices {
		trSlices = tr / float64(nslices)
	}
	if trSlices < 0 {
		return nil, fmt.Errorf("inter-slice repetition time must be non-negative, got %g", trSlices)
	}
	if order == nil {
		order = BuildOrder(nslices, Ascending, false)
	}
	if len(order) != nslices {
		return nil, fmt.Errorf("slice order has %d entries, want %d", len(order), nslices)
	}
	rank := make([]int, nslices)
	seen := make([]bool, nslices)
	for k, slice := range order {
		if slice < 0 || slice >= nslices || seen[slice] {
			return nil, fmt.Errorf("slice order is not a permutation of 0..%d", nslices-1)
		}
		seen[slice] = true
		rank[slice] = k
	}
	a := &Acquisition{
		NSlices:  nslices,
		TR:       tr,
		TRSlices: trSlices,
		Start:    start,
		Reversed: reversed,
		order:    append([]int(nil), order...),
		rank:     rank,
	}
	return a, nil
}

// AcquisitionOrder returns a copy of the acquisition sequence.
func (a *Acquisition) AcquisitionOrder() []int {
	return append([]int(nil), a.order...)
}

// physicalSlice translates a grid slice index through the reversed-slices
// convention (slice 0 stored at the top versus the bottom of the head) and
// clamps fractional resampling coordinates to the nearest valid slice.
func (a *Acquisition) physicalSlice(z float64) int {
	i := int(math.Round(z))
	if i < 0 {
		i = 0
	} else if i >= a.NSlices {
		i = a.NSlices - 1
	}
	if a.Reversed {
		return a.NSlices - 1 - i
	}
	return i
}

// SliceTime returns the acquisition time offset of slice z within one
// volume repetition: its rank in the acquisition sequence times the
// inter-slice repetition time.
func (a *Acquisition) SliceTime(z float64) float64 {
	return a.TRSlices * float64(a.rank[a.physicalSlice(z)])
}

// ToAcquisitionTime converts a (slice, grid time) pair to physical scanner
// time: start + TR*t + slice offset.
func (a *Acquisition) ToAcquisitionTime(z, t float64) float64 {
	return a.Start + a.TR*t + a.SliceTime(z)
}

// ToGridTime is the exact inverse of ToAcquisitionTime in its second
// argument: it recovers the fractional scan index at which slice z was
// sampled at the given physical time.
func (a *Acquisition) ToGridTime(z, time float64) float64 {
	return (time - a.Start - a.SliceTime(z)) / a.TR
}
