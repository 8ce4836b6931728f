package optim

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	powellMaxIter = 100
	powellTol     = 1e-8
	bracketTries  = 12
	goldenRatio   = 0.6180339887498949
	goldenTol     = 1e-6
)

// powell minimizes f with Powell's direction-set method: cycle through a set
// of search directions, line-minimizing along each, then replace the
// direction of largest decrease with the net displacement of the cycle when
// Powell's criterion says that improves the set.
func powell(f func([]float64) float64, x0 []float64) []float64 {
	n := len(x0)
	x := append([]float64(nil), x0...)
	dirs := make([][]float64, n)
	for i := range dirs {
		dirs[i] = make([]float64, n)
		dirs[i][i] = 1
	}
	fx := f(x)

	for iter := 0; iter < powellMaxIter; iter++ {
		fBegin := fx
		xBegin := append([]float64(nil), x...)
		delta, deltaIdx := 0.0, 0

		for i := 0; i < n; i++ {
			fPrev := fx
			fx = lineMinimize(f, x, dirs[i], fx)
			if drop := fPrev - fx; drop > delta {
				delta, deltaIdx = drop, i
			}
		}

		if 2*(fBegin-fx) <= powellTol*(math.Abs(fBegin)+math.Abs(fx))+1e-20 {
			break
		}

		// Extrapolate the cycle's net displacement and test Powell's
		// direction-replacement criterion.
		dirNew := make([]float64, n)
		ext := make([]float64, n)
		for i := range x {
			dirNew[i] = x[i] - xBegin[i]
			ext[i] = 2*x[i] - xBegin[i]
		}
		fExt := f(ext)
		if fExt < fBegin {
			d1 := fBegin - fx - delta
			d2 := fBegin - fExt
			t := 2*(fBegin-2*fx+fExt)*d1*d1 - delta*d2*d2
			if t < 0 {
				fx = lineMinimize(f, x, dirNew, fx)
				dirs[deltaIdx] = dirs[n-1]
				dirs[n-1] = dirNew
			}
		}
	}
	return x
}

// lineMinimize minimizes g(a) = f(x + a*d), updates x in place and returns
// the new function value. When no descent direction can be bracketed
// (e.g. a locally flat cost) the point is left unchanged.
func lineMinimize(f func([]float64) float64, x, d []float64, fx float64) float64 {
	trial := make([]float64, len(x))
	g := func(a float64) float64 {
		copy(trial, x)
		floats.AddScaled(trial, a, d)
		return f(trial)
	}
	lo, hi, ok := bracket(g, fx)
	if !ok {
		return fx
	}
	aMin, fMin := goldenSection(g, lo, hi)
	if fMin >= fx {
		return fx
	}
	floats.AddScaled(x, aMin, d)
	return fMin
}

// bracket searches both directions along the line for a step that decreases
// the cost, then expands until the cost rises again, returning an interval
// containing a minimizer.
func bracket(g func(float64) float64, g0 float64) (lo, hi float64, ok bool) {
	// Require a decrease beyond floating-point noise, so a numerically flat
	// cost (e.g. an already-aligned static series) leaves the point alone.
	descent := g0 - 1e-12 - 1e-8*math.Abs(g0)
	step := 1.0
	for try := 0; try < bracketTries; try++ {
		for _, s := range [2]float64{step, -step} {
			gs := g(s)
			if gs >= descent {
				continue
			}
			a, b := 0.0, s
			fb := gs
			c := 2 * s
			fc := g(c)
			for expand := 0; fc < fb && expand < 40; expand++ {
				a, b, fb = b, c, fc
				c *= 2
				fc = g(c)
			}
			if a < c {
				return a, c, true
			}
			return c, a, true
		}
		step /= 4
	}
	return 0, 0, false
}

// goldenSection performs a golden-section search on [lo, hi], assuming the
// bracketed cost is unimodal there.
func goldenSection(g func(float64) float64, lo, hi float64) (float64, float64) {
	x1 := hi - goldenRatio*(hi-lo)
	x2 := lo + goldenRatio*(hi-lo)
	f1, f2 := g(x1), g(x2)
	for math.Abs(hi-lo) > goldenTol*(math.Abs(lo)+math.Abs(hi))+1e-12 {
		if f1 < f2 {
			hi, x2, f2 = x2, x1, f1
			x1 = hi - goldenRatio*(hi-lo)
			f1 = g(x1)
		} else {
			lo, x1, f1 = x1, x2, f2
			x2 = lo + goldenRatio*(hi-lo)
			f2 = g(x2)
		}
	}
	if f1 < f2 {
		return x1, f1
	}
	return x2, f2
}
