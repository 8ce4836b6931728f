// Package optim selects and drives the derivative-free minimizer used for
// per-scan motion estimation. Three methods are supported: downhill simplex
// and nonlinear conjugate gradient come from gonum/optimize (the gradient
// for the latter is approximated by finite differences, since the
// registration cost is a black box), and Powell's direction-set method is
// implemented here.
package optim

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"
)

// Recognized optimizer names.
const (
	Simplex           = "simplex"
	Powell            = "powell"
	ConjugateGradient = "conjugate-gradient"
)

// Validate rejects unrecognized optimizer names. Callers check the name
// before doing any resampling work so a misconfiguration fails fast.
func Validate(name string) error {
	switch name {
	case Simplex, Powell, ConjugateGradient:
		return nil
	}
	return fmt.Errorf("unrecognized optimizer %q (want %q, %q or %q)",
		name, Simplex, Powell, ConjugateGradient)
}

// Minimize runs the named method on f starting from x0 and returns the best
// parameter vector found. The returned vector is accepted unconditionally
// by the caller: iteration-limit statuses are tolerated as long as the
// method produced a usable location, matching the pipeline's policy of
// proceeding with whatever the optimizer returns.
func Minimize(name string, f func([]float64) float64, x0 []float64) ([]float64, error) {
	switch name {
	case Powell:
		return powell(f, x0), nil
	case Simplex:
		return minimizeGonum(optimize.Problem{Func: f}, x0, &optimize.NelderMead{})
	case ConjugateGradient:
		problem := optimize.Problem{
			Func: f,
			Grad: func(grad, x []float64) {
				fd.Gradient(grad, f, x, nil)
			},
		}
		return minimizeGonum(problem, x0, &optimize.CG{})
	}
	return nil, Validate(name)
}

func minimizeGonum(problem optimize.Problem, x0 []float64, method optimize.Method) ([]float64, error) {
	result, err := optimize.Minimize(problem, x0, nil, method)
	if result != nil && result.X != nil {
		return result.X, nil
	}
	if err != nil {
		return nil, fmt.Errorf("minimization failed: %v", err)
	}
	return nil, fmt.Errorf("minimization produced no result")
}
