package calib

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// residualFunc writes the residual vector for params into dst.
type residualFunc func(dst, params []float64)

type lmSettings struct {
	maxIterations int
	// relative cost decrease below which the solve stops
	tolerance float64
}

type lmResult struct {
	params     []float64
	cost       float64
	iterations int
}

const (
	lmInitialLambda = 1e-3
	lmMaxLambda     = 1e16
	jacobianStep    = 1e-6
)

// sumSquares returns the sum of squared residuals; NaN residuals, from points
// projected behind a camera, make the cost infinite.
func sumSquares(r []float64) float64 {
	s := floats.Dot(r, r)
	if math.IsNaN(s) {
		return math.Inf(1)
	}
	return s
}

// levenbergMarquardt minimises the sum of squares of f over params starting at
// x0, with m residuals. The Jacobian is taken by central differences. A step
// is only accepted if it lowers the cost, so the returned cost never exceeds
// the cost at x0.
func levenbergMarquardt(f residualFunc, m int, x0 []float64, settings lmSettings) lmResult {
	n := len(x0)
	x := append([]float64(nil), x0...)
	r := make([]float64, m)
	f(r, x)
	cost := sumSquares(r)
	if n == 0 || math.IsInf(cost, 1) {
		return lmResult{params: x, cost: cost}
	}

	jac := mat.NewDense(m, n, nil)
	jacSettings := &fd.JacobianSettings{Formula: fd.Central, Step: jacobianStep}
	var jtj mat.SymDense
	grad := mat.NewVecDense(n, nil)
	step := mat.NewVecDense(n, nil)
	trial := make([]float64, n)
	rTrial := make([]float64, m)
	lambda := lmInitialLambda

	iter := 0
	for ; iter < settings.maxIterations; iter++ {
		fd.Jacobian(jac, f, x, jacSettings)
		jtj.SymOuterK(1, jac.T())
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		maxDiag := 0.0
		for i := 0; i < n; i++ {
			maxDiag = math.Max(maxDiag, jtj.At(i, i))
		}
		if maxDiag == 0 {
			break
		}

		improved := false
		for lambda < lmMaxLambda {
			damped := mat.NewSymDense(n, nil)
			damped.CopySym(&jtj)
			for i := 0; i < n; i++ {
				d := math.Max(jtj.At(i, i), 1e-12*maxDiag)
				damped.SetSym(i, i, jtj.At(i, i)+lambda*d)
			}
			var chol mat.Cholesky
			if !chol.Factorize(damped) {
				lambda *= 10
				continue
			}
			if err := chol.SolveVecTo(step, grad); err != nil {
				lambda *= 10
				continue
			}
			for i := range trial {
				trial[i] = x[i] - step.AtVec(i)
			}
			f(rTrial, trial)
			trialCost := sumSquares(rTrial)
			if trialCost < cost {
				decrease := cost - trialCost
				copy(x, trial)
				copy(r, rTrial)
				cost = trialCost
				lambda = math.Max(lambda/10, 1e-12)
				improved = true
				if decrease <= settings.tolerance*cost || cost == 0 {
					return lmResult{params: x, cost: cost, iterations: iter + 1}
				}
				break
			}
			lambda *= 10
		}
		if !improved {
			break
		}
	}
	return lmResult{params: x, cost: cost, iterations: iter}
}
