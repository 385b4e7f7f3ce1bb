package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// WelchResult holds the per-voxel outcome of the two-group comparison.
// MeanDiff keeps its sign (group B minus group A).
type WelchResult struct {
	T        []float64
	P        []float64
	MeanDiff []float64
}

// WelchTTest computes, per voxel, Welch's unequal-variance two-sample
// t-statistic and its two-sided p-value from the accumulated group
// summaries alone; the raw volumes are never revisited. Degrees of
// freedom follow the Welch-Satterthwaite approximation. Voxels where both
// groups have zero variance get t=0 and p=1 by convention, so no NaN or
// Inf ever propagates downstream.
func WelchTTest(a, b *Moments) (*WelchResult, error) {
	if a.Count < 2 || b.Count < 2 {
		return nil, fmt.Errorf("%w: each group needs at least two volumes (got %d and %d)",
			ErrInsufficientSamples, a.Count, b.Count)
	}
	if a.Shape != b.Shape {
		return nil, &ShapeMismatchError{Path: "group B", Want: a.Shape, Got: b.Shape}
	}

	varA := a.Variance()
	varB := b.Variance()
	nA := float64(a.Count)
	nB := float64(b.Count)

	res := &WelchResult{
		T:        make([]float64, len(a.Mean)),
		P:        make([]float64, len(a.Mean)),
		MeanDiff: make([]float64, len(a.Mean)),
	}

	for i := range a.Mean {
		res.MeanDiff[i] = b.Mean[i] - a.Mean[i]

		sa := varA[i] / nA
		sb := varB[i] / nB
		se2 := sa + sb
		if se2 == 0 {
			// Both groups are constant at this voxel: no evidence of
			// a difference rather than an undefined statistic.
			res.T[i] = 0
			res.P[i] = 1
			continue
		}

		t := (b.Mean[i] - a.Mean[i]) / math.Sqrt(se2)
		df := se2 * se2 / (sa*sa/(nA-1) + sb*sb/(nB-1))

		res.T[i] = t
		res.P[i] = twoSidedP(t, df)
	}
	return res, nil
}

// twoSidedP evaluates the two-sided p-value of t under Student's t
// distribution with df degrees of freedom.
func twoSidedP(t, df float64) float64 {
	if df <= 0 || math.IsNaN(t) {
		return 1
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.CDF(-math.Abs(t))
	if p > 1 {
		p = 1
	}
	return p
}
