package stats

import "sort"

// FDRCorrection applies the Benjamini-Hochberg step-up procedure to the
// flattened p-value volume as one joint ranked test. It returns the
// adjusted p-values and the significance mask at level alpha, both in the
// original voxel order (the caller's linearization is preserved exactly).
//
// Rejection rule: with p-values sorted ascending, find the largest rank i
// (1-based) such that p_(i) <= (i/m)*alpha; every voxel at or below that
// rank is significant. Adjusted p-values are the running minimum, from the
// largest rank down, of p_(i)*m/i, clipped to 1.
func FDRCorrection(p []float64, alpha float64) (adjusted []float64, significant []bool) {
	m := len(p)
	adjusted = make([]float64, m)
	significant = make([]bool, m)
	if m == 0 {
		return adjusted, significant
	}

	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return p[order[a]] < p[order[b]] })

	// Largest rank passing the step-up threshold; everything at or
	// below it is rejected, regardless of its own threshold test.
	cutoff := -1
	for i := m - 1; i >= 0; i-- {
		if p[order[i]] <= float64(i+1)/float64(m)*alpha {
			cutoff = i
			break
		}
	}
	for i := 0; i <= cutoff; i++ {
		significant[order[i]] = true
	}

	runningMin := 1.0
	for i := m - 1; i >= 0; i-- {
		adj := p[order[i]] * float64(m) / float64(i+1)
		if adj < runningMin {
			runningMin = adj
		}
		adjusted[order[i]] = runningMin
	}
	return adjusted, significant
}
