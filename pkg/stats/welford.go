// Package stats implements the voxel-wise statistical core: streaming
// moment accumulation over groups of equal-shaped volumes, Welch's
// unequal-variance t-test computed from the accumulated summaries, and
// Benjamini-Hochberg false-discovery-rate correction over the flattened
// p-value volume.
package stats

import (
	"errors"
	"fmt"

	"voxelstats/internal/models"
)

var (
	// ErrEmptyGroup marks an accumulation request over zero volumes.
	ErrEmptyGroup = errors.New("empty group")

	// ErrInsufficientSamples marks a group too small for a t-test.
	ErrInsufficientSamples = errors.New("insufficient samples")
)

// ShapeMismatchError reports a volume whose grid differs from the first
// volume of its group.
type ShapeMismatchError struct {
	Path string
	Want [3]int
	Got  [3]int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: %s has shape %v, group uses %v", e.Path, e.Got, e.Want)
}

// ReadFunc loads one volume. Injected so the accumulator can be driven by
// any volume source.
type ReadFunc func(path string) (*models.Volume, error)

// Moments holds the per-voxel running statistics of one group. Mean and S
// (sum of squared deviations) are the only full-volume state the
// accumulation keeps, so peak memory stays at one input volume plus these
// two accumulators regardless of group size.
type Moments struct {
	Mean  []float64
	S     []float64
	Shape [3]int
	Count int
}

// Accumulate folds the volumes at paths into per-voxel mean and sum of
// squared deviations using Welford's one-pass update. Each volume is read,
// folded, and released before the next is touched; the full stack of
// inputs is never resident. Every volume must match the shape of the
// first, and the sequence must be non-empty.
func Accumulate(paths []string, read ReadFunc) (*Moments, error) {
	if len(paths) == 0 {
		return nil, ErrEmptyGroup
	}

	var m *Moments
	for _, path := range paths {
		vol, err := read(path)
		if err != nil {
			return nil, err
		}

		if m == nil {
			m = &Moments{
				Mean:  make([]float64, len(vol.Data)),
				S:     make([]float64, len(vol.Data)),
				Shape: vol.Shape,
			}
		} else if vol.Shape != m.Shape {
			return nil, &ShapeMismatchError{Path: path, Want: m.Shape, Got: vol.Shape}
		}

		m.Count++
		n := float64(m.Count)
		for i, x := range vol.Data {
			delta := x - m.Mean[i]
			m.Mean[i] += delta / n
			m.S[i] += delta * (x - m.Mean[i])
		}
	}
	return m, nil
}

// Variance returns the per-voxel sample variance (N-1 denominator).
// A single-sample group has undefined variance and yields all zeros,
// mirroring the degeneracy convention of the rest of the pipeline.
func (m *Moments) Variance() []float64 {
	out := make([]float64, len(m.S))
	if m.Count < 2 {
		return out
	}
	denom := float64(m.Count - 1)
	for i, s := range m.S {
		out[i] = s / denom
	}
	return out
}
