// Package aggregate implements streaming voxel-wise reductions over a
// group of equal-shaped volumes: mean, maximum, and elementwise sum
// (used to build union volumes). Like the moment accumulator, at most one
// input volume plus the running accumulator is resident at any time.
package aggregate

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"voxelstats/internal/models"
	"voxelstats/pkg/stats"
)

// Op selects the reduction applied across the group.
type Op int

const (
	Mean Op = iota
	Max
	Sum
)

// ParseOp maps the CLI spelling of a reduction onto its Op.
func ParseOp(name string) (Op, error) {
	switch name {
	case "mean":
		return Mean, nil
	case "max":
		return Max, nil
	case "sum", "union":
		return Sum, nil
	default:
		return 0, fmt.Errorf("unknown reduction %q (want mean, max or sum)", name)
	}
}

func (op Op) String() string {
	switch op {
	case Mean:
		return "mean"
	case Max:
		return "max"
	default:
		return "sum"
	}
}

// resultMarker tags every reduction output filename so earlier results
// can be recognized and excluded from later input listings.
const resultMarker = "_voxel_"

// DefaultOutputPath returns the conventional result path for a folder
// reduction. The name drops the group suffix entirely, so the result can
// never match the filter that selected the inputs on a later run.
func DefaultOutputPath(folder string, op Op) string {
	return filepath.Join(folder, fmt.Sprintf("%s%s%s.nrrd", filepath.Base(folder), resultMarker, op))
}

// ExcludeResults drops earlier reduction outputs from an input listing.
// Without this a rerun with a broad suffix filter would fold the previous
// result into the new one.
func ExcludeResults(paths []string) []string {
	var out []string
	for _, path := range paths {
		if strings.Contains(filepath.Base(path), resultMarker) {
			continue
		}
		out = append(out, path)
	}
	return out
}

// Reduce folds the volumes at paths into a single volume. The header of
// the first volume is carried onto the result. The accumulation runs in
// float64; callers narrow on write.
func Reduce(paths []string, op Op, read stats.ReadFunc) (*models.Volume, error) {
	if len(paths) == 0 {
		return nil, stats.ErrEmptyGroup
	}

	var acc *models.Volume
	count := 0
	for _, path := range paths {
		vol, err := read(path)
		if err != nil {
			return nil, err
		}

		if acc == nil {
			acc = &models.Volume{
				Data:   append([]float64(nil), vol.Data...),
				Shape:  vol.Shape,
				Header: vol.Header,
			}
			count = 1
			continue
		}
		if vol.Shape != acc.Shape {
			return nil, &stats.ShapeMismatchError{Path: path, Want: acc.Shape, Got: vol.Shape}
		}

		switch op {
		case Max:
			for i, v := range vol.Data {
				if v > acc.Data[i] {
					acc.Data[i] = v
				}
			}
		default: // Mean accumulates a sum and divides at the end.
			for i, v := range vol.Data {
				acc.Data[i] += v
			}
		}
		count++
		log.Printf("Accumulated %d of %d volumes", count, len(paths))
	}

	if op == Mean {
		n := float64(count)
		for i := range acc.Data {
			acc.Data[i] /= n
		}
	}
	return acc, nil
}
