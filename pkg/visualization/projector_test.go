package visualization

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// TestProjectionConsistency recomputes the any-significant projection
// along each axis with an independent reduction and compares.
func TestProjectionConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	shape := [3]int{4, 5, 6}
	n := shape[0] * shape[1] * shape[2]

	tStats := make([]float64, n)
	meanDiff := make([]float64, n)
	significant := make([]bool, n)
	for i := 0; i < n; i++ {
		tStats[i] = rng.NormFloat64()
		meanDiff[i] = rng.NormFloat64()
		significant[i] = rng.Float64() < 0.2
	}

	proj := NewProjector(tStats, meanDiff, significant, shape)

	for axis := 0; axis < 3; axis++ {
		result, err := proj.ProjectAxis(axis)
		if err != nil {
			t.Fatalf("ProjectAxis(%d) failed: %v", axis, err)
		}

		for i := 0; i < shape[0]; i++ {
			for j := 0; j < shape[1]; j++ {
				for k := 0; k < shape[2]; k++ {
					idx := (i*shape[1]+j)*shape[2] + k
					var pixel int
					switch axis {
					case 0:
						pixel = j*result.Cols + k
					case 1:
						pixel = i*result.Cols + k
					default:
						pixel = i*result.Cols + j
					}

					if significant[idx] && !result.AnySignificant[pixel] {
						t.Errorf("Axis %d: significant voxel (%d,%d,%d) missing from projection",
							axis, i, j, k)
					}
					if abs := math.Abs(tStats[idx]); result.TAbsMax[pixel] < abs-1e-12 {
						t.Errorf("Axis %d: |t| projection below voxel value at (%d,%d,%d)",
							axis, i, j, k)
					}
				}
			}
		}
	}
}

// TestSignedDiffAtArgmax checks that the difference panel keeps the sign
// of the most extreme significant voxel along the ray and ignores
// non-significant voxels entirely.
func TestSignedDiffAtArgmax(t *testing.T) {
	shape := [3]int{3, 1, 1}
	tStats := make([]float64, 3)
	meanDiff := []float64{-7.0, 2.0, 5.0}
	// The largest |difference| is not significant and must not win.
	significant := []bool{false, true, true}

	proj := NewProjector(tStats, meanDiff, significant, shape)
	result, err := proj.ProjectAxis(0)
	if err != nil {
		t.Fatalf("ProjectAxis failed: %v", err)
	}

	if result.SignedDiff[0] != 5.0 {
		t.Errorf("Expected signed difference 5.0 at argmax of masked |diff|, got %g",
			result.SignedDiff[0])
	}

	// With nothing significant the panel is all zero.
	none := NewProjector(tStats, meanDiff, make([]bool, 3), shape)
	result, err = none.ProjectAxis(0)
	if err != nil {
		t.Fatalf("ProjectAxis failed: %v", err)
	}
	if result.SignedDiff[0] != 0 {
		t.Errorf("Expected zero signed difference with empty mask, got %g", result.SignedDiff[0])
	}
}

// TestProjectAxisRejectsBadAxis verifies the axis range check.
func TestProjectAxisRejectsBadAxis(t *testing.T) {
	proj := NewProjector(make([]float64, 1), make([]float64, 1), make([]bool, 1), [3]int{1, 1, 1})
	if _, err := proj.ProjectAxis(3); err == nil {
		t.Error("Expected an error for axis 3")
	}
}

// TestSavePNG renders a small projection to disk and checks the file has
// PNG content.
func TestSavePNG(t *testing.T) {
	shape := [3]int{2, 3, 4}
	n := shape[0] * shape[1] * shape[2]
	tStats := make([]float64, n)
	meanDiff := make([]float64, n)
	significant := make([]bool, n)
	tStats[5] = 4.2
	meanDiff[5] = -1.5
	significant[5] = true

	proj := NewProjector(tStats, meanDiff, significant, shape)
	result, err := proj.ProjectAxis(2)
	if err != nil {
		t.Fatalf("ProjectAxis failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "projection.png")
	if err := result.SavePNG(path); err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Reading the PNG back failed: %v", err)
	}
	if len(data) < 8 || string(data[1:4]) != "PNG" {
		t.Error("Output does not look like a PNG file")
	}
}
