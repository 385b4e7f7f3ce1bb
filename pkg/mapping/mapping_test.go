package mapping

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voxelstats/internal/models"
	"voxelstats/pkg/volume"
)

func writeVolume(t *testing.T, path string, shape [3]int, values []float64) {
	t.Helper()
	vol := models.NewVolume(shape)
	copy(vol.Data, values)
	vol.Header = models.SyntheticHeader("float", shape)
	if err := volume.Write(path, vol, "float"); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// TestOverlapRatio checks the positive-voxel overlap fraction against a
// hand-counted example.
func TestOverlapRatio(t *testing.T) {
	shape := [3]int{1, 2, 2}
	query := models.NewVolume(shape)
	copy(query.Data, []float64{1, 1, 0, 0})

	refPath := filepath.Join(t.TempDir(), "ref.nrrd")
	writeVolume(t, refPath, shape, []float64{1, 0, 1, 0})

	ratio, err := OverlapRatio(query, refPath)
	if err != nil {
		t.Fatalf("OverlapRatio failed: %v", err)
	}
	// Reference has two positive voxels, one overlapping the query.
	if math.Abs(ratio-0.5) > 1e-12 {
		t.Errorf("Expected ratio 0.5, got %g", ratio)
	}
}

// TestOverlapRatioEmptyReference verifies that an all-zero reference is
// an error rather than a divide-by-zero.
func TestOverlapRatioEmptyReference(t *testing.T) {
	shape := [3]int{1, 1, 2}
	query := models.NewVolume(shape)

	refPath := filepath.Join(t.TempDir(), "empty.nrrd")
	writeVolume(t, refPath, shape, []float64{0, 0})

	if _, err := OverlapRatio(query, refPath); err == nil {
		t.Error("Expected an error for a reference with no positive voxels")
	}
}

// TestRunRecordsFailures checks that one bad reference is recorded in the
// summary without aborting the others.
func TestRunRecordsFailures(t *testing.T) {
	dir := t.TempDir()
	shape := [3]int{1, 1, 2}

	queryPath := filepath.Join(dir, "query.nrrd")
	writeVolume(t, queryPath, shape, []float64{1, 0})

	refDir := filepath.Join(dir, "refs")
	if err := os.MkdirAll(refDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeVolume(t, filepath.Join(refDir, "good_ref.nrrd"), shape, []float64{1, 1})
	writeVolume(t, filepath.Join(refDir, "zero_ref.nrrd"), shape, []float64{0, 0})

	summary, err := Run(queryPath, refDir, "_ref.nrrd")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("Expected 2 unit results, got %d", len(summary.Results))
	}
	if summary.Failed != 1 {
		t.Errorf("Expected 1 recorded failure, got %d", summary.Failed)
	}

	outputPath := filepath.Join(dir, "summary.yaml")
	if err := summary.Save(outputPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		t.Errorf("Expected the summary file: %v", err)
	}
}

// TestSaveKeepsZeroRatio checks that a unit with no overlap still carries
// its ratio in the summary, so it cannot be mistaken for a failed unit.
func TestSaveKeepsZeroRatio(t *testing.T) {
	dir := t.TempDir()
	summary := &Summary{
		Query:   filepath.Join(dir, "query.nrrd"),
		Results: []UnitResult{{Reference: "ref.nrrd", Ratio: 0}},
	}

	outputPath := filepath.Join(dir, "summary.yaml")
	if err := summary.Save(outputPath); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "ratio: 0") {
		t.Errorf("Expected a ratio entry for the zero-overlap unit, got:\n%s", data)
	}
}
