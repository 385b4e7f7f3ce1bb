package volume

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"voxelstats/internal/models"
)

// TestReadDispatchesOnSuffix checks that both encodings come back as the
// same volume, with a header only for the dense format.
func TestReadDispatchesOnSuffix(t *testing.T) {
	dir := t.TempDir()
	shape := [3]int{2, 2, 2}
	vol := models.NewVolume(shape)
	for i := range vol.Data {
		vol.Data[i] = float64(i)
	}

	nrrdPath := filepath.Join(dir, "dense.nrrd")
	npyPath := filepath.Join(dir, "raw.npy")
	if err := Write(nrrdPath, vol, "float"); err != nil {
		t.Fatalf("Writing NRRD failed: %v", err)
	}
	if err := Write(npyPath, vol, "float64"); err != nil {
		t.Fatalf("Writing npy failed: %v", err)
	}

	dense, err := Read(nrrdPath)
	if err != nil {
		t.Fatalf("Reading NRRD failed: %v", err)
	}
	if dense.Header == nil {
		t.Error("Dense volume should carry a header")
	}

	raw, err := Read(npyPath)
	if err != nil {
		t.Fatalf("Reading npy failed: %v", err)
	}
	if raw.Header != nil {
		t.Error("Raw array volume should have a nil header")
	}
	if raw.Shape != shape {
		t.Errorf("Expected shape %v, got %v", shape, raw.Shape)
	}
	for i := range vol.Data {
		if raw.Data[i] != vol.Data[i] || dense.Data[i] != vol.Data[i] {
			t.Errorf("Sample %d differs across encodings", i)
		}
	}
}

// TestReadMissingFile checks the ErrNotFound classification.
func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.nrrd"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestReadCorruptFile checks the ErrCorruptData classification.
func TestReadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.nrrd")
	if err := os.WriteFile(path, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); !errors.Is(err, ErrCorruptData) {
		t.Errorf("Expected ErrCorruptData, got %v", err)
	}
}

// TestListGroup checks suffix filtering, ordering and the error cases.
func TestListGroup(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b_density_map.nrrd", "a_density_map.nrrd", "other.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := ListGroup(dir, "_density_map.nrrd")
	if err != nil {
		t.Fatalf("ListGroup failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(paths))
	}
	if filepath.Base(paths[0]) != "a_density_map.nrrd" {
		t.Errorf("Expected sorted order, got %v", paths)
	}

	if _, err := ListGroup(dir, ".nope"); !errors.Is(err, ErrNoMatchingFiles) {
		t.Errorf("Expected ErrNoMatchingFiles, got %v", err)
	}
	if _, err := ListGroup(filepath.Join(dir, "missing"), ".nrrd"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
