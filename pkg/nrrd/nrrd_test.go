package nrrd

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"voxelstats/internal/models"
)

// TestRoundTrip writes a float volume with auxiliary header fields and
// reads it back, checking samples and header survive.
func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volume.nrrd")

	shape := [3]int{2, 3, 4}
	vol := models.NewVolume(shape)
	for i := range vol.Data {
		vol.Data[i] = float64(i) * 0.25
	}
	vol.Header = &models.Header{
		Type:      "float",
		Dimension: 3,
		Sizes:     []int{2, 3, 4},
		Encoding:  "gzip",
		Fields: []models.Field{
			{Key: "space", Value: "left-posterior-superior"},
			{Key: "spacings", Value: "0.2 0.2 0.5"},
		},
	}

	if err := Write(path, vol, "float"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	read, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if read.Shape != shape {
		t.Fatalf("Expected shape %v, got %v", shape, read.Shape)
	}
	for i := range vol.Data {
		if math.Abs(read.Data[i]-vol.Data[i]) > 1e-6 {
			t.Errorf("Sample %d: wrote %g, read %g", i, vol.Data[i], read.Data[i])
		}
	}

	if read.Header.Type != "float" {
		t.Errorf("Expected type float, got %q", read.Header.Type)
	}
	if len(read.Header.Fields) != 2 || read.Header.Fields[0].Key != "space" {
		t.Errorf("Auxiliary header fields not preserved: %+v", read.Header.Fields)
	}
}

// TestWriteMaskAsUint8 checks the narrow unsigned type used for the
// significance mask.
func TestWriteMaskAsUint8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mask.nrrd")

	vol := models.NewVolume([3]int{1, 2, 2})
	vol.Data = []float64{0, 1, 1, 0}

	if err := Write(path, vol, "uint8"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	read, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for i, want := range []float64{0, 1, 1, 0} {
		if read.Data[i] != want {
			t.Errorf("Sample %d: expected %g, got %g", i, want, read.Data[i])
		}
	}
	if read.Header.Type != "uint8" {
		t.Errorf("Expected type uint8, got %q", read.Header.Type)
	}
}

// TestWriteSynthesizesHeader checks that a header-less volume gets the
// minimal synthetic header on write.
func TestWriteSynthesizesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.nrrd")

	vol := models.NewVolume([3]int{2, 2, 2})
	if err := Write(path, vol, "float"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	read, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if read.Header.Dimension != 3 || read.Header.Type != "float" {
		t.Errorf("Synthetic header incomplete: %+v", read.Header)
	}
}

// TestReadRejectsGarbage ensures the decoder fails cleanly on bytes that
// are not an NRRD file.
func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.nrrd")
	if err := os.WriteFile(path, []byte("this is not a volume\n\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("Expected an error for a non-NRRD file")
	}
}

// TestReadRejectsTruncatedData ensures a short sample stream is an error
// rather than a silent partial volume.
func TestReadRejectsTruncatedData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.nrrd")
	header := "NRRD0004\ntype: uint8\ndimension: 3\nsizes: 4 4 4\nencoding: raw\n\n"
	if err := os.WriteFile(path, append([]byte(header), 1, 2, 3), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("Expected an error for truncated sample data")
	}
}
