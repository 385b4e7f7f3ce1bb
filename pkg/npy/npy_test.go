package npy

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// TestRoundTripFloat32 writes a 3D float array and reads it back.
func TestRoundTripFloat32(t *testing.T) {
	path := filepath.Join(t.TempDir(), "array.npy")

	shape := []int{2, 3, 4}
	data := make([]float64, 24)
	for i := range data {
		data[i] = float64(i) * 0.5
	}

	if err := Write(path, data, shape, "<f4"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	read, readShape, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(readShape) != 3 || readShape[0] != 2 || readShape[1] != 3 || readShape[2] != 4 {
		t.Fatalf("Expected shape [2 3 4], got %v", readShape)
	}
	for i := range data {
		if math.Abs(read[i]-data[i]) > 1e-6 {
			t.Errorf("Sample %d: wrote %g, read %g", i, data[i], read[i])
		}
	}
}

// TestRoundTripBool checks the boolean dtype used for binary masks.
func TestRoundTripBool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mask.npy")

	data := []float64{0, 1, 1, 0}
	if err := Write(path, data, []int{4}, "|b1"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	read, shape, err := Read(path)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(shape) != 1 || shape[0] != 4 {
		t.Fatalf("Expected shape [4], got %v", shape)
	}
	for i, want := range data {
		if read[i] != want {
			t.Errorf("Sample %d: expected %g, got %g", i, want, read[i])
		}
	}
}

// TestHeaderPadding checks that the data section starts on the 64-byte
// boundary the format requires.
func TestHeaderPadding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "padded.npy")
	if err := Write(path, []float64{1}, []int{1}, "<f8"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	headerLen := int(raw[8]) | int(raw[9])<<8
	if (10+headerLen)%64 != 0 {
		t.Errorf("Header is not padded to a 64-byte boundary: preamble+header = %d", 10+headerLen)
	}
	if raw[10+headerLen-1] != '\n' {
		t.Error("Header must end with a newline")
	}
}

// TestReadRejectsGarbage ensures a non-npy file fails cleanly.
func TestReadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.npy")
	if err := os.WriteFile(path, []byte("not numpy at all"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Read(path); err == nil {
		t.Error("Expected an error for a non-npy file")
	}
}

// TestReadRejectsFortranOrder ensures column-major arrays are refused
// instead of silently transposed.
func TestReadRejectsFortranOrder(t *testing.T) {
	header := "{'descr': '<f8', 'fortran_order': True, 'shape': (2, 2), }"
	pad := 64 - (10+len(header)+1)%64
	if pad == 64 {
		pad = 0
	}
	buf := append([]byte{}, magic...)
	buf = append(buf, 1, 0)
	n := len(header) + pad + 1
	buf = append(buf, byte(n%256), byte(n/256))
	buf = append(buf, header...)
	for i := 0; i < pad; i++ {
		buf = append(buf, ' ')
	}
	buf = append(buf, '\n')
	buf = append(buf, make([]byte, 4*8)...)

	path := filepath.Join(t.TempDir(), "fortran.npy")
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Read(path); err == nil {
		t.Error("Expected an error for a fortran-order array")
	}
}
