package models

import "fmt"

// Volume represents a 3D scalar field on a fixed voxel grid.
// Data is stored as a 1D array with axis 0 slowest and axis 2 fastest,
// so the voxel (i, j, k) lives at index (i*Shape[1]+j)*Shape[2]+k.
type Volume struct {
	// Data holds the voxel samples in float64 regardless of the on-disk type
	Data []float64

	// Shape is the grid size along each of the three axes
	Shape [3]int

	// Header carries the metadata of the file this volume was read from.
	// Volumes read from raw array dumps have a nil header.
	Header *Header
}

// Header is the metadata block of a dense volume file. Fields preserves
// the original key order so that a header read from disk can be written
// back verbatim.
type Header struct {
	// Type is the on-disk sample type (for example "float" or "uint8")
	Type string

	// Dimension is the number of axes
	Dimension int

	// Sizes is the grid size along each axis
	Sizes []int

	// Encoding is the data encoding ("raw" or "gzip")
	Encoding string

	// Fields holds every other header field in file order
	Fields []Field
}

// Field is a single auxiliary header entry such as voxel spacing or the
// coordinate-space tag.
type Field struct {
	Key   string
	Value string
}

// NewVolume allocates a zero-filled volume with the given shape.
func NewVolume(shape [3]int) *Volume {
	return &Volume{
		Data:  make([]float64, shape[0]*shape[1]*shape[2]),
		Shape: shape,
	}
}

// NumVoxels returns the total number of voxels on the grid.
func (v *Volume) NumVoxels() int {
	return v.Shape[0] * v.Shape[1] * v.Shape[2]
}

// Idx returns the linear index of voxel (i, j, k).
func (v *Volume) Idx(i, j, k int) int {
	return (i*v.Shape[1]+j)*v.Shape[2] + k
}

// At returns the sample at voxel (i, j, k).
func (v *Volume) At(i, j, k int) float64 {
	return v.Data[v.Idx(i, j, k)]
}

// Set stores a sample at voxel (i, j, k).
func (v *Volume) Set(i, j, k int, value float64) {
	v.Data[v.Idx(i, j, k)] = value
}

// SameShape reports whether two volumes share an identical grid.
func (v *Volume) SameShape(other *Volume) bool {
	return v.Shape == other.Shape
}

// Clone returns a deep copy of the header, so that writers can adjust the
// sample type without mutating the header shared with other outputs.
func (h *Header) Clone() *Header {
	if h == nil {
		return nil
	}
	c := &Header{
		Type:      h.Type,
		Dimension: h.Dimension,
		Sizes:     append([]int(nil), h.Sizes...),
		Encoding:  h.Encoding,
		Fields:    append([]Field(nil), h.Fields...),
	}
	return c
}

// SyntheticHeader builds the minimal header substituted when a volume read
// from a raw array dump must be written back into the dense format.
func SyntheticHeader(sampleType string, shape [3]int) *Header {
	return &Header{
		Type:      sampleType,
		Dimension: 3,
		Sizes:     []int{shape[0], shape[1], shape[2]},
		Encoding:  "gzip",
	}
}

// Validate checks that the header sizes describe a 3D grid.
func (h *Header) Validate() error {
	if h.Dimension != len(h.Sizes) {
		return fmt.Errorf("header dimension %d does not match %d sizes", h.Dimension, len(h.Sizes))
	}
	for _, s := range h.Sizes {
		if s <= 0 {
			return fmt.Errorf("header has non-positive axis size %d", s)
		}
	}
	return nil
}
