// Package visualization derives 2D axis-aligned projections from the 3D
// comparison results and renders them as PNG panels for inspection.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
)

// AxisNames maps the projection axis index to the name used in output
// filenames.
var AxisNames = [3]string{"X", "Y", "Z"}

// tStatDisplayRange clips the |t| colormap, matching the fixed display
// range used for t-statistic maps.
const tStatDisplayRange = 5.0

// Projector computes projections of one comparison result. Only the
// result volumes themselves are held; each axis projection allocates a
// single 2D output set, and nothing from other axes is retained.
type Projector struct {
	t           []float64
	meanDiff    []float64
	significant []bool
	shape       [3]int
}

// Projection is the 2D output set for one axis: the maximum |t| along the
// axis, the logical OR of the significance mask, and the signed mean
// difference at the voxel where |masked difference| peaks along each ray.
type Projection struct {
	Axis       int
	Rows, Cols int

	TAbsMax        []float64
	AnySignificant []bool
	SignedDiff     []float64
}

// NewProjector wires the three result volumes. All must share the same
// grid; the caller guarantees this since they come out of one comparison.
func NewProjector(t, meanDiff []float64, significant []bool, shape [3]int) *Projector {
	return &Projector{t: t, meanDiff: meanDiff, significant: significant, shape: shape}
}

// ProjectAxis computes the three projections along the given axis
// (0, 1 or 2) in a single sweep over the volume.
//
// The signed-difference panel keeps the sign of the most extreme masked
// difference along each ray, so it shows which group is larger at the
// strongest significant voxel, not merely the magnitude. The selection is
// an argmax gather over |masked difference|, with non-significant voxels
// contributing zero.
func (p *Projector) ProjectAxis(axis int) (*Projection, error) {
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("invalid projection axis %d (must be 0, 1 or 2)", axis)
	}

	rows, cols := projectedDims(p.shape, axis)
	out := &Projection{
		Axis:           axis,
		Rows:           rows,
		Cols:           cols,
		TAbsMax:        make([]float64, rows*cols),
		AnySignificant: make([]bool, rows*cols),
		SignedDiff:     make([]float64, rows*cols),
	}

	bestAbs := make([]float64, rows*cols)
	depth := p.shape[axis]
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			pixel := r*cols + c
			for d := 0; d < depth; d++ {
				idx := p.voxelIndex(axis, r, c, d)

				if abs := math.Abs(p.t[idx]); abs > out.TAbsMax[pixel] {
					out.TAbsMax[pixel] = abs
				}
				if p.significant[idx] {
					out.AnySignificant[pixel] = true
				}

				masked := 0.0
				if p.significant[idx] {
					masked = p.meanDiff[idx]
				}
				if abs := math.Abs(masked); abs > bestAbs[pixel] {
					bestAbs[pixel] = abs
					out.SignedDiff[pixel] = masked
				}
			}
		}
	}
	return out, nil
}

// projectedDims returns the output image dimensions for an axis: the two
// remaining axes in order.
func projectedDims(shape [3]int, axis int) (rows, cols int) {
	switch axis {
	case 0:
		return shape[1], shape[2]
	case 1:
		return shape[0], shape[2]
	default:
		return shape[0], shape[1]
	}
}

// voxelIndex maps an output pixel (r, c) and a depth d along the
// projection axis back to the linear voxel index.
func (p *Projector) voxelIndex(axis, r, c, d int) int {
	var i, j, k int
	switch axis {
	case 0:
		i, j, k = d, r, c
	case 1:
		i, j, k = r, d, c
	default:
		i, j, k = r, c, d
	}
	return (i*p.shape[1]+j)*p.shape[2] + k
}

// SavePNG renders the projection as three side-by-side panels: max |t|
// (white to red), significant voxels (hot), and the signed mean
// difference (blue-white-red diverging).
func (pr *Projection) SavePNG(path string) error {
	const gap = 8
	width := pr.Cols*3 + gap*2
	img := image.NewNRGBA(image.Rect(0, 0, width, pr.Rows))

	// White background including the panel gaps.
	for y := 0; y < pr.Rows; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}

	diffMax := 0.0
	for _, v := range pr.SignedDiff {
		if abs := math.Abs(v); abs > diffMax {
			diffMax = abs
		}
	}
	if diffMax == 0 {
		diffMax = 1
	}

	for r := 0; r < pr.Rows; r++ {
		for c := 0; c < pr.Cols; c++ {
			pixel := r*pr.Cols + c

			img.SetNRGBA(c, r, divergingColor(pr.TAbsMax[pixel], tStatDisplayRange))

			heat := 0.0
			if pr.AnySignificant[pixel] {
				heat = 1.0
			}
			img.SetNRGBA(pr.Cols+gap+c, r, hotColor(heat))

			img.SetNRGBA(2*(pr.Cols+gap)+c, r, divergingColor(pr.SignedDiff[pixel], diffMax))
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// divergingColor maps v in [-vmax, vmax] onto a blue-white-red colormap.
func divergingColor(v, vmax float64) color.NRGBA {
	t := v / vmax
	if t > 1 {
		t = 1
	} else if t < -1 {
		t = -1
	}
	if t >= 0 {
		// White toward red.
		c := uint8(255 * (1 - t))
		return color.NRGBA{255, c, c, 255}
	}
	// White toward blue.
	c := uint8(255 * (1 + t))
	return color.NRGBA{c, c, 255, 255}
}

// hotColor maps v in [0, 1] onto the standard black-red-yellow-white ramp.
func hotColor(v float64) color.NRGBA {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	r := math.Min(1, v*3) * 255
	g := math.Min(1, math.Max(0, v*3-1)) * 255
	b := math.Min(1, math.Max(0, v*3-2)) * 255
	return color.NRGBA{uint8(r), uint8(g), uint8(b), 255}
}
