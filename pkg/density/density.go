// Package density turns registered intensity volumes into smooth density
// maps: an Otsu-seeded hysteresis threshold produces a binary volume,
// which a separable 3D Gaussian filter spreads into a floating-point
// density. Sigma is given in physical units and scaled per axis by the
// voxel size.
package density

import (
	"fmt"
	"log"
	"math"
	"strings"

	"voxelstats/internal/models"
	"voxelstats/pkg/volume"
)

// Params controls the density map generation.
type Params struct {
	// Sigma is the Gaussian standard deviation in physical units
	Sigma float64

	// VoxelSize is the physical extent of one voxel along each axis
	VoxelSize [3]float64

	// LowRatio and HighRatio scale Otsu's threshold into the hysteresis
	// low and high thresholds
	LowRatio  float64
	HighRatio float64
}

// DefaultParams mirrors the parameters used for the fly-brain density
// maps: 2.5 micron sigma on a 0.2 x 0.2 x 0.5 micron grid.
func DefaultParams() Params {
	return Params{
		Sigma:     2.5,
		VoxelSize: [3]float64{0.2, 0.2, 0.5},
		LowRatio:  0.3,
		HighRatio: 0.8,
	}
}

// OtsuThreshold computes the threshold maximizing between-class variance
// over a 256-bin histogram of the data range. A constant volume yields
// its constant value.
func OtsuThreshold(data []float64) float64 {
	const bins = 256

	min, max := data[0], data[0]
	for _, v := range data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min == max {
		return min
	}

	hist := make([]int, bins)
	scale := float64(bins-1) / (max - min)
	for _, v := range data {
		hist[int((v-min)*scale)]++
	}

	total := len(data)
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i) * float64(c)
	}

	var sumBack, weightBack float64
	bestVar, bestBin := -1.0, 0
	for i := 0; i < bins; i++ {
		weightBack += float64(hist[i])
		if weightBack == 0 {
			continue
		}
		weightFore := float64(total) - weightBack
		if weightFore == 0 {
			break
		}
		sumBack += float64(i) * float64(hist[i])

		meanBack := sumBack / weightBack
		meanFore := (sumAll - sumBack) / weightFore
		between := weightBack * weightFore * (meanBack - meanFore) * (meanBack - meanFore)
		if between > bestVar {
			bestVar = between
			bestBin = i
		}
	}
	return min + float64(bestBin)/scale
}

// HysteresisThreshold binarizes the volume: voxels at or above high seed
// the result, and weak voxels at or above low join it when 6-connected to
// a seed.
func HysteresisThreshold(vol *models.Volume, low, high float64) *models.Volume {
	out := models.NewVolume(vol.Shape)
	visited := make([]bool, len(vol.Data))

	var queue []int
	for i, v := range vol.Data {
		if v >= high {
			visited[i] = true
			out.Data[i] = 1
			queue = append(queue, i)
		}
	}

	s := vol.Shape
	for len(queue) > 0 {
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i := idx / (s[1] * s[2])
		j := (idx / s[2]) % s[1]
		k := idx % s[2]

		for _, n := range [6][3]int{
			{i - 1, j, k}, {i + 1, j, k},
			{i, j - 1, k}, {i, j + 1, k},
			{i, j, k - 1}, {i, j, k + 1},
		} {
			if n[0] < 0 || n[0] >= s[0] || n[1] < 0 || n[1] >= s[1] || n[2] < 0 || n[2] >= s[2] {
				continue
			}
			nIdx := (n[0]*s[1]+n[1])*s[2] + n[2]
			if visited[nIdx] || vol.Data[nIdx] < low {
				continue
			}
			visited[nIdx] = true
			out.Data[nIdx] = 1
			queue = append(queue, nIdx)
		}
	}
	return out
}

// GaussianFilter3D smooths the volume with a separable Gaussian whose
// per-axis standard deviation is sigma divided by the voxel size on that
// axis. Boundaries reflect, and each pass holds one ray buffer.
func GaussianFilter3D(vol *models.Volume, sigma float64, voxelSize [3]float64) *models.Volume {
	out := &models.Volume{
		Data:   append([]float64(nil), vol.Data...),
		Shape:  vol.Shape,
		Header: vol.Header,
	}
	for axis := 0; axis < 3; axis++ {
		axisSigma := sigma / voxelSize[axis]
		smoothAxis(out, axis, gaussianKernel(axisSigma))
	}
	return out
}

// gaussianKernel builds a normalized kernel truncated at three standard
// deviations.
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// smoothAxis convolves every ray along the given axis in place.
func smoothAxis(vol *models.Volume, axis int, kernel []float64) {
	s := vol.Shape
	radius := len(kernel) / 2
	depth := s[axis]
	line := make([]float64, depth)

	var outer, inner int
	switch axis {
	case 0:
		outer, inner = s[1], s[2]
	case 1:
		outer, inner = s[0], s[2]
	default:
		outer, inner = s[0], s[1]
	}

	idxOf := func(o, n, d int) int {
		switch axis {
		case 0:
			return (d*s[1]+o)*s[2] + n
		case 1:
			return (o*s[1]+d)*s[2] + n
		default:
			return (o*s[1]+n)*s[2] + d
		}
	}

	for o := 0; o < outer; o++ {
		for n := 0; n < inner; n++ {
			for d := 0; d < depth; d++ {
				line[d] = vol.Data[idxOf(o, n, d)]
			}
			for d := 0; d < depth; d++ {
				var acc float64
				for t, w := range kernel {
					src := reflect(d+t-radius, depth)
					acc += w * line[src]
				}
				vol.Data[idxOf(o, n, d)] = acc
			}
		}
	}
}

// reflect maps an out-of-range coordinate back into [0, n) by mirroring
// at the boundaries.
func reflect(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// ProcessFile thresholds and smooths one volume, writing the binary
// volume as a raw array dump and the density map in the dense encoding
// with the source header preserved.
func ProcessFile(path, suffix string, params Params) error {
	vol, err := volume.Read(path)
	if err != nil {
		return err
	}

	otsu := OtsuThreshold(vol.Data)
	low, high := params.LowRatio*otsu, params.HighRatio*otsu
	log.Printf("%s: hysteresis thresholds %.4g / %.4g (Otsu %.4g)", path, low, high, otsu)

	binary := HysteresisThreshold(vol, low, high)
	binary.Header = vol.Header

	binaryPath := strings.TrimSuffix(path, suffix) + "_binary.npy"
	if err := volume.Write(binaryPath, binary, "float32"); err != nil {
		return err
	}

	smoothed := GaussianFilter3D(binary, params.Sigma, params.VoxelSize)
	densityPath := strings.TrimSuffix(path, suffix) + "_density_map.nrrd"
	if err := volume.Write(densityPath, smoothed, "float"); err != nil {
		return err
	}
	log.Printf("%s: wrote %s and %s", path, binaryPath, densityPath)
	return nil
}

// ProcessFolder runs ProcessFile over every matching volume in folder.
// The first failure aborts the run.
func ProcessFolder(folder, suffix string, params Params) error {
	paths, err := volume.ListGroup(folder, suffix)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if strings.HasSuffix(path, "_density_map.nrrd") {
			continue
		}
		if err := ProcessFile(path, suffix, params); err != nil {
			return fmt.Errorf("processing %s: %w", path, err)
		}
	}
	return nil
}
