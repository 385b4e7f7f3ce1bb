package comparison

import (
	"log"

	"golang.org/x/sync/errgroup"

	"voxelstats/internal/models"
	"voxelstats/pkg/visualization"
	"voxelstats/pkg/volume"
)

// WriteVolumes persists the five result volumes as NRRD files sharing the
// input header. The writes are independent and run in parallel; a partial
// set of outputs is acceptable on failure and already-written files are
// not rolled back.
func (c *Comparator) WriteVolumes(r *Result) error {
	if err := c.CheckBudget(r); err != nil {
		return err
	}

	outputs := []struct {
		suffix     string
		data       []float64
		sampleType string
	}{
		{"_t_statistics.nrrd", r.TStatistics, "float"},
		{"_p_values_uncorrected.nrrd", r.PUncorrected, "float"},
		{"_p_values_corrected_fdr.nrrd", r.PCorrected, "float"},
		{"_significant_mask_fdr.nrrd", maskToFloat(r.Significant), "uint8"},
		{"_mean_difference.nrrd", r.MeanDifference, "float"},
	}

	var g errgroup.Group
	for _, out := range outputs {
		out := out
		g.Go(func() error {
			vol := &models.Volume{Data: out.data, Shape: r.Shape, Header: r.Header}
			path := c.params.OutputPrefix + out.suffix
			if err := volume.Write(path, vol, out.sampleType); err != nil {
				return err
			}
			log.Printf("Wrote %s", path)
			return nil
		})
	}
	return g.Wait()
}

// WriteProjections renders the three axis projections as PNG images.
// Each axis is an independent task holding only its own 2D output set.
func (c *Comparator) WriteProjections(r *Result) error {
	if err := c.CheckBudget(r); err != nil {
		return err
	}

	projector := visualization.NewProjector(r.TStatistics, r.MeanDifference, r.Significant, r.Shape)

	var g errgroup.Group
	for axis := 0; axis < 3; axis++ {
		axis := axis
		g.Go(func() error {
			proj, err := projector.ProjectAxis(axis)
			if err != nil {
				return err
			}
			path := c.params.OutputPrefix + "_t_stats_projection_" + visualization.AxisNames[axis] + ".png"
			if err := proj.SavePNG(path); err != nil {
				return err
			}
			log.Printf("Wrote %s", path)
			return nil
		})
	}
	return g.Wait()
}

func maskToFloat(mask []bool) []float64 {
	out := make([]float64, len(mask))
	for i, m := range mask {
		if m {
			out[i] = 1
		}
	}
	return out
}
