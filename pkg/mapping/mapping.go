// Package mapping scores a binary query volume against a set of
// reference volumes: for each reference, the ratio of overlapping
// positive voxels to the reference's positive voxels. Every unit gets an
// explicit per-unit outcome; failures are recorded, never silently
// skipped.
package mapping

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"voxelstats/internal/models"
	"voxelstats/pkg/stats"
	"voxelstats/pkg/volume"
)

// UnitResult is the outcome for one reference volume. Ratio is always
// serialized for successful units, so a legitimate zero overlap stays
// distinguishable from a failure.
type UnitResult struct {
	Reference string  `yaml:"reference"`
	Ratio     float64 `yaml:"ratio"`
	Error     string  `yaml:"error,omitempty"`
}

// Summary collects every unit outcome of one mapping run.
type Summary struct {
	Query   string       `yaml:"query"`
	Results []UnitResult `yaml:"results"`
	Failed  int          `yaml:"failed"`
}

// OverlapRatio computes the overlap of the binarized query with one
// reference volume, relative to the reference's positive voxel count.
// A reference with no positive voxels is an error, as is a grid mismatch.
func OverlapRatio(query *models.Volume, refPath string) (float64, error) {
	ref, err := volume.Read(refPath)
	if err != nil {
		return 0, err
	}
	if ref.Shape != query.Shape {
		return 0, &stats.ShapeMismatchError{Path: refPath, Want: query.Shape, Got: ref.Shape}
	}

	var positive, overlap float64
	for i, v := range ref.Data {
		if v <= 0 {
			continue
		}
		positive += v
		if query.Data[i] > 0 {
			overlap += v
		}
	}
	if positive == 0 {
		return 0, fmt.Errorf("reference %s has no positive voxels", refPath)
	}
	return overlap / positive, nil
}

// Run scores the query at queryPath against every reference in refFolder
// matching suffix. One failing reference does not abort the run; its
// outcome is recorded in the summary instead.
func Run(queryPath, refFolder, suffix string) (*Summary, error) {
	query, err := volume.Read(queryPath)
	if err != nil {
		return nil, err
	}
	// The query is treated as a mask regardless of its sample values.
	for i, v := range query.Data {
		if v > 0 {
			query.Data[i] = 1
		} else {
			query.Data[i] = 0
		}
	}

	refs, err := volume.ListGroup(refFolder, suffix)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Query: queryPath}
	for _, ref := range refs {
		ratio, err := OverlapRatio(query, ref)
		unit := UnitResult{Reference: filepath.Base(ref)}
		if err != nil {
			unit.Error = err.Error()
			summary.Failed++
			log.Printf("Mapping %s failed: %v", ref, err)
		} else {
			unit.Ratio = ratio
			log.Printf("Overlap ratio for %s: %.6f", filepath.Base(ref), ratio)
		}
		summary.Results = append(summary.Results, unit)
	}
	return summary, nil
}

// Save writes the summary next to the query volume unless an explicit
// output path is given.
func (s *Summary) Save(outputPath string) error {
	if outputPath == "" {
		base := strings.TrimSuffix(filepath.Base(s.Query), filepath.Ext(s.Query))
		outputPath = filepath.Join(filepath.Dir(s.Query), "mapping_"+base+".yaml")
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("%w: %s: %v", volume.ErrWrite, outputPath, err)
	}
	log.Printf("Wrote mapping summary to %s", outputPath)
	return nil
}
