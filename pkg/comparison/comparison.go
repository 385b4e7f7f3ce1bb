// Package comparison glues the statistical core into the full two-group
// pipeline: group discovery, parallel streaming accumulation, Welch's
// t-test, FDR correction, and persistence of the result volumes and
// projection images.
package comparison

import (
	"errors"
	"fmt"
	"log"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"voxelstats/internal/models"
	"voxelstats/pkg/stats"
	"voxelstats/pkg/volume"
)

// ErrResourceExhaustion marks a run whose result materialization would
// exceed the configured memory budget. It is reported separately from
// other failures so the operator gets actionable guidance.
var ErrResourceExhaustion = errors.New("resource exhaustion")

// Params configures one comparison run.
type Params struct {
	// GroupADir and GroupBDir are the folders holding each group's volumes
	GroupADir string
	GroupBDir string

	// Suffix selects which files in each folder belong to the group
	Suffix string

	// Alpha is the significance level for the FDR correction
	Alpha float64

	// OutputPrefix is prepended to every output filename
	OutputPrefix string

	// MemoryBudget caps the bytes allowed for result materialization and
	// visualization; zero disables the check
	MemoryBudget uint64
}

// Result holds the per-voxel comparison outcome. It is created once by
// Run and immutable afterwards.
type Result struct {
	TStatistics    []float64
	PUncorrected   []float64
	PCorrected     []float64
	Significant    []bool
	MeanDifference []float64

	Shape  [3]int
	Header *models.Header
}

// Comparator runs the accumulate-compare-correct pipeline.
type Comparator struct {
	params *Params
}

// NewComparator creates a comparator for the given parameters.
func NewComparator(params *Params) *Comparator {
	return &Comparator{params: params}
}

// Run executes the pipeline up to and including the FDR correction.
// Precondition violations (missing folder, empty selection, fewer than
// two volumes per group) fail before any statistics are produced.
func (c *Comparator) Run() (*Result, error) {
	if c.params.Alpha <= 0 || c.params.Alpha >= 1 {
		return nil, fmt.Errorf("alpha must be in (0,1), got %g", c.params.Alpha)
	}

	pathsA, err := volume.ListGroup(c.params.GroupADir, c.params.Suffix)
	if err != nil {
		return nil, err
	}
	pathsB, err := volume.ListGroup(c.params.GroupBDir, c.params.Suffix)
	if err != nil {
		return nil, err
	}
	if len(pathsA) < 2 || len(pathsB) < 2 {
		return nil, fmt.Errorf("%w: each group needs at least two volumes (found %d and %d)",
			stats.ErrInsufficientSamples, len(pathsA), len(pathsB))
	}

	log.Printf("Group A: %d volumes in %s", len(pathsA), c.params.GroupADir)
	log.Printf("Group B: %d volumes in %s", len(pathsB), c.params.GroupBDir)

	// The output header comes from the first file of group A; raw array
	// inputs yield nil here and a synthetic header is substituted on
	// write.
	header, err := volume.ReadHeader(pathsA[0])
	if err != nil {
		return nil, err
	}

	// The two group accumulations are independent and run in parallel.
	// Within each group the reads stay strictly sequential: that bound
	// on resident volumes is the whole point of the streaming
	// accumulator.
	var momentsA, momentsB *stats.Moments
	var g errgroup.Group
	g.Go(func() error {
		var err error
		momentsA, err = stats.Accumulate(pathsA, volume.Read)
		return err
	})
	g.Go(func() error {
		var err error
		momentsB, err = stats.Accumulate(pathsB, volume.Read)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Printf("Accumulated both groups, grid %v (%s per volume)",
		momentsA.Shape, humanize.IBytes(uint64(len(momentsA.Mean))*8))

	welch, err := stats.WelchTTest(momentsA, momentsB)
	if err != nil {
		return nil, err
	}

	log.Printf("Correcting for multiple comparisons with FDR (alpha=%g)", c.params.Alpha)
	corrected, significant := stats.FDRCorrection(welch.P, c.params.Alpha)

	return &Result{
		TStatistics:    welch.T,
		PUncorrected:   welch.P,
		PCorrected:     corrected,
		Significant:    significant,
		MeanDifference: welch.MeanDiff,
		Shape:          momentsA.Shape,
		Header:         header,
	}, nil
}

// SignificantCount returns the number of voxels surviving correction.
func (r *Result) SignificantCount() int {
	count := 0
	for _, s := range r.Significant {
		if s {
			count++
		}
	}
	return count
}

// CheckBudget estimates the working memory needed to persist and
// visualize the result and fails with ErrResourceExhaustion when it
// exceeds the configured budget.
func (c *Comparator) CheckBudget(r *Result) error {
	if c.params.MemoryBudget == 0 {
		return nil
	}

	// Five float32 output volumes plus one float64 staging buffer.
	voxels := uint64(len(r.TStatistics))
	need := voxels*4*5 + voxels*8
	if need > c.params.MemoryBudget {
		return fmt.Errorf("%w: result materialization needs about %s but the budget is %s; "+
			"reduce the volume resolution or raise the memory budget",
			ErrResourceExhaustion, humanize.IBytes(need), humanize.IBytes(c.params.MemoryBudget))
	}
	return nil
}
