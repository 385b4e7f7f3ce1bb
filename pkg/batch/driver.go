package batch

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// UnitResult is the explicit outcome of one processed unit.
type UnitResult struct {
	Unit   string
	Status Status
	Err    error
}

// Summary aggregates a driver run.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
	Results   []UnitResult
}

// Driver walks a list of units, invoking a processing function per unit
// and recording each outcome in the store. One failing unit never aborts
// the batch; its error is captured in the per-unit result.
type Driver struct {
	store  *Store
	logger *log.Logger

	// Retry reprocesses units already marked Failed
	Retry bool
}

// NewDriver wires a driver to a status store. When logPath is non-empty
// the driver logs both to stdout and to a size-rotated file, so progress
// over multi-day batches survives restarts without unbounded logs.
func NewDriver(store *Store, logPath string) *Driver {
	var out io.Writer = os.Stdout
	if logPath != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
		})
	}
	return &Driver{
		store:  store,
		logger: log.New(out, "batch: ", log.LstdFlags),
	}
}

// Run processes units in order, skipping anything the store already
// records as Done (and, unless Retry is set, as Failed). The store is
// saved after every unit so progress is durable across interruptions.
func (d *Driver) Run(units []string, process func(unit string) error) (*Summary, error) {
	summary := &Summary{}
	for _, unit := range units {
		switch d.store.Get(unit) {
		case Done:
			d.logger.Printf("%s already done, skipping", unit)
			summary.Skipped++
			continue
		case Failed:
			if !d.Retry {
				d.logger.Printf("%s previously failed, skipping (enable retry to reprocess)", unit)
				summary.Skipped++
				continue
			}
		}

		d.logger.Printf("processing %s", unit)
		err := process(unit)

		result := UnitResult{Unit: unit, Err: err}
		if err != nil {
			result.Status = Failed
			summary.Failed++
			d.logger.Printf("%s failed: %v", unit, err)
		} else {
			result.Status = Done
			summary.Processed++
			d.logger.Printf("%s done", unit)
		}
		summary.Results = append(summary.Results, result)

		d.store.Set(unit, result.Status)
		if err := d.store.Save(); err != nil {
			return summary, err
		}
	}

	tracked := d.store.Units()
	done, failed := 0, 0
	for _, id := range tracked {
		switch d.store.Get(id) {
		case Done:
			done++
		case Failed:
			failed++
		}
	}
	d.logger.Printf("batch finished: %d processed, %d skipped, %d failed (store tracks %d units: %d done, %d failed)",
		summary.Processed, summary.Skipped, summary.Failed, len(tracked), done, failed)
	return summary, nil
}
