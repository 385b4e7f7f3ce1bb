package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"voxelstats/pkg/aggregate"
	"voxelstats/pkg/batch"
	"voxelstats/pkg/comparison"
	"voxelstats/pkg/config"
	"voxelstats/pkg/density"
	"voxelstats/pkg/mapping"
	"voxelstats/pkg/volume"
)

const usage = `Usage: voxelstats <command> [options]

Commands:
  ttest      voxel-wise Welch t-test between two groups of volumes
  aggregate  streaming voxel-wise mean/max/sum over a folder of volumes
  density    threshold volumes and generate smoothed density maps
  overlap    score a binary volume against a folder of reference volumes
  batch      run density generation as a resumable batch with status tracking

Run 'voxelstats <command> -h' for command options.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "ttest":
		err = runTTest(os.Args[2:])
	case "aggregate":
		err = runAggregate(os.Args[2:])
	case "density":
		err = runDensity(os.Args[2:])
	case "overlap":
		err = runOverlap(os.Args[2:])
	case "batch":
		err = runBatch(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, comparison.ErrResourceExhaustion) {
			fmt.Fprintf(os.Stderr, "ERROR: out of memory while materializing results: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// splitPositional peels up to n leading non-flag arguments off args, so
// commands accept "ttest <a> <b> -alpha 0.01" as well as the flags-first
// order stdlib flag parsing expects.
func splitPositional(args []string, n int) (positional, rest []string) {
	for len(args) > 0 && len(positional) < n && !strings.HasPrefix(args[0], "-") {
		positional = append(positional, args[0])
		args = args[1:]
	}
	return positional, args
}

func runTTest(args []string) error {
	fs := flag.NewFlagSet("ttest", flag.ExitOnError)
	configPath := fs.String("config", "", "Optional YAML configuration file")
	suffix := fs.String("suffix", "", "Suffix of files to analyze (default from config)")
	alpha := fs.Float64("alpha", 0, "Significance level for FDR correction (default from config)")
	output := fs.String("output", "voxel_ttest_results", "Output filename prefix")
	folders, rest := splitPositional(args, 2)
	fs.Parse(rest)
	folders = append(folders, fs.Args()...)

	if len(folders) != 2 {
		return fmt.Errorf("ttest needs exactly two group folders, got %d arguments", len(folders))
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *suffix == "" {
		*suffix = cfg.Analysis.Suffix
	}
	if *alpha == 0 {
		*alpha = cfg.Analysis.Alpha
	}

	comp := comparison.NewComparator(&comparison.Params{
		GroupADir:    folders[0],
		GroupBDir:    folders[1],
		Suffix:       *suffix,
		Alpha:        *alpha,
		OutputPrefix: *output,
		MemoryBudget: uint64(cfg.Analysis.MemoryBudgetMB) * 1024 * 1024,
	})

	fmt.Println("Starting voxel-wise comparison...")
	start := time.Now()
	result, err := comp.Run()
	if err != nil {
		return err
	}

	fmt.Println("Saving results...")
	if err := comp.WriteVolumes(result); err != nil {
		return err
	}
	fmt.Println("Generating visualizations...")
	if err := comp.WriteProjections(result); err != nil {
		return err
	}

	total := len(result.Significant)
	count := result.SignificantCount()
	fmt.Printf("Analysis complete in %.2f seconds. %d of %d voxels (%.2f%%) significant at alpha=%g.\n",
		time.Since(start).Seconds(), count, total, 100*float64(count)/float64(total), *alpha)
	return nil
}

func runAggregate(args []string) error {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	suffix := fs.String("suffix", "_binary.nrrd", "Suffix of files to process")
	opName := fs.String("op", "mean", "Reduction to apply: mean, max or sum")
	output := fs.String("output", "", "Output file path (default voxel_<op> file inside the folder)")
	positional, rest := splitPositional(args, 1)
	fs.Parse(rest)
	positional = append(positional, fs.Args()...)

	if len(positional) != 1 {
		return fmt.Errorf("aggregate needs exactly one folder, got %d arguments", len(positional))
	}
	folder := positional[0]

	op, err := aggregate.ParseOp(*opName)
	if err != nil {
		return err
	}

	paths, err := volume.ListGroup(folder, *suffix)
	if err != nil {
		return err
	}
	paths = aggregate.ExcludeResults(paths)
	if len(paths) == 0 {
		return fmt.Errorf("%w: every matching file in %s is an earlier reduction result", volume.ErrNoMatchingFiles, folder)
	}
	fmt.Printf("Found %d files in %s with suffix %q\n", len(paths), folder, *suffix)

	result, err := aggregate.Reduce(paths, op, volume.Read)
	if err != nil {
		return err
	}

	out := *output
	if out == "" {
		out = aggregate.DefaultOutputPath(folder, op)
	}
	if err := volume.Write(out, result, "float"); err != nil {
		return err
	}
	fmt.Printf("Saved voxel-wise %s to %s\n", op, out)
	return nil
}

func runDensity(args []string) error {
	fs := flag.NewFlagSet("density", flag.ExitOnError)
	configPath := fs.String("config", "", "Optional YAML configuration file")
	suffix := fs.String("suffix", ".nrrd", "Suffix of files to process")
	sigma := fs.Float64("sigma", 0, "Gaussian sigma in physical units (default from config)")
	voxelSize := fs.String("voxel-size", "", "Physical voxel size as x,y,z (default from config)")
	positional, rest := splitPositional(args, 1)
	fs.Parse(rest)
	positional = append(positional, fs.Args()...)

	if len(positional) != 1 {
		return fmt.Errorf("density needs exactly one folder, got %d arguments", len(positional))
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	params := density.Params{
		Sigma:     cfg.Density.Sigma,
		VoxelSize: cfg.Density.VoxelSize,
		LowRatio:  cfg.Density.LowRatio,
		HighRatio: cfg.Density.HighRatio,
	}
	if *sigma != 0 {
		params.Sigma = *sigma
	}
	if *voxelSize != "" {
		parts := strings.Split(*voxelSize, ",")
		if len(parts) != 3 {
			return fmt.Errorf("voxel-size must be three comma-separated values, got %q", *voxelSize)
		}
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil || v <= 0 {
				return fmt.Errorf("bad voxel-size component %q", p)
			}
			params.VoxelSize[i] = v
		}
	}

	return density.ProcessFolder(positional[0], *suffix, params)
}

func runOverlap(args []string) error {
	fs := flag.NewFlagSet("overlap", flag.ExitOnError)
	refs := fs.String("refs", "", "Folder holding the reference volumes (required)")
	suffix := fs.String("suffix", "_registered_meshes.nrrd", "Suffix of reference files")
	output := fs.String("output", "", "Summary output path (default next to the query volume)")
	positional, rest := splitPositional(args, 1)
	fs.Parse(rest)
	positional = append(positional, fs.Args()...)

	if len(positional) != 1 || *refs == "" {
		return fmt.Errorf("overlap needs a query volume and -refs folder")
	}

	summary, err := mapping.Run(positional[0], *refs, *suffix)
	if err != nil {
		return err
	}
	return summary.Save(*output)
}

func runBatch(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	configPath := fs.String("config", "", "Optional YAML configuration file")
	suffix := fs.String("suffix", ".nrrd", "Suffix of files to process")
	retry := fs.Bool("retry", false, "Reprocess units previously recorded as failed")
	force := fs.Bool("force-refresh", false, "Recompute cached density maps instead of reusing them")
	positional, rest := splitPositional(args, 1)
	fs.Parse(rest)
	positional = append(positional, fs.Args()...)

	if len(positional) != 1 {
		return fmt.Errorf("batch needs exactly one folder, got %d arguments", len(positional))
	}
	folder := positional[0]

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	paths, err := volume.ListGroup(folder, *suffix)
	if err != nil {
		return err
	}
	var units []string
	for _, p := range paths {
		if strings.HasSuffix(p, "_density_map.nrrd") {
			continue
		}
		units = append(units, p)
	}
	if len(units) == 0 {
		return fmt.Errorf("%w: every matching file in %s is already a density map", volume.ErrNoMatchingFiles, folder)
	}

	store, err := batch.OpenStore(cfg.Batch.StorePath)
	if err != nil {
		return err
	}

	params := density.Params{
		Sigma:     cfg.Density.Sigma,
		VoxelSize: cfg.Density.VoxelSize,
		LowRatio:  cfg.Density.LowRatio,
		HighRatio: cfg.Density.HighRatio,
	}

	var cache *batch.Cache
	if cfg.Batch.CacheDir != "" {
		cache, err = batch.NewCache(cfg.Batch.CacheDir)
		if err != nil {
			return err
		}
		cache.ForceRefresh = *force
	}

	driver := batch.NewDriver(store, cfg.Batch.LogPath)
	driver.Retry = *retry || cfg.Batch.Retry

	summary, err := driver.Run(units, func(unit string) error {
		densityPath := strings.TrimSuffix(unit, *suffix) + "_density_map.nrrd"
		if cache == nil {
			return density.ProcessFile(unit, *suffix, params)
		}

		key := batch.Key(unit, *suffix,
			fmt.Sprintf("%g", params.Sigma),
			fmt.Sprintf("%g %g %g", params.VoxelSize[0], params.VoxelSize[1], params.VoxelSize[2]),
			fmt.Sprintf("%g %g", params.LowRatio, params.HighRatio))
		if cached, ok := cache.Get(key); ok {
			return copyFile(cached, densityPath)
		}
		if err := density.ProcessFile(unit, *suffix, params); err != nil {
			return err
		}
		_, err := cache.Put(key, densityPath)
		return err
	})
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d units failed; see the batch log for details",
			summary.Failed, summary.Failed+summary.Processed+summary.Skipped)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
