package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"koan/internal/diag"
	"koan/internal/driver"
	"koan/internal/layout"
	"koan/internal/lir"
	"koan/internal/pipeline"
	"koan/internal/ui"
)

const noKoanTomlMessage = "no koan.toml found\nplease specify the artifacts explicitly, e.g.:\n  koan lower path/to/unit.kast"

var (
	lowerOut     string
	lowerDump    bool
	lowerJobs    int
	lowerUI      bool
	lowerNoCache bool
	lowerPtrSize int
)

func init() {
	lowerCmd.Flags().StringVar(&lowerOut, "out", "", "output directory for .kir artifacts")
	lowerCmd.Flags().BoolVar(&lowerDump, "dump", false, "print the lowered IR of each unit")
	lowerCmd.Flags().IntVar(&lowerJobs, "jobs", 0, "maximum parallel workers (0 = all CPUs)")
	lowerCmd.Flags().BoolVar(&lowerUI, "ui", false, "render interactive progress")
	lowerCmd.Flags().BoolVar(&lowerNoCache, "no-cache", false, "bypass the lowered-module disk cache")
	lowerCmd.Flags().IntVar(&lowerPtrSize, "target-ptr-size", 0, "target pointer size in bytes (4 or 8)")
}

var lowerCmd = &cobra.Command{
	Use:   "lower [artifacts...]",
	Short: "Lower .kast artifacts into .kir artifacts",
	Long: `Lower decodes typed-AST artifacts, computes type layouts, lowers every
function to control-flow form, validates the result, and writes .kir
artifacts. Without arguments the inputs come from koan.toml.`,
	RunE: runLower,
}

func runLower(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	quiet := quietFlag(cmd)

	inputs := args
	outDir := lowerOut
	ptrSize := lowerPtrSize
	if len(inputs) == 0 {
		manifest, ok, err := driver.LoadManifest(".")
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s", noKoanTomlMessage)
		}
		inputs = manifest.InputPaths()
		if outDir == "" {
			outDir = manifest.OutputDir()
		}
		if ptrSize == 0 {
			ptrSize = manifest.Config.Target.PointerSize
		}
	}

	files, err := driver.CollectInputs(inputs)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no %s artifacts found", driver.ArtifactExt)
	}

	target := layout.X86_64LinuxGNU()
	switch ptrSize {
	case 0, 8:
	case 4:
		target.PtrSize = 4
		target.PtrAlign = 4
	default:
		return fmt.Errorf("unsupported --target-ptr-size %d (want 4 or 8)", ptrSize)
	}

	var cache *driver.DiskCache
	if !lowerNoCache {
		cache, err = driver.OpenDiskCache("koan")
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: disk cache unavailable: %v\n", err)
			cache = nil
		}
	}

	opts := driver.Options{
		Jobs:           lowerJobs,
		Target:         target,
		OutDir:         outDir,
		Cache:          cache,
		MaxDiagnostics: maxDiagnosticsFlag(cmd),
	}

	start := time.Now()
	var results []driver.Result
	if lowerUI && isTerminal(os.Stdout) {
		results, err = lowerWithUI(cmd.Context(), files, opts)
	} else {
		results, err = driver.LowerFiles(cmd.Context(), files, opts)
	}
	if err != nil {
		return err
	}

	failed := 0
	var total pipeline.Timings
	for _, res := range results {
		renderer := diag.Renderer{Files: res.FileSet}
		renderer.Render(os.Stderr, res.Bag)
		if res.Err != nil {
			failed++
			continue
		}
		note := ""
		if res.CacheHit {
			note = " (cached)"
		}
		printf(quiet, "%s -> %s%s\n", res.Path, res.OutPath, note)
		for _, stage := range pipeline.Stages() {
			total.Add(stage, res.Timings.Duration(stage))
		}
		if lowerDump && res.Module != nil {
			if err := dumpResult(res); err != nil {
				return err
			}
		}
	}

	if timingsFlag(cmd) {
		for _, stage := range pipeline.Stages() {
			printf(quiet, "%-10s %v\n", stage, total.Duration(stage).Round(time.Microsecond))
		}
		printf(quiet, "%-10s %v\n", "wall", time.Since(start).Round(time.Microsecond))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d units failed", failed, len(results))
	}
	printf(quiet, "lowered %d units\n", len(results))
	return nil
}

// dumpResult re-reads the emitted artifact so the dump always shows
// what landed on disk, cache hit or not.
func dumpResult(res driver.Result) error {
	data, err := os.ReadFile(res.OutPath)
	if err != nil {
		return err
	}
	mod, typesIn, err := driver.DecodeKir(data)
	if err != nil {
		return err
	}
	return lir.DumpModule(os.Stdout, mod, typesIn, lir.DumpOptions{})
}

func lowerWithUI(ctx context.Context, files []string, opts driver.Options) ([]driver.Result, error) {
	events := make(chan pipeline.Event, 64)
	opts.Sink = pipeline.ChannelSink{Ch: events}

	var (
		results []driver.Result
		lowErr  error
	)
	prog := tea.NewProgram(ui.NewProgressModel("lowering", files, events))
	go func() {
		results, lowErr = driver.LowerFiles(ctx, files, opts)
		close(events)
	}()
	if _, err := prog.Run(); err != nil {
		return nil, err
	}
	return results, lowErr
}
