// Package driver turns .kast artifacts into .kir artifacts: it decodes
// typed modules, warms type layouts, runs the lowering engine,
// validates the result, and emits the lowered IR, caching by artifact
// digest and fanning files out across workers.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"koan/internal/diag"
	"koan/internal/layout"
	"koan/internal/lir"
	"koan/internal/pipeline"
	"koan/internal/source"
	"koan/internal/wellknown"
)

// ArtifactExt is the typed-AST artifact extension.
const ArtifactExt = ".kast"

// OutputExt is the lowered-IR artifact extension.
const OutputExt = ".kir"

const defaultMaxDiagnostics = 100

// Options configures one lowering run.
type Options struct {
	// Jobs caps worker parallelism; 0 means GOMAXPROCS.
	Jobs int
	// Target selects pointer and discriminant sizes for layout.
	Target layout.Target
	// OutDir receives the .kir artifacts.
	OutDir string
	// Cache is consulted and filled when non-nil.
	Cache *DiskCache
	// Sink receives progress events; nil discards them.
	Sink pipeline.ProgressSink
	// MaxDiagnostics caps the per-file bag.
	MaxDiagnostics int
}

// Result is the outcome of lowering one artifact. Err is nil exactly
// when the .kir artifact was written; the bag may still carry
// non-error diagnostics in that case.
type Result struct {
	Path     string
	OutPath  string
	Module   *lir.Module
	FileSet  *source.FileSet
	Bag      *diag.Bag
	CacheHit bool
	Timings  pipeline.Timings
	Err      error
}

// CollectInputs expands files and directories into a sorted, deduped
// list of .kast paths. Directories are walked recursively.
func CollectInputs(paths []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", path, err)
		}
		if !info.IsDir() {
			if filepath.Ext(path) != ArtifactExt {
				return nil, fmt.Errorf("input %q: not a %s artifact", path, ArtifactExt)
			}
			add(path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(p) == ArtifactExt {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", path, err)
		}
	}
	sort.Strings(out)
	return out, nil
}

// LowerFiles lowers every artifact, fanning out across workers. Each
// file gets its own interner, registry, layout engine, and session;
// nothing mutable crosses a worker boundary. Per-file failures land in
// the results; the returned error is reserved for cancellation.
func LowerFiles(ctx context.Context, files []string, opts Options) ([]Result, error) {
	sink := opts.Sink
	if sink == nil {
		sink = pipeline.NullSink{}
	}
	pipeline.EmitQueued(sink, files)

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	if jobs > len(files) {
		jobs = len(files)
	}
	if jobs < 1 {
		jobs = 1
	}

	results := make([]Result, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = lowerOne(gctx, path, opts, sink)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// lowerOne runs the full per-file pipeline:
// decode -> layout -> lower -> validate -> emit.
func lowerOne(ctx context.Context, path string, opts Options, sink pipeline.ProgressSink) Result {
	maxDiag := opts.MaxDiagnostics
	if maxDiag <= 0 {
		maxDiag = defaultMaxDiagnostics
	}
	res := Result{
		Path:    path,
		OutPath: outPathFor(path, opts.OutDir),
		FileSet: source.NewFileSet(),
		Bag:     diag.NewBag(maxDiag),
	}

	stageStart := time.Now()
	working := func(stage pipeline.Stage) {
		stageStart = time.Now()
		sink.OnEvent(pipeline.Event{File: path, Stage: stage, Status: pipeline.StatusWorking})
	}
	done := func(stage pipeline.Stage) {
		elapsed := time.Since(stageStart)
		res.Timings.Add(stage, elapsed)
		sink.OnEvent(pipeline.Event{File: path, Stage: stage, Status: pipeline.StatusDone, Elapsed: elapsed})
	}
	fail := func(stage pipeline.Stage, code diag.Code, err error) Result {
		res.Err = err
		res.Bag.Add(diag.Diagnostic{Severity: diag.SevError, Code: code, Message: err.Error()})
		sink.OnEvent(pipeline.Event{File: path, Stage: stage, Status: pipeline.StatusError, Err: err})
		return res
	}

	working(pipeline.StageDecode)
	data, err := os.ReadFile(path)
	if err != nil {
		return fail(pipeline.StageDecode, diag.InLoadFileError, err)
	}

	if opts.Cache != nil {
		digest := DigestOf(data, opts.Target.PtrSize)
		var payload DiskPayload
		if hit, err := opts.Cache.Get(digest, &payload); err == nil && hit {
			if mod, _, err := DecodeKir(payload.Kir); err == nil {
				done(pipeline.StageDecode)
				working(pipeline.StageEmit)
				if err := writeFileAtomic(res.OutPath, payload.Kir); err != nil {
					return fail(pipeline.StageEmit, diag.InLoadFileError, err)
				}
				done(pipeline.StageEmit)
				res.Module = mod
				res.CacheHit = true
				return res
			}
		}
	}

	m, err := DecodeKast(data, res.FileSet)
	if err != nil {
		code := diag.InCorruptArtifact
		if errors.Is(err, ErrSchemaMismatch) {
			code = diag.InSchemaMismatch
		}
		return fail(pipeline.StageDecode, code, err)
	}
	names := make([]string, 0, len(m.Funcs))
	for _, fn := range m.Funcs {
		if fn != nil {
			names = append(names, fn.Name)
		}
	}
	if err := checkDuplicateFuncs(names); err != nil {
		return fail(pipeline.StageDecode, diag.InDuplicateFunc, err)
	}
	done(pipeline.StageDecode)

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	// Layout warmup surfaces unsized recursive types before lowering
	// trips over them mid-function.
	working(pipeline.StageLayout)
	reg := wellknown.NewRegistry(m.Interner)
	eng := layout.New(opts.Target, m.Interner, reg)
	for _, decl := range m.Types {
		if _, err := eng.LayoutOf(decl.ID); err != nil {
			res.Err = err
			res.Bag.Add(diag.Diagnostic{
				Severity: diag.SevError,
				Code:     diag.LayRecursiveUnsized,
				Message:  fmt.Sprintf("%s %s: %v", decl.Kind, decl.Name, err),
				Primary:  decl.Span,
			})
		}
	}
	if res.Err != nil {
		sink.OnEvent(pipeline.Event{File: path, Stage: pipeline.StageLayout, Status: pipeline.StatusError, Err: res.Err})
		return res
	}
	done(pipeline.StageLayout)

	working(pipeline.StageLower)
	sess := lir.NewSession(m.Interner, reg, eng)
	mod, err := lir.LowerModule(m, sess, res.Bag)
	if err != nil {
		res.Err = err
		sink.OnEvent(pipeline.Event{File: path, Stage: pipeline.StageLower, Status: pipeline.StatusError, Err: err})
		return res
	}
	done(pipeline.StageLower)

	working(pipeline.StageValidate)
	if err := lir.Validate(mod, m.Interner); err != nil {
		res.Err = err
		reportValidation(res.Bag, err)
		sink.OnEvent(pipeline.Event{File: path, Stage: pipeline.StageValidate, Status: pipeline.StatusError, Err: err})
		return res
	}
	done(pipeline.StageValidate)

	working(pipeline.StageEmit)
	encoded, err := EncodeKir(mod, m.Interner)
	if err != nil {
		return fail(pipeline.StageEmit, diag.InCorruptArtifact, err)
	}
	if err := writeFileAtomic(res.OutPath, encoded); err != nil {
		return fail(pipeline.StageEmit, diag.InLoadFileError, err)
	}
	if opts.Cache != nil {
		digest := DigestOf(data, opts.Target.PtrSize)
		// Cache write failures degrade to a slower next run.
		_ = opts.Cache.Put(digest, &DiskPayload{Module: mod.Name, Kir: encoded})
	}
	done(pipeline.StageEmit)

	res.Module = mod
	return res
}

func outPathFor(path, outDir string) string {
	base := strings.TrimSuffix(filepath.Base(path), ArtifactExt) + OutputExt
	if outDir == "" {
		return filepath.Join(filepath.Dir(path), base)
	}
	return filepath.Join(outDir, base)
}

func checkDuplicateFuncs(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate function %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// reportValidation unpacks a joined validator error into the bag.
func reportValidation(bag *diag.Bag, err error) {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, sub := range joined.Unwrap() {
			reportValidation(bag, sub)
		}
		return
	}
	var le *lir.Error
	if errors.As(err, &le) {
		bag.Add(le.Diagnostic())
		return
	}
	bag.Add(diag.Diagnostic{Severity: diag.SevError, Code: diag.ValInfo, Message: err.Error()})
}

// writeFileAtomic writes via a temp file and rename so a crashed run
// never leaves a truncated artifact behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "failed to remove temp file: %v\n", err)
		}
	}()
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
