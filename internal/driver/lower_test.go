package driver

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"koan/internal/ast"
	"koan/internal/diag"
	"koan/internal/layout"
	"koan/internal/pipeline"
	"koan/internal/types"
)

type recordSink struct {
	mu     sync.Mutex
	events []pipeline.Event
}

func (s *recordSink) OnEvent(e pipeline.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordSink) byStatus(status pipeline.Status) []pipeline.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []pipeline.Event
	for _, e := range s.events {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	m := testModule(name)
	data, err := EncodeKast(m, name+".kast", nil)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name+".kast")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func hasCode(bag *diag.Bag, code diag.Code) bool {
	for _, d := range bag.Items() {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestLowerFilesEndToEnd(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	a := writeArtifact(t, dir, "unit_a")
	b := writeArtifact(t, dir, "unit_b")

	sink := &recordSink{}
	results, err := LowerFiles(context.Background(), []string{a, b}, Options{
		Jobs:   1,
		Target: layout.X86_64LinuxGNU(),
		OutDir: outDir,
		Sink:   sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, res := range results {
		if res.Err != nil {
			t.Fatalf("%s: %v", res.Path, res.Err)
		}
		if res.CacheHit {
			t.Errorf("%s: hit with no cache configured", res.Path)
		}
		data, err := os.ReadFile(res.OutPath)
		if err != nil {
			t.Fatalf("%s: output not written: %v", res.Path, err)
		}
		mod, _, err := DecodeKir(data)
		if err != nil {
			t.Fatalf("%s: output does not decode: %v", res.Path, err)
		}
		if _, ok := mod.FindFunc("add"); !ok {
			t.Errorf("%s: lowered module lost the add function", res.Path)
		}
		for _, stage := range pipeline.Stages() {
			if !res.Timings.Has(stage) {
				t.Errorf("%s: no timing for stage %s", res.Path, stage)
			}
		}
	}

	if queued := sink.byStatus(pipeline.StatusQueued); len(queued) != 2 {
		t.Errorf("got %d queued events, want 2", len(queued))
	}
	// Each file reports five completed stages.
	if done := sink.byStatus(pipeline.StatusDone); len(done) != 2*len(pipeline.Stages()) {
		t.Errorf("got %d done events, want %d", len(done), 2*len(pipeline.Stages()))
	}
}

func TestLowerFilesCacheHit(t *testing.T) {
	dir := t.TempDir()
	cache, err := OpenDiskCacheAt(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	path := writeArtifact(t, dir, "unit_a")
	opts := Options{
		Target: layout.X86_64LinuxGNU(),
		OutDir: filepath.Join(dir, "out"),
		Cache:  cache,
	}

	first, err := LowerFiles(context.Background(), []string{path}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if first[0].Err != nil || first[0].CacheHit {
		t.Fatalf("first run: err=%v hit=%v", first[0].Err, first[0].CacheHit)
	}

	second, err := LowerFiles(context.Background(), []string{path}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if second[0].Err != nil {
		t.Fatal(second[0].Err)
	}
	if !second[0].CacheHit {
		t.Error("second run over unchanged artifact did not hit the cache")
	}
	if _, ok := second[0].Module.FindFunc("add"); !ok {
		t.Error("cached module lost the add function")
	}
}

func TestLowerFilesCorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.kast")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := LowerFiles(context.Background(), []string{path}, Options{
		Target: layout.X86_64LinuxGNU(),
		OutDir: dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Err == nil {
		t.Fatal("corrupt artifact lowered without error")
	}
	if !hasCode(results[0].Bag, diag.InCorruptArtifact) {
		t.Errorf("bag lacks the corrupt-artifact code: %v", results[0].Bag.Items())
	}
}

func TestLowerFilesDuplicateFunc(t *testing.T) {
	dir := t.TempDir()
	m := testModule("unit_a")
	m.Funcs = append(m.Funcs, m.Funcs[0])
	data, err := EncodeKast(m, "dup.kast", nil)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "dup.kast")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := LowerFiles(context.Background(), []string{path}, Options{
		Target: layout.X86_64LinuxGNU(),
		OutDir: dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Err == nil || !hasCode(results[0].Bag, diag.InDuplicateFunc) {
		t.Errorf("duplicate function not reported: err=%v bag=%v", results[0].Err, results[0].Bag.Items())
	}
}

func TestLowerFilesRecursiveType(t *testing.T) {
	dir := t.TempDir()
	m := testModule("unit_a")
	loop := m.Interner.RegisterStruct("Loop")
	m.Interner.SetStructFields(loop, []types.StructField{{Name: "inner", Type: loop}})
	m.Types = append(m.Types, ast.TypeDecl{Name: "Loop", ID: loop, Kind: ast.TypeDeclStruct})
	data, err := EncodeKast(m, "rec.kast", nil)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "rec.kast")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := LowerFiles(context.Background(), []string{path}, Options{
		Target: layout.X86_64LinuxGNU(),
		OutDir: dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Err == nil || !hasCode(results[0].Bag, diag.LayRecursiveUnsized) {
		t.Errorf("recursive type not reported: err=%v bag=%v", results[0].Err, results[0].Bag.Items())
	}
}

func TestCollectInputs(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	b := writeArtifact(t, nested, "unit_b")
	a := writeArtifact(t, dir, "unit_a")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Directory plus an explicit file already inside it: deduped, sorted.
	got, err := CollectInputs([]string{dir, a})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{b, a}
	if len(got) != 2 {
		t.Fatalf("got %v, want two entries", got)
	}
	if got[0] != a && got[0] != b {
		t.Fatalf("unexpected entries: %v (want %v in some sorted order)", got, want)
	}
	if !(got[0] < got[1]) {
		t.Errorf("inputs not sorted: %v", got)
	}

	if _, err := CollectInputs([]string{filepath.Join(dir, "notes.txt")}); err == nil {
		t.Error("non-artifact input accepted")
	}
	if _, err := CollectInputs([]string{filepath.Join(dir, "missing.kast")}); err == nil {
		t.Error("missing input accepted")
	}
}
