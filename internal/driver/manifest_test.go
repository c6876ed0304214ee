package driver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validManifest = `
[package]
name = "demo"

[lower]
inputs = ["artifacts"]

[target]
pointer_size = 8
pointer_align = 8

[output]
dir = "out"
`

func TestLoadManifestFindsParentDir(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, validManifest)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, ok, err := LoadManifest(nested)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("manifest not found from nested directory")
	}
	if m.Config.Package.Name != "demo" {
		t.Errorf("package name = %q, want demo", m.Config.Package.Name)
	}
	if want := filepath.Join(root, "out"); m.OutputDir() != want {
		t.Errorf("output dir = %q, want %q", m.OutputDir(), want)
	}
	inputs := m.InputPaths()
	if len(inputs) != 1 || inputs[0] != filepath.Join(root, "artifacts") {
		t.Errorf("inputs = %v", inputs)
	}
}

func TestLoadManifestAbsent(t *testing.T) {
	_, ok, err := LoadManifest(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("found a manifest in an empty temp dir")
	}
}

func TestLoadManifestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		frag string
	}{
		{
			name: "missing_package",
			body: "[lower]\ninputs = [\"x\"]\n",
			frag: "[package]",
		},
		{
			name: "missing_name",
			body: "[package]\n[lower]\ninputs = [\"x\"]\n",
			frag: "[package].name",
		},
		{
			name: "missing_inputs",
			body: "[package]\nname = \"demo\"\n",
			frag: "[lower].inputs",
		},
		{
			name: "empty_input",
			body: "[package]\nname = \"demo\"\n[lower]\ninputs = [\"\"]\n",
			frag: "empty entry",
		},
		{
			name: "bad_pointer_size",
			body: "[package]\nname = \"demo\"\n[lower]\ninputs = [\"x\"]\n[target]\npointer_size = 3\n",
			frag: "pointer_size",
		},
		{
			name: "not_toml",
			body: "{ json: true }",
			frag: "TOML",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), tc.body)
			_, err := LoadManifestFile(path)
			if err == nil {
				t.Fatal("validation passed")
			}
			if !strings.Contains(err.Error(), tc.frag) {
				t.Errorf("error %q does not contain %q", err, tc.frag)
			}
		})
	}
}

func TestManifestDefaultOutputDir(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[package]\nname = \"demo\"\n[lower]\ninputs = [\".\"]\n")
	m, ok, err := LoadManifest(root)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if want := filepath.Join(root, DefaultOutputDir); m.OutputDir() != want {
		t.Errorf("output dir = %q, want %q", m.OutputDir(), want)
	}
}

func TestWriteManifestSkeleton(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteManifestSkeleton(dir, "fresh")
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadManifestFile(path)
	if err != nil {
		t.Fatalf("skeleton does not validate: %v", err)
	}
	if cfg.Package.Name != "fresh" {
		t.Errorf("package name = %q, want fresh", cfg.Package.Name)
	}

	if _, err := WriteManifestSkeleton(dir, "again"); err == nil {
		t.Error("skeleton overwrote an existing manifest")
	}
}
