package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ManifestName is the project manifest file name.
const ManifestName = "koan.toml"

// Manifest is a located and parsed koan.toml.
type Manifest struct {
	Path   string
	Root   string
	Config ManifestConfig
}

// ManifestConfig mirrors the koan.toml layout.
type ManifestConfig struct {
	Package PackageConfig `toml:"package"`
	Lower   LowerConfig   `toml:"lower"`
	Target  TargetConfig  `toml:"target"`
	Output  OutputConfig  `toml:"output"`
}

// PackageConfig is the [package] table.
type PackageConfig struct {
	Name string `toml:"name"`
}

// LowerConfig is the [lower] table. Inputs are .kast files or
// directories, relative to the manifest root.
type LowerConfig struct {
	Inputs []string `toml:"inputs"`
}

// TargetConfig is the [target] table. Zero values mean "use the
// default target".
type TargetConfig struct {
	PointerSize  int `toml:"pointer_size"`
	PointerAlign int `toml:"pointer_align"`
}

// OutputConfig is the [output] table.
type OutputConfig struct {
	Dir string `toml:"dir"`
}

// DefaultOutputDir is where .kir artifacts land when [output].dir is
// absent.
const DefaultOutputDir = "build"

// FindManifest walks from startDir toward the filesystem root looking
// for a koan.toml.
func FindManifest(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadManifest locates and parses the manifest governing startDir.
// The second return is false when no manifest exists on the path to
// the root.
func LoadManifest(startDir string) (*Manifest, bool, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := LoadManifestFile(path)
	if err != nil {
		return nil, true, err
	}
	return &Manifest{
		Path:   path,
		Root:   filepath.Dir(path),
		Config: cfg,
	}, true, nil
}

// LoadManifestFile parses and validates one manifest file.
func LoadManifestFile(path string) (ManifestConfig, error) {
	var cfg ManifestConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return ManifestConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("package") {
		return ManifestConfig{}, fmt.Errorf("%s: missing [package]", path)
	}
	if !meta.IsDefined("package", "name") || strings.TrimSpace(cfg.Package.Name) == "" {
		return ManifestConfig{}, fmt.Errorf("%s: missing [package].name", path)
	}
	if !meta.IsDefined("lower", "inputs") || len(cfg.Lower.Inputs) == 0 {
		return ManifestConfig{}, fmt.Errorf("%s: missing [lower].inputs", path)
	}
	for _, input := range cfg.Lower.Inputs {
		if strings.TrimSpace(input) == "" {
			return ManifestConfig{}, fmt.Errorf("%s: empty entry in [lower].inputs", path)
		}
	}
	if meta.IsDefined("target", "pointer_size") {
		switch cfg.Target.PointerSize {
		case 4, 8:
		default:
			return ManifestConfig{}, fmt.Errorf("%s: [target].pointer_size must be 4 or 8, got %d", path, cfg.Target.PointerSize)
		}
	}
	if meta.IsDefined("target", "pointer_align") && cfg.Target.PointerAlign != 4 && cfg.Target.PointerAlign != 8 {
		return ManifestConfig{}, fmt.Errorf("%s: [target].pointer_align must be 4 or 8, got %d", path, cfg.Target.PointerAlign)
	}
	return cfg, nil
}

// OutputDir returns the manifest's output directory resolved against
// its root.
func (m *Manifest) OutputDir() string {
	dir := strings.TrimSpace(m.Config.Output.Dir)
	if dir == "" {
		dir = DefaultOutputDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(m.Root, dir)
}

// InputPaths returns the manifest's inputs resolved against its root.
func (m *Manifest) InputPaths() []string {
	out := make([]string, 0, len(m.Config.Lower.Inputs))
	for _, input := range m.Config.Lower.Inputs {
		input = filepath.FromSlash(strings.TrimSpace(input))
		if !filepath.IsAbs(input) {
			input = filepath.Join(m.Root, input)
		}
		out = append(out, input)
	}
	return out
}

// WriteManifestSkeleton writes a starter koan.toml. It refuses to
// overwrite an existing manifest.
func WriteManifestSkeleton(dir, name string) (string, error) {
	path := filepath.Join(dir, ManifestName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to stat %q: %w", path, err)
	}
	body := fmt.Sprintf(`[package]
name = %q

[lower]
inputs = ["."]

[target]
pointer_size = 8
pointer_align = 8

[output]
dir = %q
`, name, DefaultOutputDir)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %q: %w", path, err)
	}
	return path, nil
}
