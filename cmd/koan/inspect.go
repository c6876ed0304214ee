package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"koan/internal/ast"
	"koan/internal/driver"
	"koan/internal/lir"
	"koan/internal/source"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <artifact>",
	Short: "Pretty-print a .kast or .kir artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch filepath.Ext(path) {
	case driver.ArtifactExt:
		m, err := driver.DecodeKast(data, source.NewFileSet())
		if err != nil {
			return err
		}
		printKastSummary(m)
		return nil
	case driver.OutputExt:
		mod, typesIn, err := driver.DecodeKir(data)
		if err != nil {
			return err
		}
		return lir.DumpModule(os.Stdout, mod, typesIn, lir.DumpOptions{})
	default:
		return fmt.Errorf("%s: unknown artifact extension (want %s or %s)", path, driver.ArtifactExt, driver.OutputExt)
	}
}

func printKastSummary(m *ast.Module) {
	fmt.Printf("module %s funcs=%d types=%d\n", m.Name, len(m.Funcs), len(m.Types))
	for _, decl := range m.Types {
		fmt.Printf("  %s %s\n", decl.Kind, decl.Name)
	}
	for _, fn := range m.Funcs {
		body := "extern"
		if fn.HasBody() {
			body = fmt.Sprintf("%d stmts", len(fn.Body.Stmts))
		}
		fmt.Printf("  fn %s/%d: %s (%s)\n", fn.Name, len(fn.Params), m.Interner.Name(fn.Result), body)
	}
}
