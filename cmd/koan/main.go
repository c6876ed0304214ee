package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"koan/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "koan",
	Short: "Koan lowering toolchain",
	Long:  `Koan lowers typed-AST artifacts (.kast) into control-flow IR artifacts (.kir)`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(lowerCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to show")

	cobra.OnInitialize(func() {
		applyColorMode(rootCmd)
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// applyColorMode resolves --color into the package-global color switch
// every renderer honors.
func applyColorMode(cmd *cobra.Command) {
	mode, err := cmd.PersistentFlags().GetString("color")
	if err != nil {
		return
	}
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default: // auto
		color.NoColor = !isTerminal(os.Stdout)
	}
}

func quietFlag(cmd *cobra.Command) bool {
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return false
	}
	return quiet
}

func timingsFlag(cmd *cobra.Command) bool {
	timings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return false
	}
	return timings
}

func maxDiagnosticsFlag(cmd *cobra.Command) int {
	n, err := cmd.Flags().GetInt("max-diagnostics")
	if err != nil || n <= 0 {
		return 100
	}
	return n
}

func printf(quiet bool, format string, args ...any) {
	if quiet {
		return
	}
	fmt.Printf(format, args...)
}
