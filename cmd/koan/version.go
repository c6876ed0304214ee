package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"koan/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the koan build fingerprint",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("koan %s\n", version.String())
	},
}
