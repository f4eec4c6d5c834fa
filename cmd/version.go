package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// versionCmd prints the version of this build
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version of cargo-save",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
