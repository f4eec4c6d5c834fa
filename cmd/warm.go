package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hautlys/cargo-save/pkg/cargosave"
)

// warmCmd pre-computes all package fingerprints so the next build's hashing
// phase runs from warm git and filesystem caches
var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Pre-warm the cache by computing all package hashes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := cargosave.DiscoverWorkspace(".")
		if err != nil {
			return err
		}

		var warmArgs []string
		if release, _ := cmd.Flags().GetBool("release"); release {
			warmArgs = append(warmArgs, "--release")
		}

		settings, _ := cargosave.LoadSettings(ws.Root)
		state, err := cargosave.ComputeWorkspaceState(ws, "build", warmArgs, settings.ExtraEnv)
		if err != nil {
			return err
		}

		fmt.Printf("computed fingerprints for %d packages (%d source-hash failures)\n",
			len(state.Fingerprints), len(state.SourceHashFailures))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(warmCmd)
	warmCmd.Flags().Bool("release", false, "use the release profile")
}
