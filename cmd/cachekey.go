package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hautlys/cargo-save/pkg/cargosave"
)

// cacheKeyCmd prints a key suitable for a CI cache action
var cacheKeyCmd = &cobra.Command{
	Use:   "cache-key",
	Short: "Generate a cache key for CI systems",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := cargosave.DiscoverWorkspace(".")
		if err != nil {
			return err
		}
		settings, _ := cargosave.LoadSettings(ws.Root)

		platform, _ := cmd.Flags().GetString("platform")
		key, err := cargosave.CacheKeyForCI(platform, ws.Root, settings.ExtraEnv)
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheKeyCmd)
	cacheKeyCmd.Flags().String("platform", "github", "CI platform flavor (github, gitlab, ...)")
}
