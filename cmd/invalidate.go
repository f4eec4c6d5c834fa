package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// invalidateCmd deletes incremental records
var invalidateCmd = &cobra.Command{
	Use:   "invalidate [package...]",
	Short: "Invalidate incremental caches",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		all, _ := cmd.Flags().GetBool("all")
		switch {
		case all:
			n, err := store.InvalidateAll()
			if err != nil {
				return err
			}
			fmt.Printf("removed %d incremental records\n", n)
		case len(args) > 0:
			var total int
			for _, pkg := range args {
				n, err := store.Invalidate(pkg)
				if err != nil {
					return err
				}
				total += n
			}
			fmt.Printf("removed %d incremental records\n", total)
		default:
			return fmt.Errorf("specify --all or package names to invalidate")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(invalidateCmd)
	invalidateCmd.Flags().Bool("all", false, "invalidate every record")
}
