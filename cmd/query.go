package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hautlys/cargo-save/pkg/cargosave"
)

// queryCmd answers queries over cached build logs without rebuilding
var queryCmd = &cobra.Command{
	Use:   "query <mode> [param]",
	Short: "Query cached build logs (head, tail, range, grep, errors, warnings, all)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		var param string
		if len(args) > 1 {
			param = args[1]
		}

		id, _ := cmd.Flags().GetString("id")
		last, _ := cmd.Flags().GetInt("last")
		regex, _ := cmd.Flags().GetBool("regex")

		return cargosave.QueryLogs(store, cargosave.LogSelector{ID: id, Last: last}, args[0], param, regex, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().String("id", "", "query a specific invocation")
	queryCmd.Flags().Int("last", 0, "query the Nth most recent invocation")
	queryCmd.Flags().Bool("regex", false, "treat the grep pattern as a regular expression")
}
