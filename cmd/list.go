package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// listCmd lists stored build invocations
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached builds",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		verbose, _ := cmd.Flags().GetBool("verbose-list")

		invs, err := store.RecentInvocations(0)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INVOCATION\tSTATUS\tLINES\tCOMMAND")
		for _, inv := range invs {
			status := "unknown"
			if inv.ExitCode != nil {
				if *inv.ExitCode == 0 {
					status = "success"
				} else {
					status = "failed"
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", inv.ID, status, inv.LineCount, inv.Command)
			if verbose {
				fmt.Fprintf(w, "\ttimestamp: %s\tduration: %dms\tprofile: %s\n", inv.Timestamp, inv.DurationMS, inv.Profile)
			}
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Bool("verbose-list", false, "show timestamps, durations and profiles")
}
