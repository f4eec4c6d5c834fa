package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hautlys/cargo-save/pkg/cargosave"
	"github.com/hautlys/cargo-save/pkg/cargosave/cache"
)

// cleanCmd prunes old cache files
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old cache records and logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		days, _ := cmd.Flags().GetInt("days")
		keep, _ := cmd.Flags().GetInt("keep")
		force, _ := cmd.Flags().GetBool("force")

		if !cmd.Flags().Changed("days") && !cmd.Flags().Changed("keep") {
			// fall back to the workspace default policy when available
			if ws, err := cargosave.DiscoverWorkspace("."); err == nil {
				if settings, err := cargosave.LoadSettings(ws.Root); err == nil {
					days = settings.Prune.Days
					keep = settings.Prune.Keep
				}
			} else {
				log.Debug("no workspace here, cleaning with command-line defaults")
			}
		}

		if !force {
			fmt.Fprintf(os.Stderr, "[cargo-save] prune records and logs (older than %d days, keep last %d)? [y/N] ", days, keep)
			reader := bufio.NewReader(os.Stdin)
			answer, _ := reader.ReadString('\n')
			if !strings.EqualFold(strings.TrimSpace(answer), "y") {
				fmt.Fprintln(os.Stderr, "[cargo-save] aborted")
				return nil
			}
		}

		res, err := store.Prune(cache.PrunePolicy{OlderThanDays: days, KeepLast: keep}, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d records and %d logs\n", res.Records, res.Logs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().Int("days", 7, "remove cache files older than this many days")
	cleanCmd.Flags().Int("keep", 0, "keep only this many most recent cache files")
	cleanCmd.Flags().Bool("force", false, "skip the confirmation prompt")
}
