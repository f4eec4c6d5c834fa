package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// statsCmd shows cache statistics
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		var (
			totalSize                        int64
			logCount, metaCount, recordCount int
		)
		countDir := func(dir, ext string) (n int) {
			entries, err := os.ReadDir(dir)
			if err != nil {
				return 0
			}
			for _, e := range entries {
				if e.IsDir() || (ext != "" && !strings.HasSuffix(e.Name(), ext)) {
					continue
				}
				if info, err := e.Info(); err == nil {
					totalSize += info.Size()
					n++
				}
			}
			return n
		}

		logCount = countDir(store.Root, ".log")
		metaCount = countDir(store.MetadataDir, ".json")
		recordCount = countDir(store.IncrementalDir, ".json")

		fmt.Printf("Cache statistics:\n")
		fmt.Printf("  Build logs:          %d\n", logCount)
		fmt.Printf("  Metadata files:      %d\n", metaCount)
		fmt.Printf("  Incremental records: %d\n", recordCount)
		fmt.Printf("  Total size:          %.2f MB\n", float64(totalSize)/1024/1024)
		fmt.Printf("\n  Location: %s\n", filepath.Clean(store.Root))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
