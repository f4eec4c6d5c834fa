package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hautlys/cargo-save/pkg/cargosave"
)

const postCheckoutHook = `#!/bin/sh
# cargo-save auto-invalidation hook: invalidate on branch switches
if command -v cargo-save >/dev/null 2>&1; then
    if [ "$3" = "1" ]; then
        echo "[cargo-save] branch changed, invalidating cache..."
        cargo-save invalidate --all 2>/dev/null || true
    fi
fi
`

const postMergeHook = `#!/bin/sh
# cargo-save auto-invalidation hook: invalidate after merges
if command -v cargo-save >/dev/null 2>&1; then
    echo "[cargo-save] merge completed, invalidating cache..."
    cargo-save invalidate --all 2>/dev/null || true
fi
`

// installHooksCmd writes git hooks that invalidate the cache on branch
// changes and merges
var installHooksCmd = &cobra.Command{
	Use:   "install-hooks",
	Short: "Install git hooks for automatic cache invalidation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := cargosave.DiscoverWorkspace(".")
		if err != nil {
			return err
		}

		gitDir := exec.Command("git", "rev-parse", "--git-common-dir")
		gitDir.Dir = ws.Root
		out, err := gitDir.Output()
		if err != nil {
			return fmt.Errorf("not in a git repository")
		}

		hooksDir := filepath.Join(strings.TrimSpace(string(out)), "hooks")
		if !filepath.IsAbs(hooksDir) {
			hooksDir = filepath.Join(ws.Root, hooksDir)
		}
		if err := os.MkdirAll(hooksDir, 0755); err != nil {
			return err
		}

		for name, content := range map[string]string{
			"post-checkout": postCheckoutHook,
			"post-merge":    postMergeHook,
		} {
			if err := os.WriteFile(filepath.Join(hooksDir, name), []byte(content), 0755); err != nil {
				return fmt.Errorf("failed to write %s hook: %w", name, err)
			}
			fmt.Printf("installed %s\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installHooksCmd)
}
