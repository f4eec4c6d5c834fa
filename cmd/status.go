package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hautlys/cargo-save/pkg/cargosave"
)

// statusCmd shows the current workspace state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := cargosave.DiscoverWorkspace(".")
		if err != nil {
			return err
		}

		settings, _ := cargosave.LoadSettings(ws.Root)
		state, err := cargosave.ComputeWorkspaceState(ws, "status", nil, settings.ExtraEnv)
		if err != nil {
			return err
		}

		fmt.Printf("Workspace: %s\n", ws.Root)
		fmt.Printf("Packages:  %d\n", len(ws.Packages))

		lock, err := cargosave.HashLockfile(ws.Root)
		if err == nil {
			fmt.Printf("Lockfile:  %s\n", lock.Short())
		}
		tool, err := cargosave.HashToolchain()
		if err == nil {
			fmt.Printf("Toolchain: %s\n", tool.Short())
		}

		if info := cargosave.GetGitRepoInfo(ws.Root); info != nil {
			fmt.Printf("Git:       worktree=%v shallow=%v sparse=%v lfs=%v\n",
				info.IsWorktree, info.IsShallow, info.IsSparse, info.HasLFS)
		}

		if hashes, _ := cmd.Flags().GetBool("hashes"); hashes {
			fmt.Println("\nPackage hashes:")
			for _, pkg := range ws.Packages {
				if fp, ok := state.Fingerprints[pkg.Name]; ok {
					fmt.Printf("  %s %s: %s\n", pkg.Name, pkg.Version, fp.SourceHash.Short())
				}
			}
		}

		if tree, _ := cmd.Flags().GetBool("tree"); tree {
			fmt.Println()
			fmt.Print(cargosave.BuildDependencyGraph(ws).Render())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("hashes", false, "show per-package source hashes")
	statusCmd.Flags().Bool("tree", false, "render the workspace dependency tree")
}
