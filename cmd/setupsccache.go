package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

// setupSccacheCmd guides the user towards cross-project compilation caching
var setupSccacheCmd = &cobra.Command{
	Use:   "setup-sccache",
	Short: "Set up sccache for cross-project caching",
	RunE: func(cmd *cobra.Command, args []string) error {
		if wrapper := os.Getenv("RUSTC_WRAPPER"); strings.Contains(wrapper, "sccache") {
			fmt.Println("sccache is already configured")
			if out, err := exec.Command("sccache", "--show-stats").Output(); err == nil {
				fmt.Println(string(out))
			}
			return nil
		}

		if err := exec.Command("sccache", "--version").Run(); err == nil {
			fmt.Println("sccache is installed but not configured.")
		} else {
			fmt.Println("sccache is not installed.")
			fmt.Println("  install: cargo install sccache")
		}
		fmt.Println("  enable:  export RUSTC_WRAPPER=sccache")
		fmt.Println("  verify:  cargo-save doctor")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupSccacheCmd)
}
