package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

// doctorCmd checks the environment and integration status
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check environment and integration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("cargo-save environment check")
		fmt.Println()

		if out, err := exec.Command("git", "--version").Output(); err == nil {
			fmt.Printf("git:    %s\n", strings.TrimSpace(string(out)))
		} else {
			fmt.Println("git:    not found (falling back to file-based hashing, slower)")
		}

		if out, err := exec.Command("cargo", "--version").Output(); err == nil {
			fmt.Printf("cargo:  %s\n", strings.TrimSpace(string(out)))
		} else {
			fmt.Println("cargo:  not found")
		}

		if wrapper := os.Getenv("RUSTC_WRAPPER"); strings.Contains(wrapper, "sccache") {
			fmt.Printf("sccache: enabled (RUSTC_WRAPPER=%s)\n", wrapper)
		} else {
			fmt.Println("sccache: not configured (run 'cargo-save setup-sccache')")
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		fmt.Printf("\ncache:  %s\n", store.Root)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
