package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hautlys/cargo-save/pkg/cargosave"
)

// The cached cargo subcommands each get their own cobra command with flag
// parsing disabled, so cargo's own flags flow through untouched.
func init() {
	for _, sub := range []struct {
		name  string
		short string
	}{
		{"build", "Compile the workspace, skipping packages that are cached"},
		{"check", "Type-check the workspace with caching"},
		{"clippy", "Lint the workspace with caching"},
		{"test", "Run tests with caching"},
		{"doc", "Build documentation with caching"},
		{"run", "Run a binary with caching"},
	} {
		sub := sub
		rootCmd.AddCommand(&cobra.Command{
			Use:                sub.name,
			Short:              sub.short,
			DisableFlagParsing: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDelegated(sub.name, args)
			},
		})
	}
}

// runDelegated drives one cached (or pass-through) cargo invocation and exits
// with the resulting code.
func runDelegated(subcommand string, args []string) error {
	store, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[cargo-save] %v\n", err)
		os.Exit(1)
	}

	ws, err := cargosave.DiscoverWorkspace(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "[cargo-save] %v\n", err)
		os.Exit(1)
	}

	settings, err := cargosave.LoadSettings(ws.Root)
	if err != nil {
		log.WithError(err).Warn("cannot load workspace settings, using defaults")
	}

	state, err := cargosave.ComputeWorkspaceState(ws, subcommand, args, settings.ExtraEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[cargo-save] %v\n", err)
		os.Exit(1)
	}

	res, err := cargosave.RunWithCache(subcommand, args, ws, state, cargosave.RunOptions{
		Store:              store,
		DisableIncremental: cargosave.IncrementalDisabled(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[cargo-save] %v\n", err)
		os.Exit(1)
	}

	os.Exit(res.ExitCode)
	return nil
}
