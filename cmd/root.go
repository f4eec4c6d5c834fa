package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/gookit/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hautlys/cargo-save/pkg/cargosave"
	"github.com/hautlys/cargo-save/pkg/cargosave/cache"
)

var (
	// version is set during the build using ldflags
	version string = "unknown"

	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
// An unrecognized first argument is passed through to cargo untouched.
var rootCmd = &cobra.Command{
	Use:   "cargo-save",
	Short: "A smart caching cargo wrapper",
	Long: color.Render(`<light_yellow>cargo-save is a caching wrapper around cargo</> for multi-package workspaces. Before delegating
to cargo it fingerprints every workspace package (sources, lockfile, environment, features,
toolchain, command) and skips the build entirely when nothing relevant changed. Full build
logs are kept per invocation and can be queried without rebuilding.

<white>Configuration</>
cargo-save is configured through environment variables and an optional cargo-save.yaml in
the workspace root:
	      <light_blue>CARGO_SAVE_CACHE_DIR</>  Overrides the cache location (default: the per-user cache directory).
  <light_blue>CARGO_SAVE_DISABLE_INCREMENTAL</>  When set, always run cargo but still record build logs.
	          <light_blue>CARGO_SAVE_DEBUG</>  Enables verbose internal logging.
`),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose || os.Getenv(cargosave.EnvvarDebug) != "" {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
//
// An unrecognized first argument never reaches cobra's flag parsing: it is a
// cargo subcommand we don't know, and its argument vector must pass through
// to cargo byte for byte.
func Execute() {
	args := os.Args[1:]
	// cargo invokes this binary as `cargo-save save <subcommand> ...`
	if len(args) > 0 && args[0] == "save" {
		args = args[1:]
	}

	if len(args) > 0 && isPassThrough(args[0]) {
		if err := runDelegated(args[0], args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func isPassThrough(first string) bool {
	if strings.HasPrefix(first, "-") {
		return false
	}
	// cobra's own builtins are registered lazily and invisible to Find
	if first == "help" || first == "completion" {
		return false
	}

	cmd, _, err := rootCmd.Find([]string{first})
	return err != nil || cmd == rootCmd
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enables verbose logging")
}

func openStore() (*cache.Store, error) {
	dir, err := cargosave.CacheDir()
	if err != nil {
		return nil, err
	}
	return cache.NewStore(dir)
}
