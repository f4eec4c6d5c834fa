package cargosave

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/segmentio/textio"
)

// Reporter emits the wrapper's own messages on stderr behind a stable prefix
// so downstream tooling can filter them from cargo's output.
type Reporter struct {
	out io.Writer
}

// NewReporter produces a reporter writing to stderr.
func NewReporter() *Reporter {
	return &Reporter{out: textio.NewPrefixWriter(os.Stderr, "[cargo-save] ")}
}

// NewReporterTo produces a reporter writing to an arbitrary writer. Used in
// tests.
func NewReporterTo(w io.Writer) *Reporter {
	return &Reporter{out: textio.NewPrefixWriter(w, "[cargo-save] ")}
}

// Infof prints a single prefixed line.
func (r *Reporter) Infof(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

// UpToDate prints the synthesized status line for a short-circuited build.
func (r *Reporter) UpToDate(subcommand string) {
	r.Infof("all packages up to date, skipping %s", subcommand)
}

// BuildPlan summarizes what will run before cargo is invoked.
func (r *Reporter) BuildPlan(total int, dirty map[string]struct{}) {
	if len(dirty) == 0 || len(dirty) == total {
		return
	}

	r.Infof("build plan: %d/%d packages cached, %d need rebuild", total-len(dirty), total, len(dirty))
	names := make([]string, 0, len(dirty))
	for name := range dirty {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.Infof("  - %s", name)
	}
}
