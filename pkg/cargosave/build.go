package cargosave

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/karrick/godirwalk"
	log "github.com/sirupsen/logrus"

	"github.com/hautlys/cargo-save/pkg/cargosave/cache"
)

// delegatedSubcommands are the cargo subcommands eligible for caching and
// short-circuiting. Everything else passes through untouched.
var delegatedSubcommands = map[string]struct{}{
	"build":  {},
	"check":  {},
	"clippy": {},
	"test":   {},
	"doc":    {},
	"run":    {},
}

// IsDelegated reports whether a subcommand participates in caching.
func IsDelegated(subcommand string) bool {
	_, ok := delegatedSubcommands[subcommand]
	return ok
}

// logLineBuffer bounds the channel between the stream readers and the log
// writer. An unbounded channel would let a chatty cargo run the process out
// of memory.
const logLineBuffer = 1024

// RunResult is the outcome of one orchestrated invocation.
type RunResult struct {
	// InvocationID identifies the run on disk; empty when short-circuited
	InvocationID string
	// ExitCode is the code to exit the wrapper with
	ExitCode int
	// Skipped is true when the build was short-circuited from cache
	Skipped bool
	// Classifications is the per-package verdict (nil for pass-through runs)
	Classifications map[string]Classification
	// LogPath points at the log answering queries for this invocation
	LogPath string
}

// RunOptions configures one orchestrated run.
type RunOptions struct {
	Store    *cache.Store
	Reporter *Reporter

	// DisableIncremental skips all cache lookup and record writing but still
	// captures logs
	DisableIncremental bool

	// MirrorOut and MirrorErr receive the child's output in addition to the
	// log file. They default to the wrapper's stdout and stderr.
	MirrorOut io.Writer
	MirrorErr io.Writer
}

// RunWithCache decides skip vs. run, drives cargo, and updates the store.
//
// For a delegated subcommand with an empty dirty set the build is
// short-circuited: cargo is not invoked, a synthesized status line is
// emitted, and the most recent log answers subsequent queries. Otherwise
// cargo runs with its output streamed to the log file and the terminal, and
// on success a record is stored for every dirty package.
func RunWithCache(subcommand string, args []string, ws *Workspace, state *WorkspaceState, opts RunOptions) (*RunResult, error) {
	if opts.Reporter == nil {
		opts.Reporter = NewReporter()
	}
	if opts.MirrorOut == nil {
		opts.MirrorOut = os.Stdout
	}
	if opts.MirrorErr == nil {
		opts.MirrorErr = os.Stderr
	}

	var (
		classifications map[string]Classification
		dirty           map[string]struct{}
		cached          = IsDelegated(subcommand) && !opts.DisableIncremental
	)
	if cached {
		graph := BuildDependencyGraph(ws)
		classifications = ClassifyWorkspace(opts.Store, state, graph)
		dirty = DirtySet(classifications)

		if len(dirty) == 0 && len(ws.Packages) > 0 {
			opts.Reporter.UpToDate(subcommand)

			res := &RunResult{Skipped: true, ExitCode: 0, Classifications: classifications}
			if id, err := opts.Store.LatestLogID(); err == nil {
				res.LogPath = opts.Store.LogPath(id)
			}
			return res, nil
		}

		opts.Reporter.BuildPlan(len(ws.Packages), dirty)
	}

	if wrapper := os.Getenv("RUSTC_WRAPPER"); strings.Contains(wrapper, "sccache") {
		opts.Reporter.Infof("using sccache for cross-project caching")
	}

	id := cache.NewInvocationID(time.Now(), state.CommandHash.Short())
	logPath := opts.Store.LogPath(id)
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, newError(ErrCacheRootUnwritable, logPath, err)
	}

	start := time.Now()
	lineCount, exitCode, sig, runErr := runCargo(subcommand, args, logFile, opts.MirrorOut, opts.MirrorErr)
	duration := time.Since(start)

	_ = logFile.Sync()
	_ = logFile.Close()

	if runErr != nil {
		return nil, runErr
	}

	inv := &cache.Invocation{
		ID:              id,
		Command:         strings.Join(append([]string{"cargo", subcommand}, args...), " "),
		Subcommand:      subcommand,
		Args:            args,
		Timestamp:       start.Format(time.RFC3339),
		ExitCode:        &exitCode,
		Profile:         ProfileTag(args),
		TargetDir:       ws.ResolveTargetDir(args),
		WorkspaceDigest: workspaceDigest(state),
		LineCount:       lineCount,
		DurationMS:      duration.Milliseconds(),
		EnvHash:         string(state.EnvHash),
		Signal:          sig,
	}
	if err := opts.Store.WriteInvocation(inv); err != nil {
		log.WithError(err).Warn("cannot persist invocation metadata")
	}

	// records are written only for clean, successful runs
	if cached && exitCode == 0 && sig == "" {
		storeRecords(opts.Store, ws, state, args, dirty, duration)
	}

	opts.Reporter.Infof("cached %d lines to %s", lineCount, id)

	return &RunResult{
		InvocationID:    id,
		ExitCode:        exitCode,
		Classifications: classifications,
		LogPath:         logPath,
	}, nil
}

// runCargo spawns cargo and multiplexes its output. Two producer goroutines
// pump stdout and stderr line-by-line into a shared bounded channel; a single
// consumer writes each line to the log and mirrors it to the terminal. The
// ordering guarantee is per-stream line atomicity, not cross-stream order.
func runCargo(subcommand string, args []string, logFile io.Writer, mirrorOut, mirrorErr io.Writer) (lineCount, exitCode int, sig string, err error) {
	cmd := exec.Command("cargo", append([]string{subcommand}, args...)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, 0, "", newError(ErrChildSpawnFailed, "stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, 0, "", newError(ErrChildSpawnFailed, "stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return 0, 0, "", newError(ErrChildSpawnFailed, "cargo "+subcommand, err)
	}

	type logLine struct {
		text  string
		isErr bool
	}
	lines := make(chan logLine, logLineBuffer)

	pump := func(r io.Reader, isErr bool, done chan<- struct{}) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- logLine{text: scanner.Text(), isErr: isErr}
		}
		done <- struct{}{}
	}

	pumpsDone := make(chan struct{}, 2)
	go pump(stdout, false, pumpsDone)
	go pump(stderr, true, pumpsDone)

	// forward interrupts to the child and remember what hit us
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	sigSeen := make(chan string, 1)
	go func() {
		for s := range signals {
			select {
			case sigSeen <- s.String():
			default:
			}
			_ = cmd.Process.Signal(s)
		}
	}()

	consumerDone := make(chan int)
	go func() {
		var count int
		for line := range lines {
			_, _ = io.WriteString(logFile, line.text+"\n")
			if line.isErr {
				_, _ = io.WriteString(mirrorErr, line.text+"\n")
			} else {
				_, _ = io.WriteString(mirrorOut, line.text+"\n")
			}
			count++
		}
		consumerDone <- count
	}()

	<-pumpsDone
	<-pumpsDone
	close(lines)
	lineCount = <-consumerDone

	waitErr := cmd.Wait()
	exitCode = cmd.ProcessState.ExitCode()

	// unregister before closing so the signal package never sends on a closed
	// channel; closing ends the forwarder's range loop
	signal.Stop(signals)
	close(signals)

	select {
	case sig = <-sigSeen:
	default:
	}

	if exitCode < 0 {
		// child died to a signal
		exitCode = 130
	}
	if waitErr != nil {
		log.WithError(waitErr).WithField("exitCode", exitCode).Debug("cargo exited with error")
	}
	if sig != "" {
		_, _ = io.WriteString(logFile, "[cargo-save] terminated by "+sig+"\n")
	}

	return lineCount, exitCode, sig, nil
}

// storeRecords persists an incremental record for every dirty package after a
// successful run. Fresh packages keep their existing record untouched.
func storeRecords(store *cache.Store, ws *Workspace, state *WorkspaceState, args []string, dirty map[string]struct{}, duration time.Duration) {
	perPkg := duration.Milliseconds()
	if len(dirty) > 0 {
		perPkg /= int64(len(dirty))
	}

	for name := range dirty {
		fp, ok := state.Fingerprints[name]
		if !ok {
			continue
		}
		pkg, err := ws.PackageByName(name)
		if err != nil {
			continue
		}
		if _, failed := state.SourceHashFailures[name]; failed {
			// no trustworthy source digest, so no record: the package stays
			// dirty until hashing succeeds
			continue
		}

		witnesses, artifacts := collectWitnesses(ws.ResolveTargetDir(args), fp.Profile, name)
		rec := &cache.Record{
			PackageName:    name,
			PackageVersion: pkg.Version,
			SourceHash:     string(fp.SourceHash),
			LockfileHash:   string(fp.LockfileHash),
			CommandHash:    string(fp.CommandHash),
			EnvHash:        string(fp.EnvHash),
			FeaturesHash:   string(fp.FeaturesHash),
			ToolchainHash:  string(fp.ToolchainHash),
			Profile:        fp.Profile,
			Witnesses:      witnesses,
			ArtifactPaths:  artifacts,
			Timestamp:      time.Now().Format(time.RFC3339),
			Success:        true,
			DurationMS:     perPkg,
		}
		if err := store.Store(fp.CacheKey(), rec); err != nil {
			log.WithError(err).WithField("package", name).Warn("cannot store incremental record")
		}
	}
}

// collectWitnesses lists the target-directory files whose name encodes the
// package, with their current sizes. Cargo flattens dashes to underscores in
// artifact names, so both spellings match.
func collectWitnesses(targetDir, profile, pkgName string) ([]cache.Witness, []string) {
	var (
		witnesses []cache.Witness
		artifacts []string
	)
	underscored := strings.ReplaceAll(pkgName, "-", "_")

	matches := func(name string) bool {
		return strings.Contains(name, pkgName) || strings.Contains(name, underscored)
	}

	scan := func(dir string, maxDepth int, recordArtifacts bool) {
		rootDepth := strings.Count(filepath.Clean(dir), string(filepath.Separator))
		_ = godirwalk.Walk(dir, &godirwalk.Options{
			Unsorted: true,
			Callback: func(osPathname string, de *godirwalk.Dirent) error {
				if de.IsDir() {
					if strings.Count(osPathname, string(filepath.Separator))-rootDepth >= maxDepth {
						return filepath.SkipDir
					}
					return nil
				}
				if !de.IsRegular() || !matches(de.Name()) {
					return nil
				}
				stat, err := os.Stat(osPathname)
				if err != nil {
					return nil
				}
				witnesses = append(witnesses, cache.Witness{Path: osPathname, Size: stat.Size()})
				if recordArtifacts {
					artifacts = append(artifacts, osPathname)
				}
				return nil
			},
			ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
				return godirwalk.SkipNode
			},
		})
	}

	scan(filepath.Join(targetDir, profile, ".fingerprint"), 2, false)
	scan(filepath.Join(targetDir, profile, "deps"), 1, true)

	return witnesses, artifacts
}

// workspaceDigest condenses the per-package source hashes into a single
// digest stored with the invocation metadata.
func workspaceDigest(state *WorkspaceState) string {
	h, err := newHasher()
	if err != nil {
		return ""
	}
	for _, pkg := range sortedFingerprints(state) {
		_, _ = h.Write([]byte(pkg.Name))
		_, _ = h.Write([]byte(pkg.SourceHash))
	}
	return finalize(h).Short()
}

func sortedFingerprints(state *WorkspaceState) []*PackageFingerprint {
	names := make([]string, 0, len(state.Fingerprints))
	for name := range state.Fingerprints {
		names = append(names, name)
	}
	// deterministic digest regardless of fan-out completion order
	sort.Strings(names)

	res := make([]*PackageFingerprint, 0, len(names))
	for _, name := range names {
		res = append(res, state.Fingerprints[name])
	}
	return res
}
