package cache

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// PrunePolicy selects which files to reclaim. OlderThanDays and KeepLast may
// be combined; a file is deleted when it violates either bound. Zero values
// leave the corresponding bound unset.
type PrunePolicy struct {
	OlderThanDays int
	KeepLast      int
}

// PruneResult reports what a prune pass removed.
type PruneResult struct {
	Records int
	Logs    int
}

// Prune applies the policy to record files and to log files (with their
// metadata). Records and logs are pruned independently; no cross-reference is
// kept between them.
func (s *Store) Prune(policy PrunePolicy, now time.Time) (PruneResult, error) {
	var res PruneResult

	records, err := filesByAge(s.IncrementalDir, ".json")
	if err != nil {
		return res, err
	}
	for _, f := range selectPrunable(records, policy, now) {
		if os.Remove(f.path) == nil {
			res.Records++
		}
	}

	logs, err := filesByAge(s.Root, ".log")
	if err != nil {
		return res, err
	}
	for _, f := range selectPrunable(logs, policy, now) {
		if os.Remove(f.path) == nil {
			res.Logs++
		}
		// the invocation metadata travels with its log
		id := strings.TrimSuffix(filepath.Base(f.path), ".log")
		_ = os.Remove(s.MetadataPath(id))
	}

	log.WithField("records", res.Records).WithField("logs", res.Logs).Debug("pruned cache")
	return res, nil
}

type agedFile struct {
	path string
	mod  time.Time
}

// filesByAge lists files with ext in dir, oldest first.
func filesByAge(dir, ext string) ([]agedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []agedFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, agedFile{path: filepath.Join(dir, e.Name()), mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	return files, nil
}

func selectPrunable(files []agedFile, policy PrunePolicy, now time.Time) []agedFile {
	var prunable []agedFile

	keepFrom := len(files)
	if policy.KeepLast > 0 {
		keepFrom = len(files) - policy.KeepLast
		if keepFrom < 0 {
			keepFrom = 0
		}
	}

	var cutoff time.Time
	if policy.OlderThanDays > 0 {
		cutoff = now.Add(-time.Duration(policy.OlderThanDays) * 24 * time.Hour)
	}

	for i, f := range files {
		tooMany := policy.KeepLast > 0 && i < keepFrom
		tooOld := policy.OlderThanDays > 0 && f.mod.Before(cutoff)
		if tooMany || tooOld {
			prunable = append(prunable, f)
		}
	}
	return prunable
}
