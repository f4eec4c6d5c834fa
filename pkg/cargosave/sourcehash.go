package cargosave

import (
	"hash"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/karrick/godirwalk"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	// lfsPointerPrefix is the magic prefix of a git-lfs pointer stub
	lfsPointerPrefix = "version https://git-lfs.github.com/spec/"

	// fallbackMaxDepth bounds the filesystem walk when git is unavailable
	fallbackMaxDepth = 10
)

// fallbackWarning fires at most once per process when source hashing has to
// fall back to walking the filesystem.
var fallbackWarning sync.Once

// sourceExtensions are the file extensions the fallback walk feeds into the
// hash.
var sourceExtensions = map[string]struct{}{
	".rs":   {},
	".toml": {},
}

// skippedDirs are path segments the fallback walk never descends into.
var skippedDirs = map[string]struct{}{
	"target":       {},
	".git":         {},
	"node_modules": {},
}

// HashPackageSource computes the content fingerprint of a package's source
// tree. The git fast path fingerprints the committed tree via ls-tree, the
// working-copy delta via status --porcelain, and only reads the contents of
// files git reports as modified or new. Without git (or for untracked paths)
// it falls back to a bounded filesystem walk.
func HashPackageSource(pkgRoot string) (Digest, error) {
	info := GetGitRepoInfo(pkgRoot)

	if info != nil {
		if digest, ok := hashSourceViaGit(pkgRoot, info); ok {
			return digest, nil
		}
	}

	fallbackWarning.Do(func() {
		log.Warn("git not available or path not tracked, using file-based hashing (less accurate)")
	})

	return hashSourceViaWalk(pkgRoot)
}

func hashSourceViaGit(pkgRoot string, info *GitRepoInfo) (Digest, bool) {
	// Linked worktrees run git from the worktree root. The worktree indicator
	// is mixed into the hash below, so a worktree and the primary checkout
	// never share a digest.
	effectiveRoot := pkgRoot
	if info.IsWorktree && info.WorktreeRoot != "" {
		effectiveRoot = info.WorktreeRoot
	}

	tracked, err := executeGitCommand(effectiveRoot, "ls-tree", "-r", "HEAD", pkgRoot)
	if err != nil || len(tracked) == 0 {
		return "", false
	}

	h, err := newHasher()
	if err != nil {
		return "", false
	}
	_, _ = h.Write(tracked)

	status, err := executeGitCommand(effectiveRoot, "status", "--porcelain", pkgRoot)
	if err == nil && len(status) > 0 {
		_, _ = h.Write(status)

		// porcelain paths are relative to the repository top level, not to
		// the directory git ran in
		statusBase := effectiveRoot
		if top, err := executeGitCommand(effectiveRoot, "rev-parse", "--show-toplevel"); err == nil {
			statusBase = strings.TrimSpace(string(top))
		}

		for _, rel := range parseStatusPaths(status) {
			full := filepath.Join(statusBase, rel)
			stat, err := os.Stat(full)
			if err != nil || stat.IsDir() {
				// treated as absent: deletions are already captured by the
				// status bytes themselves
				continue
			}
			hashWorkingCopyFile(h, rel, full, info)
		}
	}

	if sub, err := executeGitCommand(effectiveRoot, "submodule", "status"); err == nil && len(sub) > 0 {
		_, _ = h.Write([]byte("SUBMODULES:"))
		_, _ = h.Write(sub)
	}

	if patterns := info.SparseCheckoutPatterns(); len(patterns) > 0 {
		_, _ = h.Write([]byte("SPARSE:"))
		for _, p := range patterns {
			_, _ = h.Write([]byte(p))
		}
	}

	if info.IsShallow {
		_, _ = h.Write([]byte("SHALLOW"))
		if content, err := os.ReadFile(filepath.Join(info.GitDir, "shallow")); err == nil {
			_, _ = h.Write(content)
		}
	}

	if info.IsWorktree {
		_, _ = h.Write([]byte("WORKTREE"))
	}

	return finalize(h), true
}

// hashWorkingCopyFile feeds a single modified or untracked file into the
// hash. LFS pointer stubs contribute their object id line instead of the stub
// bytes, so that the hash tracks the actual large object.
func hashWorkingCopyFile(h hash.Hash, rel, full string, info *GitRepoInfo) {
	content, err := os.ReadFile(full)
	if err != nil {
		// file vanished between status and read: treat as absent
		return
	}

	if info.HasLFS && strings.HasPrefix(string(content), lfsPointerPrefix) {
		if oid := lfsPointerOID(string(content)); oid != "" {
			_, _ = h.Write([]byte("LFS:"))
			_, _ = h.Write([]byte(oid))
			return
		}
	}

	_, _ = h.Write([]byte(rel))
	_, _ = h.Write(content)
}

// lfsPointerOID extracts the object id from an LFS pointer stub.
func lfsPointerOID(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "oid sha256:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "oid sha256:"))
		}
	}
	return ""
}

func hashSourceViaWalk(pkgRoot string) (Digest, error) {
	h, err := newHasher()
	if err != nil {
		return "", newError(ErrSourceHashFailed, pkgRoot, err)
	}

	rootDepth := strings.Count(filepath.Clean(pkgRoot), string(filepath.Separator))

	var files []string
	err = godirwalk.Walk(pkgRoot, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				if _, skip := skippedDirs[de.Name()]; skip {
					return filepath.SkipDir
				}
				if strings.Count(osPathname, string(filepath.Separator))-rootDepth >= fallbackMaxDepth {
					return filepath.SkipDir
				}
				return nil
			}
			if !de.IsRegular() {
				return nil
			}
			if _, ok := sourceExtensions[filepath.Ext(osPathname)]; !ok {
				return nil
			}
			files = append(files, osPathname)
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return "", newError(ErrSourceHashFailed, pkgRoot, err)
	}

	// the walk is unsorted for speed - restore determinism before hashing
	sort.Strings(files)

	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		_, _ = h.Write([]byte(f))
		_, _ = h.Write(content)
	}

	if len(files) == 0 {
		if _, err := os.Stat(pkgRoot); err != nil {
			return "", newError(ErrSourceHashFailed, pkgRoot, xerrors.Errorf("package root not readable: %w", err))
		}
	}

	return finalize(h), nil
}
