package cargosave

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GitError represents an error that occurred during a git operation
type GitError struct {
	Op  string
	Err error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git operation %s failed: %v", e.Op, e.Err)
}

// GitRepoInfo describes the git working copy a package lives in, including
// the advanced features that must feed the source hash so that toggling them
// invalidates the cache.
type GitRepoInfo struct {
	// GitDir is the resolved git directory
	GitDir string
	// IsWorktree is true when the checkout is a linked worktree rather than
	// the primary working copy
	IsWorktree bool
	// WorktreeRoot is the top-level directory of a linked worktree
	WorktreeRoot string
	// IsShallow is true when the clone carries a shallow marker file
	IsShallow bool
	// IsSparse is true when a sparse-checkout pattern file is present
	IsSparse bool
	// HasLFS is true when git-lfs responds for this working copy
	HasLFS bool
}

// executeGitCommand is a helper function to execute git commands and return
// their raw output
func executeGitCommand(dir string, args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, &GitError{
			Op:  strings.Join(args, " "),
			Err: err,
		}
	}
	return out, nil
}

// GetGitRepoInfo inspects the repository containing path. It returns nil when
// path is not inside a git working copy.
func GetGitRepoInfo(path string) *GitRepoInfo {
	out, err := executeGitCommand(path, "rev-parse", "--git-dir")
	if err != nil {
		return nil
	}

	gitDir := strings.TrimSpace(string(out))
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(path, gitDir)
	}

	res := &GitRepoInfo{
		GitDir:     gitDir,
		IsWorktree: filepath.Base(gitDir) != gitDirName,
	}

	if res.IsWorktree {
		if out, err := executeGitCommand(path, "rev-parse", "--show-toplevel"); err == nil {
			res.WorktreeRoot = strings.TrimSpace(string(out))
		}
	}

	if _, err := os.Stat(filepath.Join(gitDir, "shallow")); err == nil {
		res.IsShallow = true
	}
	if _, err := os.Stat(filepath.Join(gitDir, "info", "sparse-checkout")); err == nil {
		res.IsSparse = true
	}

	lfs := exec.Command("git", "lfs", "env")
	lfs.Dir = path
	if err := lfs.Run(); err == nil {
		res.HasLFS = true
	} else {
		log.WithField("path", path).Debug("git lfs not available for working copy")
	}

	return res
}

const gitDirName = ".git"

// SparseCheckoutPatterns returns the non-comment, non-blank lines of the
// sparse-checkout pattern file, or nil when sparse checkout is not enabled.
func (info *GitRepoInfo) SparseCheckoutPatterns() []string {
	if !info.IsSparse {
		return nil
	}

	content, err := os.ReadFile(filepath.Join(info.GitDir, "info", "sparse-checkout"))
	if err != nil {
		return nil
	}

	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// parseStatusPaths extracts the file paths from "git status --porcelain"
// output, in git's own output order. Rename lines contribute the destination
// path.
func parseStatusPaths(out []byte) []string {
	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) < 4 {
			continue
		}
		p := line[3:]
		if idx := strings.Index(p, " -> "); idx >= 0 {
			p = p[idx+4:]
		}
		p = strings.Trim(p, "\"")
		paths = append(paths, p)
	}
	return paths
}
