package cargosave

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Package is a single workspace member as reported by cargo metadata. It is
// read-only for the duration of one invocation.
type Package struct {
	// Name is the package name
	Name string
	// Version is the package version string
	Version string
	// ManifestPath is the absolute path to the package's Cargo.toml
	ManifestPath string
	// Root is the absolute package root (the manifest's directory)
	Root string
	// Dependencies names the package's dependencies, restricted to other
	// workspace members
	Dependencies []string
}

// Workspace is the result of introspecting cargo metadata: the member
// packages plus the paths everything else keys off.
type Workspace struct {
	// Root is the workspace root directory
	Root string
	// TargetDir is the cargo target directory reported by metadata
	TargetDir string
	// Packages are the workspace members
	Packages []*Package
}

// cargoMetadata mirrors the subset of `cargo metadata --format-version 1`
// this tool consumes. Unknown fields are ignored.
type cargoMetadata struct {
	Packages []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Version      string `json:"version"`
		ManifestPath string `json:"manifest_path"`
		Dependencies []struct {
			Name string `json:"name"`
		} `json:"dependencies"`
	} `json:"packages"`
	WorkspaceMembers []string `json:"workspace_members"`
	WorkspaceRoot    string   `json:"workspace_root"`
	TargetDirectory  string   `json:"target_directory"`
}

// DiscoverWorkspace shells out to cargo metadata and parses the result into
// the workspace member list. External dependencies are not retained: changes
// to them are captured by the lockfile hash.
func DiscoverWorkspace(dir string) (*Workspace, error) {
	cmd := exec.Command("cargo", "metadata", "--format-version", "1")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, newError(ErrMetadataUnavailable, "cargo metadata", err)
	}

	ws, err := parseCargoMetadata(out)
	if err != nil {
		return nil, err
	}

	log.WithField("root", ws.Root).WithField("packages", len(ws.Packages)).Debug("discovered workspace")
	return ws, nil
}

// parseCargoMetadata turns the raw cargo metadata JSON into the workspace
// member list.
func parseCargoMetadata(out []byte) (*Workspace, error) {
	var meta cargoMetadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, newError(ErrMetadataUnavailable, "parse cargo metadata", err)
	}

	members := make(map[string]struct{}, len(meta.WorkspaceMembers))
	for _, id := range meta.WorkspaceMembers {
		members[id] = struct{}{}
	}

	memberNames := make(map[string]struct{})
	for _, p := range meta.Packages {
		if _, ok := members[p.ID]; ok {
			memberNames[p.Name] = struct{}{}
		}
	}

	ws := &Workspace{
		Root:      meta.WorkspaceRoot,
		TargetDir: meta.TargetDirectory,
	}
	for _, p := range meta.Packages {
		if _, ok := members[p.ID]; !ok {
			continue
		}

		pkg := &Package{
			Name:         p.Name,
			Version:      p.Version,
			ManifestPath: p.ManifestPath,
			Root:         filepath.Dir(p.ManifestPath),
		}
		for _, dep := range p.Dependencies {
			if _, ok := memberNames[dep.Name]; ok {
				pkg.Dependencies = append(pkg.Dependencies, dep.Name)
			}
		}
		ws.Packages = append(ws.Packages, pkg)
	}
	return ws, nil
}

// ResolveTargetDir determines the effective cargo target directory:
// --target-dir argument, CARGO_TARGET_DIR, the metadata-reported directory,
// then <root>/target.
func (w *Workspace) ResolveTargetDir(args []string) string {
	for i, arg := range args {
		if arg == "--target-dir" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--target-dir=") {
			return strings.TrimPrefix(arg, "--target-dir=")
		}
	}
	if dir := os.Getenv("CARGO_TARGET_DIR"); dir != "" {
		return dir
	}
	if w.TargetDir != "" {
		return w.TargetDir
	}
	return filepath.Join(w.Root, "target")
}

// PackageByName returns the workspace member with the given name.
func (w *Workspace) PackageByName(name string) (*Package, error) {
	for _, p := range w.Packages {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, xerrors.Errorf("package %q is not a workspace member", name)
}
