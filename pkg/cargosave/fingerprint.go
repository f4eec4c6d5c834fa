package cargosave

import (
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// PackageFingerprint is the tuple of input digests that identifies the build
// state of one package. Computed fresh every invocation, never persisted by
// itself.
type PackageFingerprint struct {
	Name          string
	SourceHash    Digest
	LockfileHash  Digest
	EnvHash       Digest
	FeaturesHash  Digest
	ToolchainHash Digest
	CommandHash   Digest
	Profile       string
}

// WorkspaceState holds one invocation's view of the workspace: the package
// list and a fingerprint per package. It is owned by the orchestrator and
// holds no references into the on-disk store.
type WorkspaceState struct {
	Workspace    *Workspace
	Fingerprints map[string]*PackageFingerprint
	// SourceHashFailures names packages whose source could not be hashed by
	// either path. They are always classified dirty.
	SourceHashFailures map[string]error

	// invocation-wide digests, also present in every fingerprint
	CommandHash Digest
	EnvHash     Digest
	Profile     string
}

// ComputeWorkspaceState fingerprints every workspace package. Source hashing
// fans out over a worker pool sized to the CPU count; the auxiliary hashes
// are invocation-wide and computed once.
func ComputeWorkspaceState(ws *Workspace, subcommand string, args []string, extraEnv []string) (*WorkspaceState, error) {
	lockHash, err := HashLockfile(ws.Root)
	if err != nil {
		return nil, err
	}
	envHash, err := HashEnvironment(extraEnv)
	if err != nil {
		return nil, err
	}
	featHash, err := HashFeatures(args)
	if err != nil {
		return nil, err
	}
	toolHash, err := HashToolchain()
	if err != nil {
		return nil, err
	}
	cmdHash, err := HashCommand(subcommand, args)
	if err != nil {
		return nil, err
	}
	profile := ProfileTag(args)

	state := &WorkspaceState{
		Workspace:          ws,
		Fingerprints:       make(map[string]*PackageFingerprint, len(ws.Packages)),
		SourceHashFailures: make(map[string]error),
		CommandHash:        cmdHash,
		EnvHash:            envHash,
		Profile:            profile,
	}

	var (
		mu sync.Mutex
		eg errgroup.Group
	)
	eg.SetLimit(runtime.NumCPU())

	for _, pkg := range ws.Packages {
		pkg := pkg
		eg.Go(func() error {
			srcHash, err := HashPackageSource(pkg.Root)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.WithError(err).WithField("package", pkg.Name).Warn("cannot hash package source, treating as dirty")
				state.SourceHashFailures[pkg.Name] = err
			}
			state.Fingerprints[pkg.Name] = &PackageFingerprint{
				Name:          pkg.Name,
				SourceHash:    srcHash,
				LockfileHash:  lockHash,
				EnvHash:       envHash,
				FeaturesHash:  featHash,
				ToolchainHash: toolHash,
				CommandHash:   cmdHash,
				Profile:       profile,
			}
			return nil
		})
	}
	// the group never returns an error: hash failures degrade to dirty
	_ = eg.Wait()

	return state, nil
}
