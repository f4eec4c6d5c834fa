package cargosave

import (
	log "github.com/sirupsen/logrus"

	"github.com/hautlys/cargo-save/pkg/cargosave/cache"
)

// CacheKey derives the composite on-disk identity from a fingerprint. The
// source, environment and features components are truncated for filename
// addressing only; validation always compares the full digests stored in the
// record.
func (fp *PackageFingerprint) CacheKey() cache.Key {
	return cache.Key{
		Name:          fp.Name,
		SourceShort:   fp.SourceHash.Short(),
		CommandShort:  fp.CommandHash.Short(),
		EnvShort:      fp.EnvHash.Short(),
		Profile:       fp.Profile,
		FeaturesShort: fp.FeaturesHash.Short(),
	}
}

// Inputs returns the full digests validation compares against a record.
func (fp *PackageFingerprint) Inputs() cache.Inputs {
	return cache.Inputs{
		SourceHash:    string(fp.SourceHash),
		LockfileHash:  string(fp.LockfileHash),
		EnvHash:       string(fp.EnvHash),
		FeaturesHash:  string(fp.FeaturesHash),
		ToolchainHash: string(fp.ToolchainHash),
		Profile:       fp.Profile,
	}
}

// Classification is one package's verdict for one invocation.
type Classification struct {
	Status cache.Status
	Reason cache.Reason
}

// ClassifyWorkspace classifies every package as fresh or dirty against the
// store, then augments the dirty set with its transitive reverse closure:
// packages that were fresh but depend-from a dirty package become
// DirtyTransitive.
func ClassifyWorkspace(store *cache.Store, state *WorkspaceState, graph *DependencyGraph) map[string]Classification {
	res := make(map[string]Classification, len(state.Fingerprints))
	dirty := make(map[string]struct{})

	for name, fp := range state.Fingerprints {
		if _, failed := state.SourceHashFailures[name]; failed {
			res[name] = Classification{Status: cache.StatusDirty, Reason: cache.ReasonSourceChanged}
			dirty[name] = struct{}{}
			continue
		}

		status, reason := store.Classify(fp.CacheKey(), fp.Inputs())
		res[name] = Classification{Status: status, Reason: reason}
		if status == cache.StatusDirty {
			dirty[name] = struct{}{}
		}
	}

	for name := range graph.ReverseClosure(dirty) {
		if _, direct := dirty[name]; direct {
			continue
		}
		if _, known := res[name]; !known {
			continue
		}
		res[name] = Classification{Status: cache.StatusDirtyTransitive}
		log.WithField("package", name).Debug("dirty through reverse dependency")
	}

	return res
}

// DirtySet returns the names of all packages that need rebuilding, direct or
// transitive.
func DirtySet(classifications map[string]Classification) map[string]struct{} {
	res := make(map[string]struct{})
	for name, c := range classifications {
		if c.Status == cache.StatusDirty || c.Status == cache.StatusDirtyTransitive {
			res[name] = struct{}{}
		}
	}
	return res
}
