// Package cache implements the on-disk incremental cache: per-package build
// records keyed by a composite identity, invocation metadata, and build logs.
//
// Layout:
//
//	<cache-root>/v4/
//	  incremental/<cache-key>.json
//	  metadata/<invocation>.json
//	  <invocation>.log
//
// A directory with a different schema version is ignored, never migrated: a
// schema change bumps the version and the next build repopulates.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// SchemaVersion is the store schema version directory segment.
const SchemaVersion = "v4"

// Key is the composite identity a record file is named after. The source,
// environment and features components are 16-hex-character prefixes; the full
// digests live inside the record and are what validation compares.
type Key struct {
	Name          string
	SourceShort   string
	CommandShort  string
	EnvShort      string
	Profile       string
	FeaturesShort string
}

func (k Key) String() string {
	return fmt.Sprintf("%s-%s-%s-%s-%s-%s", k.Name, k.SourceShort, k.CommandShort, k.EnvShort, k.Profile, k.FeaturesShort)
}

// Inputs carries the full digests of the current invocation, for validation
// against a stored record. Validation never short-circuits on the truncated
// key components.
type Inputs struct {
	SourceHash    string
	LockfileHash  string
	EnvHash       string
	FeaturesHash  string
	ToolchainHash string
	Profile       string
}

// Witness is an on-disk artifact whose continued presence and byte-size
// equality is taken as evidence that a prior build's output still exists.
// Mtime is deliberately not recorded; size is a cheap structural witness, not
// an integrity check.
type Witness struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Record is the persistent per-package cache record. A record is only ever
// written after a successful build; it is never mutated, invalidation means
// deletion.
type Record struct {
	PackageName    string    `json:"package_name"`
	PackageVersion string    `json:"package_version"`
	SourceHash     string    `json:"source_hash"`
	LockfileHash   string    `json:"lockfile_hash"`
	CommandHash    string    `json:"command_hash"`
	EnvHash        string    `json:"env_hash"`
	FeaturesHash   string    `json:"features_hash"`
	ToolchainHash  string    `json:"toolchain_hash"`
	Profile        string    `json:"profile"`
	Witnesses      []Witness `json:"witnesses"`
	ArtifactPaths  []string  `json:"artifact_paths"`
	Timestamp      string    `json:"timestamp"`
	Success        bool      `json:"success"`
	DurationMS     int64     `json:"duration_ms"`
}

// Status classifies a package for one invocation.
type Status int

const (
	// StatusFresh means the package's record validates against the current state
	StatusFresh Status = iota
	// StatusDirty means the record is missing or validation failed
	StatusDirty
	// StatusDirtyTransitive means the package was fresh but is reachable from
	// a dirty package via reverse-dependency edges
	StatusDirtyTransitive
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusDirty:
		return "dirty"
	case StatusDirtyTransitive:
		return "dirty (transitive)"
	}
	return "unknown"
}

// Reason discriminates why a package is dirty.
type Reason string

const (
	ReasonSourceChanged    Reason = "source-changed"
	ReasonDepsChanged      Reason = "deps-changed"
	ReasonEnvChanged       Reason = "env-changed"
	ReasonFeaturesChanged  Reason = "features-changed"
	ReasonToolchainChanged Reason = "toolchain-changed"
	ReasonProfileChanged   Reason = "profile-changed"
	ReasonArtifactMissing  Reason = "artifact-missing"
	ReasonNoRecord         Reason = "no-record"
	ReasonPriorFailure     Reason = "prior-failure"
	ReasonCorruptRecord    Reason = "corrupt-record"
)

// Store is the on-disk incremental cache store. It is safe for concurrent
// use across processes: writes are atomic at record granularity, malformed
// records are deleted on read, and no file locking is used.
type Store struct {
	// Root is the versioned cache root, i.e. <cache-dir>/v4
	Root string
	// IncrementalDir holds the per-package record files
	IncrementalDir string
	// MetadataDir holds the per-invocation metadata files
	MetadataDir string
}

// NewStore creates (if needed) and opens the store under dir, inside the
// schema version segment.
func NewStore(dir string) (*Store, error) {
	root := filepath.Join(dir, SchemaVersion)
	s := &Store{
		Root:           root,
		IncrementalDir: filepath.Join(root, "incremental"),
		MetadataDir:    filepath.Join(root, "metadata"),
	}

	for _, d := range []string{s.Root, s.IncrementalDir, s.MetadataDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	return s, nil
}

func (s *Store) recordPath(key Key) string {
	return filepath.Join(s.IncrementalDir, key.String()+".json")
}

// Lookup reads the record stored under key. A missing file returns (nil,
// ReasonNoRecord). A malformed file is deleted and returns (nil,
// ReasonCorruptRecord): tolerate-and-delete keeps concurrent access safe
// against crashes mid-write.
func (s *Store) Lookup(key Key) (*Record, Reason) {
	content, err := os.ReadFile(s.recordPath(key))
	if err != nil {
		return nil, ReasonNoRecord
	}

	var rec Record
	if err := json.Unmarshal(content, &rec); err != nil || rec.PackageName == "" || rec.SourceHash == "" {
		log.WithField("key", key.String()).Warn("deleting corrupt cache record")
		_ = os.Remove(s.recordPath(key))
		return nil, ReasonCorruptRecord
	}
	return &rec, ""
}

// Validate checks a record against the current inputs and the artifact
// filesystem. It compares full digests only and requires every witness to
// still exist with an equal byte size.
func Validate(rec *Record, in Inputs) (bool, Reason) {
	if !rec.Success {
		return false, ReasonPriorFailure
	}
	if rec.SourceHash != in.SourceHash {
		return false, ReasonSourceChanged
	}
	if rec.LockfileHash != in.LockfileHash {
		return false, ReasonDepsChanged
	}
	if rec.EnvHash != in.EnvHash {
		return false, ReasonEnvChanged
	}
	if rec.FeaturesHash != in.FeaturesHash {
		return false, ReasonFeaturesChanged
	}
	if rec.ToolchainHash != in.ToolchainHash {
		return false, ReasonToolchainChanged
	}
	if rec.Profile != in.Profile {
		return false, ReasonProfileChanged
	}
	for _, w := range rec.Witnesses {
		stat, err := os.Stat(w.Path)
		if err != nil || stat.Size() != w.Size {
			return false, ReasonArtifactMissing
		}
	}
	return true, ""
}

// Classify combines lookup and validation into the per-package verdict.
//
// When the key itself misses (most input changes move the key, since it
// embeds the input digest prefixes), the package's newest prior record is
// consulted to name WHAT changed rather than reporting a bare miss.
func (s *Store) Classify(key Key, in Inputs) (Status, Reason) {
	rec, reason := s.Lookup(key)
	if rec == nil {
		if reason == ReasonNoRecord {
			if prior := s.newestRecordFor(key.Name); prior != nil {
				if ok, why := Validate(prior, in); !ok {
					return StatusDirty, why
				}
			}
		}
		return StatusDirty, reason
	}
	if ok, reason := Validate(rec, in); !ok {
		return StatusDirty, reason
	}
	return StatusFresh, ""
}

// newestRecordFor returns the package's most recently written record under
// any key, or nil. Used for diagnosis only, never for cache hits.
func (s *Store) newestRecordFor(name string) *Record {
	entries, err := os.ReadDir(s.IncrementalDir)
	if err != nil {
		return nil
	}

	var (
		newest    *Record
		newestMod int64
	)
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), name+"-") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		content, err := os.ReadFile(filepath.Join(s.IncrementalDir, e.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if json.Unmarshal(content, &rec) != nil || rec.PackageName != name {
			continue
		}
		if newest == nil || info.ModTime().UnixNano() > newestMod {
			newest = &rec
			newestMod = info.ModTime().UnixNano()
		}
	}
	return newest
}

// Store writes a record atomically: sibling temp file, then rename into
// place. A process killed mid-write leaves either no record or a complete
// one.
func (s *Store) Store(key Key, rec *Record) error {
	content, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	dst := s.recordPath(key)
	tmp, err := os.CreateTemp(s.IncrementalDir, key.Name+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Invalidate deletes every record whose filename begins with "<name>-".
func (s *Store) Invalidate(name string) (int, error) {
	entries, err := os.ReadDir(s.IncrementalDir)
	if err != nil {
		return 0, err
	}

	var removed int
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), name+"-") {
			continue
		}
		if os.Remove(filepath.Join(s.IncrementalDir, e.Name())) == nil {
			removed++
		}
	}
	return removed, nil
}

// InvalidateAll deletes every record file.
func (s *Store) InvalidateAll() (int, error) {
	entries, err := os.ReadDir(s.IncrementalDir)
	if err != nil {
		return 0, err
	}

	var removed int
	for _, e := range entries {
		if os.Remove(filepath.Join(s.IncrementalDir, e.Name())) == nil {
			removed++
		}
	}
	return removed, nil
}
