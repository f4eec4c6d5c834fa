package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Invocation is the metadata captured for one real run of cargo. Its ID
// doubles as the log filename stem.
type Invocation struct {
	ID              string   `json:"id"`
	Command         string   `json:"command"`
	Subcommand      string   `json:"subcommand"`
	Args            []string `json:"args"`
	Timestamp       string   `json:"timestamp"`
	ExitCode        *int     `json:"exit_code"`
	Profile         string   `json:"profile"`
	TargetDir       string   `json:"target_dir"`
	WorkspaceDigest string   `json:"workspace_digest"`
	LineCount       int      `json:"line_count"`
	DurationMS      int64    `json:"duration_ms"`
	EnvHash         string   `json:"env_hash"`
	// Signal names the signal that terminated the run, if any
	Signal string `json:"signal,omitempty"`
}

// NewInvocationID allocates an invocation identifier combining the local
// timestamp with an 8-hex-character prefix of the command hash. The name
// keeps one invocation's log out of reach of concurrent processes.
func NewInvocationID(now time.Time, commandHash string) string {
	short := commandHash
	if len(short) > 8 {
		short = short[:8]
	}
	return now.Format("20060102_150405") + "-" + short
}

// LogPath returns the log file path for an invocation id.
func (s *Store) LogPath(id string) string {
	return filepath.Join(s.Root, id+".log")
}

// MetadataPath returns the metadata file path for an invocation id.
func (s *Store) MetadataPath(id string) string {
	return filepath.Join(s.MetadataDir, id+".json")
}

// WriteInvocation persists invocation metadata, atomically.
func (s *Store) WriteInvocation(inv *Invocation) error {
	content, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.MetadataDir, inv.ID+"-*.tmp")
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
	return os.Rename(tmp.Name(), s.MetadataPath(inv.ID))
}

// ReadInvocation loads the metadata for an invocation id.
func (s *Store) ReadInvocation(id string) (*Invocation, error) {
	content, err := os.ReadFile(s.MetadataPath(id))
	if err != nil {
		return nil, err
	}

	var inv Invocation
	if err := json.Unmarshal(content, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// RecentInvocations returns up to n stored invocations, most recent first,
// ordered by metadata file modification time. Malformed metadata files are
// skipped.
func (s *Store) RecentInvocations(n int) ([]*Invocation, error) {
	entries, err := os.ReadDir(s.MetadataDir)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		id  string
		mod time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			id:  strings.TrimSuffix(e.Name(), ".json"),
			mod: info.ModTime(),
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].mod.After(candidates[j].mod) })

	var res []*Invocation
	for _, c := range candidates {
		if n > 0 && len(res) >= n {
			break
		}
		inv, err := s.ReadInvocation(c.id)
		if err != nil {
			continue
		}
		res = append(res, inv)
	}
	return res, nil
}

// LatestLogID returns the id of the most recently modified log file.
func (s *Store) LatestLogID() (string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return "", err
	}

	var (
		latest    string
		latestMod time.Time
	)
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = strings.TrimSuffix(e.Name(), ".log")
			latestMod = info.ModTime()
		}
	}
	if latest == "" {
		return "", os.ErrNotExist
	}
	return latest, nil
}
