package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(name string) Key {
	return Key{
		Name:          name,
		SourceShort:   "aaaaaaaaaaaaaaaa",
		CommandShort:  "bbbbbbbbbbbbbbbb",
		EnvShort:      "cccccccccccccccc",
		Profile:       "debug",
		FeaturesShort: "dddddddddddddddd",
	}
}

func testRecord(name string) *Record {
	return &Record{
		PackageName:    name,
		PackageVersion: "0.1.0",
		SourceHash:     "aaaaaaaaaaaaaaaa" + "0000000000000000000000000000000000000000000000aa",
		LockfileHash:   "lock",
		CommandHash:    "bbbbbbbbbbbbbbbb",
		EnvHash:        "env",
		FeaturesHash:   "feat",
		ToolchainHash:  "tool",
		Profile:        "debug",
		Timestamp:      time.Now().Format(time.RFC3339),
		Success:        true,
		DurationMS:     1200,
	}
}

func inputsFor(rec *Record) Inputs {
	return Inputs{
		SourceHash:    rec.SourceHash,
		LockfileHash:  rec.LockfileHash,
		EnvHash:       rec.EnvHash,
		FeaturesHash:  rec.FeaturesHash,
		ToolchainHash: rec.ToolchainHash,
		Profile:       rec.Profile,
	}
}

func TestKeyString(t *testing.T) {
	key := testKey("demo")
	assert.Equal(t, "demo-aaaaaaaaaaaaaaaa-bbbbbbbbbbbbbbbb-cccccccccccccccc-debug-dddddddddddddddd", key.String())
}

func TestStoreRoundtrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	key := testKey("demo")
	rec := testRecord("demo")
	require.NoError(t, store.Store(key, rec))

	got, reason := store.Lookup(key)
	require.NotNil(t, got, "expected a record, got miss with reason %s", reason)
	assert.Equal(t, rec.SourceHash, got.SourceHash)

	ok, _ := Validate(got, inputsFor(rec))
	assert.True(t, ok)

	// no stray temp files after a store
	entries, err := os.ReadDir(store.IncrementalDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLookupMissAndCorrupt(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	rec, reason := store.Lookup(testKey("absent"))
	assert.Nil(t, rec)
	assert.Equal(t, ReasonNoRecord, reason)

	// a truncated file must be deleted and reported corrupt
	key := testKey("broken")
	path := filepath.Join(store.IncrementalDir, key.String()+".json")
	require.NoError(t, os.WriteFile(path, []byte(`{"package_name": "bro`), 0644))

	rec, reason = store.Lookup(key)
	assert.Nil(t, rec)
	assert.Equal(t, ReasonCorruptRecord, reason)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "corrupt record must be deleted")

	// valid JSON missing required fields is corrupt too
	require.NoError(t, os.WriteFile(path, []byte(`{"success": true}`), 0644))
	rec, reason = store.Lookup(key)
	assert.Nil(t, rec)
	assert.Equal(t, ReasonCorruptRecord, reason)
}

func TestValidateReasons(t *testing.T) {
	tests := []struct {
		Name     string
		Mutate   func(*Record, *Inputs)
		Expected Reason
	}{
		{"prior failure", func(r *Record, _ *Inputs) { r.Success = false }, ReasonPriorFailure},
		{"source changed", func(_ *Record, in *Inputs) { in.SourceHash = "different" }, ReasonSourceChanged},
		{"deps changed", func(_ *Record, in *Inputs) { in.LockfileHash = "different" }, ReasonDepsChanged},
		{"env changed", func(_ *Record, in *Inputs) { in.EnvHash = "different" }, ReasonEnvChanged},
		{"features changed", func(_ *Record, in *Inputs) { in.FeaturesHash = "different" }, ReasonFeaturesChanged},
		{"toolchain changed", func(_ *Record, in *Inputs) { in.ToolchainHash = "different" }, ReasonToolchainChanged},
		{"profile changed", func(_ *Record, in *Inputs) { in.Profile = "release" }, ReasonProfileChanged},
		{"artifact missing", func(r *Record, _ *Inputs) {
			r.Witnesses = []Witness{{Path: "/nonexistent/artifact", Size: 1}}
		}, ReasonArtifactMissing},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			rec := testRecord("demo")
			in := inputsFor(rec)
			test.Mutate(rec, &in)

			ok, reason := Validate(rec, in)
			assert.False(t, ok)
			assert.Equal(t, test.Expected, reason)
		})
	}
}

func TestValidateWitnessSizes(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "libdemo.rlib")
	require.NoError(t, os.WriteFile(artifact, []byte("0123456789"), 0644))

	rec := testRecord("demo")
	rec.Witnesses = []Witness{{Path: artifact, Size: 10}}

	ok, _ := Validate(rec, inputsFor(rec))
	assert.True(t, ok, "matching witness size must validate")

	// same file, different size
	require.NoError(t, os.WriteFile(artifact, []byte("01234"), 0644))
	ok, reason := Validate(rec, inputsFor(rec))
	assert.False(t, ok)
	assert.Equal(t, ReasonArtifactMissing, reason)
}

func TestClassifyDiagnosesKeyMisses(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	key := testKey("demo")
	rec := testRecord("demo")
	require.NoError(t, store.Store(key, rec))

	// a changed environment moves the key; the prior record still names the
	// cause
	in := inputsFor(rec)
	in.EnvHash = "different"
	movedKey := key
	movedKey.EnvShort = "eeeeeeeeeeeeeeee"

	status, reason := store.Classify(movedKey, in)
	assert.Equal(t, StatusDirty, status)
	assert.Equal(t, ReasonEnvChanged, reason)

	// without any prior record the verdict stays a bare miss
	status, reason = store.Classify(testKey("ghost"), Inputs{})
	assert.Equal(t, StatusDirty, status)
	assert.Equal(t, ReasonNoRecord, reason)
}

func TestProfileIsolation(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	debugKey := testKey("demo")
	require.NoError(t, store.Store(debugKey, testRecord("demo")))

	releaseKey := debugKey
	releaseKey.Profile = "release"
	rec, reason := store.Lookup(releaseKey)
	assert.Nil(t, rec, "a debug record must be invisible under the release key")
	assert.Equal(t, ReasonNoRecord, reason)
}

func TestInvalidate(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Store(testKey("demo"), testRecord("demo")))
	require.NoError(t, store.Store(testKey("demo-helper"), testRecord("demo-helper")))
	require.NoError(t, store.Store(testKey("other"), testRecord("other")))

	// "demo-" also prefixes demo-helper's key: both fall
	n, err := store.Invalidate("demo")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec, _ := store.Lookup(testKey("other"))
	assert.NotNil(t, rec, "unrelated records must survive")

	n, err = store.InvalidateAll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPrunePolicies(t *testing.T) {
	now := time.Now()

	setup := func(t *testing.T) *Store {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		for i, name := range []string{"old", "mid", "new"} {
			require.NoError(t, store.Store(testKey(name), testRecord(name)))
			age := time.Duration(20-i*9) * 24 * time.Hour // 20d, 11d, 2d
			path := filepath.Join(store.IncrementalDir, testKey(name).String()+".json")
			require.NoError(t, os.Chtimes(path, now.Add(-age), now.Add(-age)))

			logPath := store.LogPath(name)
			require.NoError(t, os.WriteFile(logPath, []byte("line\n"), 0644))
			require.NoError(t, os.Chtimes(logPath, now.Add(-age), now.Add(-age)))
			require.NoError(t, store.WriteInvocation(&Invocation{ID: name}))
		}
		return store
	}

	t.Run("older-than", func(t *testing.T) {
		store := setup(t)
		res, err := store.Prune(PrunePolicy{OlderThanDays: 15}, now)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Records)
		assert.Equal(t, 1, res.Logs)
	})

	t.Run("keep-last", func(t *testing.T) {
		store := setup(t)
		res, err := store.Prune(PrunePolicy{KeepLast: 1}, now)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Records)
		assert.Equal(t, 2, res.Logs)
	})

	t.Run("combined", func(t *testing.T) {
		store := setup(t)
		res, err := store.Prune(PrunePolicy{OlderThanDays: 15, KeepLast: 2}, now)
		require.NoError(t, err)
		// only old exceeds a bound: mid is neither too old nor beyond keep-last
		assert.Equal(t, 1, res.Records)
		assert.Equal(t, 1, res.Logs)
	})

	t.Run("combined with tight keep", func(t *testing.T) {
		store := setup(t)
		res, err := store.Prune(PrunePolicy{OlderThanDays: 15, KeepLast: 1}, now)
		require.NoError(t, err)
		// old is too old, mid is beyond keep-last
		assert.Equal(t, 2, res.Records)
		assert.Equal(t, 2, res.Logs)
	})

	t.Run("metadata travels with logs", func(t *testing.T) {
		store := setup(t)
		_, err := store.Prune(PrunePolicy{KeepLast: 1}, now)
		require.NoError(t, err)

		_, err = store.ReadInvocation("old")
		assert.Error(t, err, "pruned log's metadata must be removed")
		_, err = store.ReadInvocation("new")
		assert.NoError(t, err)
	})
}

func TestSchemaVersionIsolation(t *testing.T) {
	base := t.TempDir()

	// a previous-schema record must never be read
	oldDir := filepath.Join(base, "v3", "incremental")
	require.NoError(t, os.MkdirAll(oldDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, testKey("demo").String()+".json"), []byte("{}"), 0644))

	store, err := NewStore(base)
	require.NoError(t, err)

	rec, reason := store.Lookup(testKey("demo"))
	assert.Nil(t, rec)
	assert.Equal(t, ReasonNoRecord, reason)
}

func TestNewInvocationID(t *testing.T) {
	ts := time.Date(2024, 3, 17, 14, 5, 9, 0, time.Local)
	id := NewInvocationID(ts, "0123456789abcdef")
	assert.Equal(t, "20240317_140509-01234567", id)
}
