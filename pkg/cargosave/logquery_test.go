package cargosave

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hautlys/cargo-save/pkg/cargosave/cache"
)

func storeWithLog(t *testing.T, id string, lines []string) *cache.Store {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)

	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	require.NoError(t, os.WriteFile(store.LogPath(id), []byte(content), 0644))
	exitCode := 0
	require.NoError(t, store.WriteInvocation(&cache.Invocation{ID: id, ExitCode: &exitCode, LineCount: len(lines)}))
	return store
}

var sampleLog = []string{
	"   Compiling demo v0.1.0",
	"warning: unused variable: `x`",
	"error[E0308]: mismatched types",
	" --> src/lib.rs:4:5",
	"error: aborting due to 1 previous error",
	"    Finished `dev` profile",
}

func runQuery(t *testing.T, store *cache.Store, sel LogSelector, mode, param string, regex bool) []string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, QueryLogs(store, sel, mode, param, regex, &buf))
	out := strings.TrimSuffix(buf.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func TestQueryModes(t *testing.T) {
	store := storeWithLog(t, "20240101_120000-abcd1234", sampleLog)

	tests := []struct {
		Name        string
		Mode        string
		Param       string
		Regex       bool
		Expectation []string
	}{
		{Name: "head", Mode: "head", Param: "2", Expectation: sampleLog[:2]},
		{Name: "tail", Mode: "tail", Param: "2", Expectation: sampleLog[4:]},
		{Name: "tail larger than file", Mode: "tail", Param: "100", Expectation: sampleLog},
		{Name: "range", Mode: "range", Param: "2-3", Expectation: sampleLog[1:3]},
		{Name: "grep substring", Mode: "grep", Param: "mismatched", Expectation: []string{sampleLog[2]}},
		{Name: "grep lowercase is case-insensitive", Mode: "grep", Param: "compiling", Expectation: []string{sampleLog[0]}},
		{Name: "grep regex", Mode: "grep", Param: `error\[E\d+\]`, Regex: true, Expectation: []string{sampleLog[2]}},
		{Name: "errors", Mode: "errors", Expectation: []string{sampleLog[2], sampleLog[4]}},
		{Name: "warnings", Mode: "warnings", Expectation: []string{sampleLog[1]}},
		{Name: "all", Mode: "all", Expectation: sampleLog},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			act := runQuery(t, store, LogSelector{}, test.Mode, test.Param, test.Regex)
			if diff := cmp.Diff(test.Expectation, act); diff != "" {
				t.Errorf("QueryLogs(%s) mismatch (-want +got):\n%s", test.Mode, diff)
			}
		})
	}
}

func TestQuerySelectors(t *testing.T) {
	store := storeWithLog(t, "20240101_120000-aaaa1111", []string{"first build"})
	require.NoError(t, os.WriteFile(store.LogPath("20240102_120000-bbbb2222"), []byte("second build\n"), 0644))
	exitCode := 0
	require.NoError(t, store.WriteInvocation(&cache.Invocation{ID: "20240102_120000-bbbb2222", ExitCode: &exitCode}))

	// pin the ordering; filesystem mtime granularity is not guaranteed
	older := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(store.MetadataPath("20240101_120000-aaaa1111"), older, older))

	byID := runQuery(t, store, LogSelector{ID: "20240101_120000-aaaa1111"}, "all", "", false)
	if diff := cmp.Diff([]string{"first build"}, byID); diff != "" {
		t.Errorf("explicit id selector mismatch (-want +got):\n%s", diff)
	}

	// last=2 is the second most recent, i.e. the first build
	byLast := runQuery(t, store, LogSelector{Last: 2}, "all", "", false)
	if diff := cmp.Diff([]string{"first build"}, byLast); diff != "" {
		t.Errorf("last-N selector mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	err := QueryLogs(store, LogSelector{ID: "not-there"}, "all", "", false, &buf)
	require.Error(t, err)
}

func TestQueryInvalidInput(t *testing.T) {
	store := storeWithLog(t, "20240101_120000-abcd1234", sampleLog)

	var buf bytes.Buffer
	require.Error(t, QueryLogs(store, LogSelector{}, "frobnicate", "", false, &buf))
	require.Error(t, QueryLogs(store, LogSelector{}, "range", "10-2", false, &buf))
	require.Error(t, QueryLogs(store, LogSelector{}, "range", "nope", false, &buf))
	require.Error(t, QueryLogs(store, LogSelector{}, "grep", "([", true, &buf))
}

func TestQueryEmptyLog(t *testing.T) {
	store := storeWithLog(t, "20240101_120000-abcd1234", nil)

	for _, mode := range []string{"head", "tail", "all", "errors"} {
		act := runQuery(t, store, LogSelector{}, mode, "", false)
		if len(act) != 0 {
			t.Errorf("query %s over an empty log should print nothing, got %v", mode, act)
		}
	}
}
