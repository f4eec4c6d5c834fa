package cargosave

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHashFeatures(t *testing.T) {
	hash := func(args ...string) Digest {
		d, err := HashFeatures(args)
		if err != nil {
			t.Fatal(err)
		}
		return d
	}

	flagForm := hash("--features", "serde")
	inlineForm := hash("--features=serde")
	if flagForm != inlineForm {
		t.Errorf("flag and inline feature forms should hash equally: %s != %s", flagForm, inlineForm)
	}

	if hash("--features", "serde") == hash("--features", "tokio") {
		t.Error("different feature sets must produce different hashes")
	}

	if hash("--features", "serde") == hash("--features", "serde", "--no-default-features") {
		t.Error("--no-default-features must change the hash")
	}

	if hash("--release", "-p", "foo") != hash() {
		t.Error("unrelated arguments must not affect the features hash")
	}
}

func TestHashEnvironment(t *testing.T) {
	t.Setenv("RUSTFLAGS", "-C target-cpu=native")

	before, err := HashEnvironment(nil)
	if err != nil {
		t.Fatal(err)
	}

	// an unrecognized variable must not move the hash
	t.Setenv("COMPLETELY_UNRELATED_VAR", "42")
	unrelated, err := HashEnvironment(nil)
	if err != nil {
		t.Fatal(err)
	}
	if before != unrelated {
		t.Error("unrecognized variables must not affect the environment hash")
	}

	t.Setenv("RUSTFLAGS", "-C opt-level=3")
	after, err := HashEnvironment(nil)
	if err != nil {
		t.Fatal(err)
	}
	if before == after {
		t.Error("changing RUSTFLAGS must change the environment hash")
	}

	// extra variables from the settings file participate
	t.Setenv("MY_BUILD_FLAG", "on")
	withoutExtra, _ := HashEnvironment(nil)
	withExtra, _ := HashEnvironment([]string{"MY_BUILD_FLAG"})
	if withoutExtra == withExtra {
		t.Error("extra fingerprinted variables must affect the hash")
	}
}

func TestHashLockfile(t *testing.T) {
	dir := t.TempDir()

	missing1, err := HashLockfile(dir)
	if err != nil {
		t.Fatal(err)
	}
	missing2, _ := HashLockfile(dir)
	if missing1 != missing2 {
		t.Error("missing lockfile must hash stably")
	}

	if err := os.WriteFile(filepath.Join(dir, "Cargo.lock"), []byte("[[package]]\nname = \"a\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	present, _ := HashLockfile(dir)
	if present == missing1 {
		t.Error("a present lockfile must hash differently from a missing one")
	}
}

func TestProfileTag(t *testing.T) {
	tests := []struct {
		Name        string
		Args        []string
		Expectation string
	}{
		{Name: "empty", Expectation: "debug"},
		{Name: "release", Args: []string{"--release"}, Expectation: "release"},
		{Name: "release among others", Args: []string{"-p", "foo", "--release"}, Expectation: "release"},
		{Name: "not a release flag", Args: []string{"--release-notes"}, Expectation: "debug"},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			if diff := cmp.Diff(test.Expectation, ProfileTag(test.Args)); diff != "" {
				t.Errorf("ProfileTag() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHashCommand(t *testing.T) {
	build1, err := HashCommand("build", []string{"--release"})
	if err != nil {
		t.Fatal(err)
	}
	build2, _ := HashCommand("build", []string{"--release"})
	if build1 != build2 {
		t.Error("identical commands must hash equally")
	}

	test1, _ := HashCommand("test", []string{"--release"})
	if build1 == test1 {
		t.Error("different subcommands must hash differently")
	}

	if len(build1) != 64 {
		t.Errorf("expected a 256-bit hex digest, got %d characters", len(build1))
	}
	if len(build1.Short()) != 16 {
		t.Errorf("expected a 16-character short form, got %d", len(build1.Short()))
	}
}

func TestCacheKeyForCI(t *testing.T) {
	dir := t.TempDir()

	key, err := CacheKeyForCI("github", dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(key) == 0 || key[:7] != "github-" {
		t.Errorf("expected a github-flavored key, got %q", key)
	}

	again, _ := CacheKeyForCI("github", dir, nil)
	if key != again {
		t.Error("CI cache key must be stable for an unchanged workspace")
	}
}
