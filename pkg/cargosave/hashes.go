package cargosave

import (
	"encoding/hex"
	"hash"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/minio/highwayhash"
)

const (
	// contentHashKey is the key we use to hash build inputs. Change this key
	// and every record in every cache version ever written becomes invalid.
	contentHashKey = "5f8c2e91a44d03b7c6e1d9f2385a7b0c41e6d8a29b35f07c812d4e6a9c03f5b1"

	// shortHashLen is the number of hex characters kept when a digest is
	// embedded in a cache key or displayed to the user.
	shortHashLen = 16
)

// Digest is the full hex form of a 256-bit hash.
type Digest string

// Short returns the 16-hex-character prefix used in cache keys and display.
func (d Digest) Short() string {
	if len(d) < shortHashLen {
		return string(d)
	}
	return string(d)[:shortHashLen]
}

func newHasher() (hash.Hash, error) {
	key, err := hex.DecodeString(contentHashKey)
	if err != nil {
		return nil, err
	}
	return highwayhash.New(key)
}

func finalize(h hash.Hash) Digest {
	return Digest(hex.EncodeToString(h.Sum(nil)))
}

// buildEnvVars is the fixed list of environment variables that feed the
// environment hash. The list is tied to the cache schema version: extending
// it requires a schema bump so old records never validate against hashes
// computed over a different variable set.
var buildEnvVars = []string{
	"RUSTFLAGS",
	"RUSTDOCFLAGS",
	"CARGO_TARGET_DIR",
	"CARGO_HOME",
	"CARGO_NET_OFFLINE",
	"CARGO_BUILD_JOBS",
	"CARGO_BUILD_TARGET",
	"CARGO_BUILD_RUSTFLAGS",
	"CARGO_INCREMENTAL",
	"CARGO_PROFILE_DEV_DEBUG",
	"CARGO_PROFILE_RELEASE_DEBUG",
	"CARGO_PROFILE_RELEASE_OPT_LEVEL",
	"CARGO_PROFILE_RELEASE_LTO",
	"CC",
	"CXX",
	"AR",
	"LINKER",
}

// HashLockfile hashes the workspace Cargo.lock. A missing lockfile yields the
// empty-input hash, which is stable across runs.
func HashLockfile(workspaceRoot string) (Digest, error) {
	h, err := newHasher()
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(filepath.Join(workspaceRoot, "Cargo.lock"))
	if err == nil {
		_, _ = h.Write(content)
	}
	return finalize(h), nil
}

// HashEnvironment hashes the recognized build-affecting environment
// variables. Unset variables contribute nothing, so two invocations whose
// recognized sets agree hash identically even if unrelated variables differ.
// extra names settings-file additions and is hashed after the builtin list.
func HashEnvironment(extra []string) (Digest, error) {
	h, err := newHasher()
	if err != nil {
		return "", err
	}

	for _, name := range append(append([]string{}, buildEnvVars...), extra...) {
		if val, ok := os.LookupEnv(name); ok {
			_, _ = h.Write([]byte(name))
			_, _ = h.Write([]byte(val))
		}
	}
	return finalize(h), nil
}

// HashFeatures hashes the feature-selection tokens found in the argument
// vector, in the order encountered. Both "--features foo" and
// "--features=foo" contribute the same bytes. Unrelated arguments are
// ignored.
func HashFeatures(args []string) (Digest, error) {
	h, err := newHasher()
	if err != nil {
		return "", err
	}

	for i, arg := range args {
		switch {
		case arg == "--features":
			if i+1 < len(args) {
				_, _ = h.Write([]byte(args[i+1]))
			}
		case strings.HasPrefix(arg, "--features="):
			_, _ = h.Write([]byte(strings.TrimPrefix(arg, "--features=")))
		case arg == "--all-features":
			_, _ = h.Write([]byte("--all-features"))
		case arg == "--no-default-features":
			_, _ = h.Write([]byte("--no-default-features"))
		}
	}
	return finalize(h), nil
}

// HashToolchain hashes the rustc and cargo version strings. A missing
// compiler contributes nothing rather than failing: the record simply keys on
// whatever toolchain identity is observable.
func HashToolchain() (Digest, error) {
	h, err := newHasher()
	if err != nil {
		return "", err
	}

	for _, tool := range []string{"rustc", "cargo"} {
		out, err := exec.Command(tool, "--version").Output()
		if err == nil {
			_, _ = h.Write(out)
		}
	}
	return finalize(h), nil
}

// HashCommand hashes the subcommand name followed by the full argument
// vector.
func HashCommand(subcommand string, args []string) (Digest, error) {
	h, err := newHasher()
	if err != nil {
		return "", err
	}

	_, _ = h.Write([]byte(subcommand))
	_, _ = h.Write([]byte(strings.Join(args, " ")))
	return finalize(h), nil
}

// ProfileTag returns "release" if --release appears in the argument vector,
// else "debug". The tag is never hashed; it keeps debug and release caches
// visibly separate on disk.
func ProfileTag(args []string) string {
	for _, arg := range args {
		if arg == "--release" {
			return "release"
		}
	}
	return "debug"
}

// CacheKeyForCI derives a short, platform-flavored string from the lockfile
// and environment hashes, suitable for a CI cache action's key parameter.
func CacheKeyForCI(platform, workspaceRoot string, extraEnv []string) (string, error) {
	lock, err := HashLockfile(workspaceRoot)
	if err != nil {
		return "", err
	}
	env, err := HashEnvironment(extraEnv)
	if err != nil {
		return "", err
	}
	return platform + "-cargo-save-" + lock.Short() + "-" + env.Short(), nil
}
