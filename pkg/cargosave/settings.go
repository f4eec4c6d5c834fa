package cargosave

import (
	"os"
	"path/filepath"

	"github.com/imdario/mergo"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// EnvvarCacheDir overrides the default per-user cache directory
	EnvvarCacheDir = "CARGO_SAVE_CACHE_DIR"

	// EnvvarDisableIncremental, when set and non-empty, skips all cache
	// lookup: cargo always runs, but logs are still recorded
	EnvvarDisableIncremental = "CARGO_SAVE_DISABLE_INCREMENTAL"

	// EnvvarDebug enables verbose internal logging
	EnvvarDebug = "CARGO_SAVE_DEBUG"

	// settingsFileName is the optional per-workspace settings file
	settingsFileName = "cargo-save.yaml"
)

// Settings configures the wrapper per workspace. All fields are optional;
// the file merely overrides defaults.
type Settings struct {
	// Prune is the default policy applied by the clean command
	Prune struct {
		Days int `yaml:"days"`
		Keep int `yaml:"keep"`
	} `yaml:"prune"`

	// ExtraEnv names additional environment variables to fingerprint on top
	// of the builtin list
	ExtraEnv []string `yaml:"extraEnv"`
}

func defaultSettings() Settings {
	var s Settings
	s.Prune.Days = 7
	return s
}

// LoadSettings reads cargo-save.yaml from the workspace root if present and
// merges it over the defaults. A missing file yields the defaults; a
// malformed file is an error so misconfiguration does not silently change
// cache behavior.
func LoadSettings(workspaceRoot string) (Settings, error) {
	res := defaultSettings()

	content, err := os.ReadFile(filepath.Join(workspaceRoot, settingsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, err
	}

	var file Settings
	if err := yaml.Unmarshal(content, &file); err != nil {
		return res, err
	}
	if err := mergo.Merge(&file, res); err != nil {
		return res, err
	}

	log.WithField("file", settingsFileName).Debug("loaded workspace settings")
	return file, nil
}

// CacheDir resolves the cache directory: CARGO_SAVE_CACHE_DIR if set, else
// the per-user cache directory.
func CacheDir() (string, error) {
	if dir := os.Getenv(EnvvarCacheDir); dir != "" {
		return dir, nil
	}

	base, err := os.UserCacheDir()
	if err != nil {
		return "", newError(ErrCacheRootUnwritable, "resolve user cache dir", err)
	}
	return filepath.Join(base, "cargo-save"), nil
}

// IncrementalDisabled reports whether cache lookup is globally disabled.
func IncrementalDisabled() bool {
	return os.Getenv(EnvvarDisableIncremental) != ""
}
