// Package cargosave implements package-level incremental caching for Cargo
// workspaces. It fingerprints every workspace member (source tree, lockfile,
// environment, features, toolchain, command), consults an on-disk cache of
// prior successful builds, and either short-circuits the build entirely or
// delegates to cargo while capturing the full build log for later queries.
package cargosave
