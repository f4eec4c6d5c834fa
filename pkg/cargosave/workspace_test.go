package cargosave

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const sampleMetadata = `{
  "packages": [
    {
      "id": "path+file:///ws/app#0.1.0",
      "name": "app",
      "version": "0.1.0",
      "manifest_path": "/ws/app/Cargo.toml",
      "dependencies": [
        {"name": "lib"},
        {"name": "serde"}
      ]
    },
    {
      "id": "path+file:///ws/lib#0.1.0",
      "name": "lib",
      "version": "0.1.0",
      "manifest_path": "/ws/lib/Cargo.toml",
      "dependencies": [
        {"name": "serde"}
      ]
    },
    {
      "id": "registry+https://github.com/rust-lang/crates.io-index#serde@1.0.0",
      "name": "serde",
      "version": "1.0.0",
      "manifest_path": "/registry/serde/Cargo.toml",
      "dependencies": []
    }
  ],
  "workspace_members": [
    "path+file:///ws/app#0.1.0",
    "path+file:///ws/lib#0.1.0"
  ],
  "workspace_root": "/ws",
  "target_directory": "/ws/target",
  "version": 1
}`

func TestParseCargoMetadata(t *testing.T) {
	ws, err := parseCargoMetadata([]byte(sampleMetadata))
	require.NoError(t, err)

	if ws.Root != "/ws" {
		t.Errorf("unexpected workspace root %q", ws.Root)
	}
	if ws.TargetDir != "/ws/target" {
		t.Errorf("unexpected target dir %q", ws.TargetDir)
	}

	type pkgView struct {
		Name, Version, Root string
		Deps                []string
	}
	var act []pkgView
	for _, p := range ws.Packages {
		act = append(act, pkgView{Name: p.Name, Version: p.Version, Root: p.Root, Deps: p.Dependencies})
	}

	// serde is not a member and must neither appear as a package nor as a
	// dependency
	want := []pkgView{
		{Name: "app", Version: "0.1.0", Root: "/ws/app", Deps: []string{"lib"}},
		{Name: "lib", Version: "0.1.0", Root: "/ws/lib"},
	}
	if diff := cmp.Diff(want, act); diff != "" {
		t.Errorf("parseCargoMetadata() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCargoMetadataGarbage(t *testing.T) {
	_, err := parseCargoMetadata([]byte("not json"))
	require.Error(t, err)

	var kindErr *Error
	require.ErrorAs(t, err, &kindErr)
	require.Equal(t, ErrMetadataUnavailable, kindErr.Kind)
}

func TestResolveTargetDir(t *testing.T) {
	ws := &Workspace{Root: "/ws", TargetDir: "/ws/target"}

	tests := []struct {
		Name        string
		Args        []string
		Env         string
		Expectation string
	}{
		{Name: "flag wins", Args: []string{"--target-dir", "/custom"}, Env: "/env", Expectation: "/custom"},
		{Name: "inline flag", Args: []string{"--target-dir=/custom"}, Expectation: "/custom"},
		{Name: "env beats metadata", Env: "/env", Expectation: "/env"},
		{Name: "metadata default", Expectation: "/ws/target"},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			if test.Env != "" {
				t.Setenv("CARGO_TARGET_DIR", test.Env)
			} else {
				t.Setenv("CARGO_TARGET_DIR", "")
				// ResolveTargetDir treats an empty CARGO_TARGET_DIR as unset
			}
			if diff := cmp.Diff(test.Expectation, ws.ResolveTargetDir(test.Args)); diff != "" {
				t.Errorf("ResolveTargetDir() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	bare := &Workspace{Root: "/ws"}
	t.Setenv("CARGO_TARGET_DIR", "")
	if got := bare.ResolveTargetDir(nil); got != filepath.Join("/ws", "target") {
		t.Errorf("expected the <root>/target fallback, got %q", got)
	}
}

func TestPackageByName(t *testing.T) {
	ws := &Workspace{Packages: []*Package{{Name: "app"}}}

	pkg, err := ws.PackageByName("app")
	require.NoError(t, err)
	require.Equal(t, "app", pkg.Name)

	_, err = ws.PackageByName("ghost")
	require.Error(t, err)
}
