// Package manifest records which files an installed package put under the
// installation prefix. Manifests let `scidist clean` remove files the
// current naming convention no longer covers, and let the build and batch
// verbs skip packages whose installed version is current.
package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/xerrors"
)

// ErrNotFound is returned by Read when no manifest exists for the package.
// Absence is normal for packages that were never installed.
var ErrNotFound = errors.New("manifest not found")

// Manifest describes one installed package version.
type Manifest struct {
	Name    string    `toml:"name"`
	Version string    `toml:"version"`
	Prefix  string    `toml:"prefix"`
	BuiltAt time.Time `toml:"built_at"`
	Files   []string  `toml:"files"`
}

// Dir returns the manifest directory under prefix.
func Dir(prefix string) string {
	return filepath.Join(prefix, "var", "scidist", "manifests")
}

// Path returns where pkg's manifest is stored under prefix.
func Path(prefix, pkg string) string {
	return filepath.Join(Dir(prefix), pkg+".toml")
}

// Read loads pkg's manifest from prefix, or ErrNotFound.
func Read(prefix, pkg string) (*Manifest, error) {
	fn := Path(prefix, pkg)
	c, err := os.ReadFile(fn)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var m Manifest
	if err := toml.Unmarshal(c, &m); err != nil {
		return nil, xerrors.Errorf("%s: %v", fn, err)
	}
	return &m, nil
}

// Write atomically replaces m's manifest under prefix, so that concurrent
// readers never observe a partially written file.
func (m *Manifest) Write(prefix string) error {
	c, err := toml.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(Dir(prefix), 0755); err != nil {
		return err
	}
	return renameio.WriteFile(Path(prefix, m.Name), c, 0644)
}
