// Package recipe reads the declarative build.toml recipes which describe how
// one third-party package is patched, configured, built and installed.
package recipe

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/xerrors"
)

// Patch is one textual substitution applied to the extracted source tree
// before the configure stage runs.
type Patch struct {
	File    string `toml:"file"`
	Search  string `toml:"search"`
	Replace string `toml:"replace"`

	// MissingOK makes a zero-occurrence substitution acceptable. By default,
	// search text which does not appear in the file fails the build: a patch
	// that silently stops matching reintroduces the defect it exists to work
	// around.
	MissingOK bool `toml:"missing_ok,omitempty"`
}

// Configure declares the feature flags passed to the package's ./configure
// script.
type Configure struct {
	Enable  []string          `toml:"enable,omitempty"`
	Disable []string          `toml:"disable,omitempty"`
	With    map[string]string `toml:"with,omitempty"`
}

// Clean names the artifacts which a previous installation of this package
// may have left under the prefix.
type Clean struct {
	LibStems    []string `toml:"lib_stems,omitempty"`
	IncludeDirs []string `toml:"include_dirs,omitempty"`
	PkgConfig   []string `toml:"pkgconfig,omitempty"`
}

// Recipe describes how to build one package. Recipes live in the
// distribution checkout at packages/<name>/build.toml.
type Recipe struct {
	Name    string   `toml:"name"`
	Version string   `toml:"version"`
	Source  string   `toml:"source"`
	Hash    string   `toml:"hash"`
	Deps    []string `toml:"deps,omitempty"`

	Configure Configure `toml:"configure"`
	Patches   []Patch   `toml:"patch,omitempty"`

	// SerialInstall forces make install to run with a single job. Some
	// packages race on shared install targets (cbc rewrites the same libtool
	// archives from multiple subdirectories).
	SerialInstall bool `toml:"serial_install,omitempty"`

	// InTree runs configure inside the source tree instead of a separate
	// build directory.
	InTree bool `toml:"in_tree,omitempty"`

	Clean Clean `toml:"clean"`
}

// Load reads and validates the recipe at path.
func Load(path string) (*Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r Recipe
	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return nil, xerrors.Errorf("%s: %v", path, err)
	}
	if err := r.validate(); err != nil {
		return nil, xerrors.Errorf("%s: %v", path, err)
	}
	return &r, nil
}

func (r *Recipe) validate() error {
	if r.Name == "" {
		return xerrors.New("name must not be empty")
	}
	if r.Version == "" {
		return xerrors.New("version must not be empty")
	}
	if r.Source == "" {
		return xerrors.New("source must not be empty")
	}
	for idx, p := range r.Patches {
		if p.File == "" || p.Search == "" {
			return xerrors.Errorf("patch %d: file and search must not be empty", idx)
		}
	}
	return nil
}

// ConfigureArgs renders the declared feature flags into configure
// arguments. The rendering is deterministic: enable/disable flags keep their
// declared order, with options are sorted by key. Values may reference vars
// entries as ${name}; a with option whose substituted value is "no" renders
// as --without-<option>, an empty value renders as a bare --with-<option>
// (use the configure script's default location).
func (r *Recipe) ConfigureArgs(vars map[string]string) []string {
	subst := func(s string) string {
		for k, v := range vars {
			s = strings.ReplaceAll(s, "${"+k+"}", v)
		}
		return s
	}
	var args []string
	for _, e := range r.Configure.Enable {
		args = append(args, "--enable-"+e)
	}
	for _, d := range r.Configure.Disable {
		args = append(args, "--disable-"+d)
	}
	keys := make([]string, 0, len(r.Configure.With))
	for k := range r.Configure.With {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := subst(r.Configure.With[k]); v {
		case "no":
			args = append(args, "--without-"+k)
		case "":
			args = append(args, "--with-"+k)
		default:
			args = append(args, "--with-"+k+"="+v)
		}
	}
	return args
}

// TargetSet is the set of paths under the installation prefix which belong
// to this package according to its naming convention. Stale copies are
// removed before a rebuild so that artifacts of an older, differently laid
// out version cannot shadow the new ones.
type TargetSet struct {
	Globs []string // shell-style patterns for files
	Dirs  []string // directories, removed recursively
}

// sharedLibExts returns the file name extensions shared libraries use on the
// given platform, including patterns for versioned names such as libec.so.8.
func sharedLibExts(goos string) []string {
	if goos == "darwin" {
		return []string{".dylib", ".*.dylib"}
	}
	return []string{".so", ".so.*"}
}

// Targets computes the package's install target set for the given prefix and
// platform.
func (r *Recipe) Targets(prefix, goos string) TargetSet {
	var ts TargetSet
	exts := append([]string{".a", ".la"}, sharedLibExts(goos)...)
	for _, stem := range r.Clean.LibStems {
		for _, ext := range exts {
			ts.Globs = append(ts.Globs, filepath.Join(prefix, "lib", stem+ext))
		}
	}
	for _, dir := range r.Clean.IncludeDirs {
		ts.Dirs = append(ts.Dirs, filepath.Join(prefix, "include", dir))
	}
	for _, pc := range r.Clean.PkgConfig {
		ts.Globs = append(ts.Globs, filepath.Join(prefix, "lib", "pkgconfig", pc+".pc"))
	}
	return ts
}
