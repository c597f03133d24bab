// Package env captures details about the scidist environment: the location
// of the distribution checkout and the process-wide build configuration.
// Inspect the environment using `scidist env`.
package env

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/xerrors"
)

// Root is the root directory of a scidist distribution checkout.
type Root string

// FindRoot locates the distribution checkout: $SCIDIST_ROOT if set,
// $HOME/scidist otherwise.
func FindRoot() Root {
	if env := os.Getenv("SCIDIST_ROOT"); env != "" {
		return Root(env)
	}
	return Root(os.ExpandEnv("$HOME/scidist")) // default
}

// PackagesDir returns the directory holding one recipe directory per package.
func (r Root) PackagesDir() string { return filepath.Join(string(r), "packages") }

// PkgDir returns the recipe directory of pkg.
func (r Root) PkgDir(pkg string) string { return filepath.Join(r.PackagesDir(), pkg) }

// RecipePath returns the path of pkg's build.toml recipe.
func (r Root) RecipePath(pkg string) string { return filepath.Join(r.PkgDir(pkg), "build.toml") }

// BuildDir returns the per-package work area: downloaded archives, the
// extracted source tree, the out-of-tree build directory and build logs.
func (r Root) BuildDir(pkg string) string { return filepath.Join(string(r), "build", pkg) }

// DefaultPrefix returns the installation prefix used when $SCIDIST_PREFIX is
// not set.
func (r Root) DefaultPrefix() string { return filepath.Join(string(r), "local") }

// Config holds the process-wide build configuration. It is derived from the
// environment exactly once, at startup; the build stages receive the values
// they need as explicit arguments and never consult the environment
// themselves.
type Config struct {
	// Debug disables optimization in favor of debuggable binaries
	// ($SCIDIST_DEBUG).
	Debug bool

	// Prefix is the installation prefix ($SCIDIST_PREFIX, default
	// <root>/local).
	Prefix string

	// Jobs bounds the parallelism requested from make ($SCIDIST_JOBS,
	// default: number of CPUs).
	Jobs int

	// FlintPrefix overrides where configure looks for the FLINT library
	// ($SCIDIST_FLINT_PREFIX, default: let configure search).
	FlintPrefix string `split_words:"true"`

	// User-supplied compiler/linker flags, passed through to the build. The
	// unprefixed variable names are honored, too.
	CFlags   string `envconfig:"CFLAGS"`
	CXXFlags string `envconfig:"CXXFLAGS"`
	LDFlags  string `envconfig:"LDFLAGS"`
}

// Load processes the SCIDIST_* environment variables into a Config and fills
// in the root-derived defaults.
func Load(root Root) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("scidist", &cfg); err != nil {
		return nil, xerrors.Errorf("envconfig: %w", err)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = root.DefaultPrefix()
	}
	if cfg.Jobs == 0 {
		cfg.Jobs = runtime.NumCPU()
	}
	return &cfg, nil
}
