package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/xerrors"

	"github.com/scidist/scidist/internal/build"
	"github.com/scidist/scidist/internal/env"
	"github.com/scidist/scidist/internal/manifest"
	"github.com/scidist/scidist/internal/recipe"
)

const buildHelp = `scidist build [-flags]

Build one package: remove stale artifacts of previous versions, extract and
patch the sources, then configure, make and make install into the prefix.

Example:
  % scidist build -pkg=eclib
`

func cmdbuild(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("build", flag.ExitOnError)
	var (
		pkg        = fset.String("pkg", "", "package to build (default: basename of the current directory)")
		jobs       = fset.Int("jobs", 0, "number of make jobs (default: $SCIDIST_JOBS, or all cores)")
		rebuild    = fset.Bool("rebuild", false, "build even when the installed version is current")
		debugShell = fset.Bool("debugshell", false, "drop into an interactive shell in the build directory when a stage fails")
	)
	fset.Usage = usage(fset, buildHelp)
	fset.Parse(args)

	root := env.FindRoot()
	cfg, err := env.Load(root)
	if err != nil {
		return err
	}
	if *jobs > 0 {
		cfg.Jobs = *jobs
	}

	if *pkg == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		*pkg = pkgFromWd(wd)
	}
	r, err := recipe.Load(root.RecipePath(*pkg))
	if err != nil {
		return xerrors.Errorf("loading recipe: %v", err)
	}

	if !*rebuild {
		if m, err := manifest.Read(cfg.Prefix, r.Name); err == nil && m.Version == r.Version {
			log.Printf("%s-%s already installed under %s (use -rebuild to build anyway)", r.Name, r.Version, cfg.Prefix)
			return nil
		}
	}
	return build1(ctx, r, root, cfg, *debugShell)
}

// pkgFromWd guesses the package name from the working directory, so that
// `scidist build` inside packages/eclib builds eclib.
func pkgFromWd(wd string) string {
	return filepath.Base(wd)
}

// build1 builds a single package. It is shared between the build and batch
// verbs.
func build1(ctx context.Context, r *recipe.Recipe, root env.Root, cfg *env.Config, debugShell bool) error {
	workDir := root.BuildDir(r.Name)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return err
	}
	b := build.NewCtx(r, workDir, cfg.Prefix, build.Options{
		Debug:       cfg.Debug,
		Jobs:        cfg.Jobs,
		GOOS:        runtime.GOOS,
		FlintPrefix: cfg.FlintPrefix,
		CFlags:      cfg.CFlags,
		CXXFlags:    cfg.CXXFlags,
		LDFlags:     cfg.LDFlags,
		BaseEnv:     os.Environ(),
	})
	b.DebugShell = debugShell

	if err := b.Extract(ctx); err != nil {
		return xerrors.Errorf("extract: %v", err)
	}
	buildLog, err := os.Create(b.LogPath())
	if err != nil {
		return err
	}
	defer buildLog.Close()
	m, err := b.Build(ctx, buildLog)
	if err != nil {
		return err
	}
	log.Printf("installed %s-%s (%d files), full log in %s", m.Name, m.Version, len(m.Files), b.LogPath())
	return nil
}
