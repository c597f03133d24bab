package main

import (
	"context"
	"flag"
	"os"
	"runtime"

	"golang.org/x/xerrors"

	"github.com/scidist/scidist/internal/build"
	"github.com/scidist/scidist/internal/env"
	"github.com/scidist/scidist/internal/manifest"
	"github.com/scidist/scidist/internal/recipe"
)

const cleanHelp = `scidist clean [-flags] <package>…

Remove a package’s installed artifacts from the prefix: everything its naming
convention covers, plus every file its manifest recorded, plus the manifest
itself. Files which are already absent are skipped silently.

Example:
  % scidist clean eclib
`

func clean(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("clean", flag.ExitOnError)
	fset.Usage = usage(fset, cleanHelp)
	fset.Parse(args)
	if fset.NArg() == 0 {
		return xerrors.Errorf("syntax: clean <package>…")
	}

	root := env.FindRoot()
	cfg, err := env.Load(root)
	if err != nil {
		return err
	}
	for _, pkg := range fset.Args() {
		r, err := recipe.Load(root.RecipePath(pkg))
		if err != nil {
			return xerrors.Errorf("loading recipe: %v", err)
		}
		ts := r.Targets(cfg.Prefix, runtime.GOOS)
		// The manifest may record files the current naming convention no
		// longer covers; remove those too, then the manifest itself.
		if m, err := manifest.Read(cfg.Prefix, pkg); err == nil {
			ts = appendManifestTargets(ts, m.Files)
		} else if err != manifest.ErrNotFound {
			return err
		}
		ts.Globs = append(ts.Globs, manifest.Path(cfg.Prefix, pkg))
		build.RemoveTargets(ts)
	}
	return nil
}

// appendManifestTargets adds manifest entries to the target set. Manifests
// record include directories alongside plain files; directories must go
// through Dirs so that they are removed recursively instead of tripping the
// file removal pass.
func appendManifestTargets(ts recipe.TargetSet, files []string) recipe.TargetSet {
	for _, fn := range files {
		if fi, err := os.Stat(fn); err == nil && fi.IsDir() {
			ts.Dirs = append(ts.Dirs, fn)
			continue
		}
		ts.Globs = append(ts.Globs, fn)
	}
	return ts
}
