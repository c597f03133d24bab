package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"

	"github.com/scidist/scidist"
	"github.com/scidist/scidist/internal/env"
	"github.com/scidist/scidist/internal/manifest"
	"github.com/scidist/scidist/internal/recipe"
)

const outdatedHelp = `scidist outdated

List packages whose recipe declares a newer version than what is installed
under the prefix, and packages which are not installed at all.

Example:
  % scidist outdated
`

func outdated(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("outdated", flag.ExitOnError)
	fset.Usage = usage(fset, outdatedHelp)
	fset.Parse(args)

	root := env.FindRoot()
	cfg, err := env.Load(root)
	if err != nil {
		return err
	}
	fis, err := ioutil.ReadDir(root.PackagesDir())
	if err != nil {
		return err
	}
	for _, fi := range fis {
		if !fi.IsDir() {
			continue
		}
		pkg := fi.Name()
		r, err := recipe.Load(root.RecipePath(pkg))
		if err != nil {
			return err
		}
		m, err := manifest.Read(cfg.Prefix, pkg)
		if err == manifest.ErrNotFound {
			fmt.Printf("%s: not installed (recipe has %s)\n", pkg, r.Version)
			continue
		}
		if err != nil {
			return err
		}
		if scidist.CompareVersions(m.Version, r.Version) < 0 {
			fmt.Printf("%s: installed %s, recipe has %s\n", pkg, m.Version, r.Version)
		}
	}
	return nil
}
