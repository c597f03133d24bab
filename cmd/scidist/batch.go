package main

import (
	"context"
	"flag"
	"log"
	"os"
	"runtime"

	"github.com/scidist/scidist/internal/batch"
	"github.com/scidist/scidist/internal/env"
	"github.com/scidist/scidist/internal/recipe"
)

const batchHelp = `scidist batch [-flags]

Build all packages below packages/ in dependency order, parallelizing builds
of independent packages. Packages whose installed version matches their
recipe are skipped.

Example:
  % scidist batch -dry_run
`

func cmdbatch(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("batch", flag.ExitOnError)
	var (
		dryRun  = fset.Bool("dry_run", false, "only print what would be built")
		rebuild = fset.Bool("rebuild", false, "build all packages, even those whose installed version is current")
		jobs    = fset.Int("jobs", runtime.NumCPU(), "number of packages to build in parallel")
	)
	fset.Usage = usage(fset, batchHelp)
	fset.Parse(args)

	root := env.FindRoot()
	cfg, err := env.Load(root)
	if err != nil {
		return err
	}
	c := &batch.Ctx{
		Log:     log.New(os.Stderr, "", log.LstdFlags),
		Root:    root,
		Prefix:  cfg.Prefix,
		Rebuild: *rebuild,
		BuildFunc: func(ctx context.Context, r *recipe.Recipe) error {
			return build1(ctx, r, root, cfg, false)
		},
	}
	return c.Build(ctx, *dryRun, *jobs)
}
