package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"golang.org/x/xerrors"

	"github.com/scidist/scidist"
	"github.com/scidist/scidist/internal/env"
)

const logHelp = `scidist log [-flags] <package>

Show a package build log (local).

Example:
  % scidist log eclib
`

func showlog(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("log", flag.ExitOnError)
	var (
		version = fset.String("version", "", "package version (default: most recent)")
	)
	fset.Usage = usage(fset, logHelp)
	fset.Parse(args)
	if fset.NArg() != 1 {
		return xerrors.Errorf("syntax: log <package>")
	}
	pkg := fset.Arg(0)

	root := env.FindRoot()
	var match string
	if *version != "" {
		match = filepath.Join(root.BuildDir(pkg), "build-"+*version+".log")
	} else {
		matches, err := filepath.Glob(filepath.Join(root.BuildDir(pkg), "build-*.log"))
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			return xerrors.Errorf("no build logs for %s", pkg)
		}
		sort.Slice(matches, func(i, j int) bool {
			return scidist.VersionLess(matches[j], matches[i]) // reverse
		})
		match = matches[0]
	}

	shargs := []string{
		"/bin/sh",
		"-c",
		fmt.Sprintf("${PAGER:-less} %q", match),
	}
	return syscall.Exec("/bin/sh", shargs, os.Environ())
}
