package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/scidist/scidist/internal/build"
	"github.com/scidist/scidist/internal/env"
)

const envHelp = `scidist env

Print the resolved build configuration: the SCIDIST_* variables after
defaulting, and the composed toolchain environment every build stage runs
with.

Example:
  % scidist env
`

func printenv(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("env", flag.ExitOnError)
	fset.Usage = usage(fset, envHelp)
	fset.Parse(args)

	root := env.FindRoot()
	cfg, err := env.Load(root)
	if err != nil {
		return err
	}
	fmt.Printf("SCIDIST_ROOT=%q\n", string(root))
	fmt.Printf("SCIDIST_PREFIX=%q\n", cfg.Prefix)
	fmt.Printf("SCIDIST_DEBUG=%v\n", cfg.Debug)
	fmt.Printf("SCIDIST_JOBS=%d\n", cfg.Jobs)
	fmt.Printf("SCIDIST_FLINT_PREFIX=%q\n", cfg.FlintPrefix)
	for _, kv := range build.Compose(build.Options{
		Debug:    cfg.Debug,
		CFlags:   cfg.CFlags,
		CXXFlags: cfg.CXXFlags,
		LDFlags:  cfg.LDFlags,
	}) {
		fmt.Println(kv)
	}
	return nil
}
