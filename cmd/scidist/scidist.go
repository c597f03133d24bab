package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime/pprof"

	"github.com/scidist/scidist"
	"github.com/scidist/scidist/internal/trace"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "path to store a CPU profile at")
	tracefile  = flag.String("tracefile", "", "path to store a Chrome trace event file at")
)

func main() {
	flag.Parse()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	if *tracefile != "" {
		f, err := os.Create(*tracefile)
		if err != nil {
			log.Fatal(err)
		}
		trace.Sink(f)
	}

	type cmd struct {
		helpText string
		fn       func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"build":    {buildHelp, cmdbuild},
		"batch":    {batchHelp, cmdbatch},
		"clean":    {cleanHelp, clean},
		"env":      {envHelp, printenv},
		"log":      {logHelp, showlog},
		"outdated": {outdatedHelp, outdated},
		"scaffold": {scaffoldHelp, scaffold},
	}

	args := flag.Args()
	verb := "build"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	if verb == "help" {
		if len(args) != 1 {
			fmt.Fprintf(os.Stderr, "syntax: scidist help <verb>\n")
			fmt.Fprintf(os.Stderr, "\n")
			fmt.Fprintf(os.Stderr, "Verbs:\n")
			fmt.Fprintf(os.Stderr, "\tbuild - build one package\n")
			fmt.Fprintf(os.Stderr, "\tbatch - build all packages in dependency order\n")
			fmt.Fprintf(os.Stderr, "\tclean - remove a package’s installed artifacts\n")
			fmt.Fprintf(os.Stderr, "\tenv - print the resolved build environment\n")
			fmt.Fprintf(os.Stderr, "\tlog - show a package build log\n")
			fmt.Fprintf(os.Stderr, "\toutdated - list packages whose recipe is newer than the installed version\n")
			fmt.Fprintf(os.Stderr, "\tscaffold - create a recipe for an upstream source URL\n")
			os.Exit(2)
		}
		verb = args[0]
		args = []string{"-help"}
	}
	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: scidist <command> [options]\n")
		os.Exit(2)
	}
	ctx, canc := scidist.InterruptibleContext()
	defer canc()
	if err := v.fn(ctx, args); err != nil {
		fmt.Printf("%s: %+v\n", verb, err)
		os.Exit(1)
	}
}
