package build

import (
	"log"
	"strings"
)

// Debug symbols stay on either way so that installed libraries remain
// debuggable; the optimization level is what debug mode toggles.
const (
	defaultCompilerFlags = "-O2 -g"
	debugCompilerFlags   = "-O0 -g"
)

// requiredLinkerFlags are merged into LDFLAGS unconditionally: both solver
// packages read compressed problem files through zlib.
const requiredLinkerFlags = "-lz"

// Compose renders opts into the environment for the configure, make and
// make install invocations: opts.BaseEnv with CFLAGS, CXXFLAGS and LDFLAGS
// appended (later entries win when exec hands the environment to the tool).
// In debug mode the defaults override user optimization flags; otherwise the
// defaults come first so that user flags extend rather than replace them.
func Compose(opts Options) []string {
	cflags, cxxflags := opts.CFlags, opts.CXXFlags
	if opts.Debug {
		log.Printf("debug build: optimization disabled entirely (-O0)")
		cflags = joinFlags(debugCompilerFlags, stripOptimization(cflags))
		cxxflags = joinFlags(debugCompilerFlags, stripOptimization(cxxflags))
	} else {
		cflags = joinFlags(defaultCompilerFlags, cflags)
		cxxflags = joinFlags(defaultCompilerFlags, cxxflags)
	}
	ldflags := joinFlags(opts.LDFlags, requiredLinkerFlags)
	env := opts.BaseEnv[:len(opts.BaseEnv):len(opts.BaseEnv)]
	return append(env,
		"CFLAGS="+cflags,
		"CXXFLAGS="+cxxflags,
		"LDFLAGS="+ldflags)
}

func joinFlags(flags ...string) string {
	nonEmpty := make([]string, 0, len(flags))
	for _, f := range flags {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// stripOptimization removes -O<level> tokens so that a user -O2 cannot win
// against the debug -O0 (the compiler honors the last -O flag it sees).
func stripOptimization(flags string) string {
	var kept []string
	for _, tok := range strings.Fields(flags) {
		if strings.HasPrefix(tok, "-O") && tok != "-O0" {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}
