// Package build implements the per-package build pipeline: remove stale
// artifacts of previous versions, patch the extracted sources, then run the
// package's configure/make/make install sequence. The pipeline is strictly
// sequential and aborts at the first failing stage.
package build

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/scidist/scidist/internal/manifest"
	"github.com/scidist/scidist/internal/recipe"
	"github.com/scidist/scidist/internal/trace"
)

// Stage is one discrete step of the build pipeline.
type Stage int

const (
	Cleaning Stage = iota
	Patching
	Configuring
	Building
	Installing
)

func (s Stage) String() string {
	switch s {
	case Cleaning:
		return "cleaning"
	case Patching:
		return "patching"
	case Configuring:
		return "configuring"
	case Building:
		return "building"
	case Installing:
		return "installing"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Error is the absorbing failure state of the pipeline: it tags the
// underlying error with the stage at which the pipeline halted. Stages after
// the failed one are never attempted.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// StageError reports a configure/make/make install invocation which exited
// non-zero.
type StageError struct {
	Stage    Stage
	Argv     []string
	ExitCode int
	Output   string // tail of the tool's combined output
}

func (e *StageError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%v: exit status %d", e.Argv, e.ExitCode)
	}
	return fmt.Sprintf("%v: exit status %d\n%s", e.Argv, e.ExitCode, e.Output)
}

// Options is the process-wide build configuration, derived once from the
// environment at startup and threaded explicitly into every stage.
type Options struct {
	// Debug disables optimization altogether in favor of debuggable
	// binaries.
	Debug bool

	// Jobs bounds the parallelism requested from make.
	Jobs int

	// GOOS selects platform-specific behavior, currently the shared library
	// extensions of the stale artifact naming convention.
	GOOS string

	// FlintPrefix overrides the location of the FLINT installation; empty
	// means the configure script's default search path.
	FlintPrefix string

	// User-supplied flags, extended (not replaced) by the defaults.
	CFlags   string
	CXXFlags string
	LDFlags  string

	// BaseEnv is the process environment the composed variables are appended
	// to, typically os.Environ().
	BaseEnv []string
}

// Ctx is a build context: it contains state about one package build.
type Ctx struct {
	Pkg       string // e.g. eclib
	Version   string // e.g. 20231212
	Recipe    *recipe.Recipe
	WorkDir   string // per-package work area, e.g. ~/scidist/build/eclib
	SourceDir string // extracted source tree, e.g. ~/scidist/build/eclib/eclib-20231212
	BuildDir  string // out-of-tree build directory; equals SourceDir for in-tree builds
	Prefix    string // installation prefix, e.g. ~/scidist/local
	Opts      Options

	// Make is the make implementation to invoke. BSDs may want gmake.
	Make string

	// DebugShell starts an interactive shell in the build directory when a
	// stage fails and stdin is a terminal.
	DebugShell bool
}

// NewCtx derives the build directory layout for the recipe's package from
// the per-package work area.
func NewCtx(r *recipe.Recipe, workDir, prefix string, opts Options) *Ctx {
	b := &Ctx{
		Pkg:       r.Name,
		Version:   r.Version,
		Recipe:    r,
		WorkDir:   workDir,
		SourceDir: filepath.Join(workDir, r.Name+"-"+r.Version),
		Prefix:    prefix,
		Opts:      opts,
		Make:      "make",
	}
	if r.InTree {
		b.BuildDir = b.SourceDir
	} else {
		b.BuildDir = filepath.Join(workDir, "build-"+r.Version)
	}
	return b
}

// LogPath returns where the build log for this package version is stored.
func (b *Ctx) LogPath() string {
	return filepath.Join(b.WorkDir, "build-"+b.Version+".log")
}

// Build runs the pipeline to completion, or up to and including its first
// failing stage. All build tool output is written to buildLog in addition to
// stdout/stderr. On success it returns the manifest of installed files,
// which has also been written under the prefix.
func (b *Ctx) Build(ctx context.Context, buildLog io.Writer) (*manifest.Manifest, error) {
	env := Compose(b.Opts)
	stages := []struct {
		stage Stage
		fn    func(context.Context, []string, io.Writer) error
	}{
		{Cleaning, b.clean},
		{Patching, b.patch},
		{Configuring, b.configure},
		{Building, b.compile},
		{Installing, b.install},
	}
	for _, st := range stages {
		ev := trace.Event(st.stage.String()+" "+b.Pkg, 0)
		err := st.fn(ctx, env, buildLog)
		ev.Done()
		if err != nil {
			return nil, &Error{Stage: st.stage, Err: err}
		}
	}
	return b.writeManifest()
}

func (b *Ctx) configure(ctx context.Context, env []string, buildLog io.Writer) error {
	if err := os.MkdirAll(b.BuildDir, 0755); err != nil {
		return err
	}
	vars := map[string]string{
		"prefix": b.Prefix,
		"flint":  b.Opts.FlintPrefix,
	}
	argv := append([]string{
		filepath.Join(b.SourceDir, "configure"),
		"--prefix=" + b.Prefix,
	}, b.Recipe.ConfigureArgs(vars)...)
	return b.runStage(ctx, Configuring, argv, env, buildLog)
}

func (b *Ctx) compile(ctx context.Context, env []string, buildLog io.Writer) error {
	argv := []string{b.Make, "-j" + strconv.Itoa(b.Opts.Jobs), "V=1"}
	return b.runStage(ctx, Building, argv, env, buildLog)
}

func (b *Ctx) install(ctx context.Context, env []string, buildLog io.Writer) error {
	if err := os.MkdirAll(b.Prefix, 0755); err != nil {
		return err
	}
	// Catch an unwritable prefix before make install scatters a partial
	// installation.
	if err := unix.Access(b.Prefix, unix.W_OK); err != nil {
		return xerrors.Errorf("prefix %s not writable: %v", b.Prefix, err)
	}
	jobs := b.Opts.Jobs
	if b.Recipe.SerialInstall {
		log.Printf("%s: installing with -j1 (install races on shared targets)", b.Pkg)
		jobs = 1
	}
	argv := []string{b.Make, "install", "-j" + strconv.Itoa(jobs)}
	return b.runStage(ctx, Installing, argv, env, buildLog)
}

// tailBuffer keeps the last max bytes written to it, for inclusion in error
// messages without retaining the whole build output.
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (b *Ctx) runStage(ctx context.Context, stage Stage, argv, env []string, buildLog io.Writer) error {
	tail := &tailBuffer{max: 4096}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = b.BuildDir
	cmd.Env = env
	cmd.Stdin = os.Stdin // for interactive debugging
	cmd.Stdout = io.MultiWriter(os.Stdout, buildLog, tail)
	cmd.Stderr = io.MultiWriter(os.Stderr, buildLog, tail)
	log.Printf("%s %s: %v", stage, b.Pkg, cmd.Args)
	if err := cmd.Run(); err != nil {
		exitCode := -1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		b.maybeDebugShell(stage, env, err)
		return &StageError{
			Stage:    stage,
			Argv:     argv,
			ExitCode: exitCode,
			Output:   string(tail.buf),
		}
	}
	return nil
}

// maybeDebugShell drops the user into an interactive shell in the build
// directory so that a failed stage can be inspected in place. The shell gets
// the same environment the failed tool saw.
func (b *Ctx) maybeDebugShell(stage Stage, env []string, err error) {
	if !b.DebugShell || !isatty.IsTerminal(os.Stdin.Fd()) {
		return
	}
	log.Printf("%s %s failed (%v), starting debug shell in %s", stage, b.Pkg, err, b.BuildDir)
	shell := exec.Command("bash", "-i")
	shell.Dir = b.BuildDir
	shell.Env = env
	shell.Stdin = os.Stdin
	shell.Stdout = os.Stdout
	shell.Stderr = os.Stderr
	if err := shell.Run(); err != nil {
		log.Printf("debug shell: %v", err)
	}
}

func (b *Ctx) writeManifest() (*manifest.Manifest, error) {
	m := &manifest.Manifest{
		Name:    b.Pkg,
		Version: b.Version,
		Prefix:  b.Prefix,
		BuiltAt: time.Now(),
	}
	ts := b.Recipe.Targets(b.Prefix, b.Opts.GOOS)
	for _, pattern := range ts.Globs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		m.Files = append(m.Files, matches...)
	}
	for _, dir := range ts.Dirs {
		if _, err := os.Stat(dir); err == nil {
			m.Files = append(m.Files, dir)
		}
	}
	sort.Strings(m.Files)
	if err := m.Write(b.Prefix); err != nil {
		return nil, xerrors.Errorf("writing manifest: %v", err)
	}
	return m, nil
}
