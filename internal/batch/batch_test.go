package batch

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/xerrors"

	"github.com/scidist/scidist/internal/env"
	"github.com/scidist/scidist/internal/manifest"
	"github.com/scidist/scidist/internal/recipe"
	"github.com/scidist/scidist/internal/scidisttest"
	"github.com/scidist/scidist/internal/trace"
)

func writeRecipe(t *testing.T, root env.Root, name string, deps ...string) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "name = %q\n", name)
	fmt.Fprintf(&b, "version = %q\n", "1.0")
	fmt.Fprintf(&b, "source = %q\n", "https://example.net/"+name+"-1.0.tar.gz")
	if len(deps) > 0 {
		fmt.Fprintf(&b, "deps = [")
		for i, d := range deps {
			if i > 0 {
				fmt.Fprintf(&b, ", ")
			}
			fmt.Fprintf(&b, "%q", d)
		}
		fmt.Fprintf(&b, "]\n")
	}
	scidisttest.WriteFile(t, root.RecipePath(name), b.String(), 0644)
}

// recordingBuilder records the order in which packages were built and writes
// their manifests, like a real install would.
type recordingBuilder struct {
	prefix string
	fail   map[string]bool

	mu    sync.Mutex
	order []string
}

func (rb *recordingBuilder) build(_ context.Context, r *recipe.Recipe) error {
	rb.mu.Lock()
	rb.order = append(rb.order, r.Name)
	rb.mu.Unlock()
	if rb.fail[r.Name] {
		return xerrors.Errorf("intentionally failed")
	}
	m := &manifest.Manifest{Name: r.Name, Version: r.Version, Prefix: rb.prefix}
	return m.Write(rb.prefix)
}

func batchCtx(t *testing.T, fail map[string]bool) (*Ctx, *recordingBuilder) {
	t.Helper()
	root := env.Root(t.TempDir())
	writeRecipe(t, root, "ntl")
	writeRecipe(t, root, "pari", "ntl")
	writeRecipe(t, root, "eclib", "pari", "ntl")
	rb := &recordingBuilder{prefix: root.DefaultPrefix(), fail: fail}
	return &Ctx{
		Log:       log.New(ioutil.Discard, "", 0),
		Root:      root,
		Prefix:    root.DefaultPrefix(),
		BuildFunc: rb.build,
	}, rb
}

func TestBatchDependencyOrder(t *testing.T) {
	c, rb := batchCtx(t, nil)
	if err := c.Build(context.Background(), false, 2); err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []string{"ntl", "pari", "eclib"}
	if diff := cmp.Diff(want, rb.order); diff != "" {
		t.Fatalf("build order: diff (-want +got):\n%s", diff)
	}
}

func TestBatchSkipsCurrent(t *testing.T) {
	c, rb := batchCtx(t, nil)
	if err := c.Build(context.Background(), false, 2); err != nil {
		t.Fatal(err)
	}
	rb.order = nil
	// All manifests are current now, so nothing is rebuilt.
	if err := c.Build(context.Background(), false, 2); err != nil {
		t.Fatal(err)
	}
	if len(rb.order) != 0 {
		t.Errorf("rebuilt up-to-date packages: %v", rb.order)
	}

	c.Rebuild = true
	if err := c.Build(context.Background(), false, 2); err != nil {
		t.Fatal(err)
	}
	if len(rb.order) != 3 {
		t.Errorf("rebuild built %v, want all 3 packages", rb.order)
	}
}

func TestBatchFailurePropagates(t *testing.T) {
	c, rb := batchCtx(t, map[string]bool{"pari": true})
	err := c.Build(context.Background(), false, 2)
	if err == nil {
		t.Fatal("Build succeeded despite failing package")
	}
	// eclib depends on the failed pari and must never have been attempted.
	for _, pkg := range rb.order {
		if pkg == "eclib" {
			t.Errorf("eclib was built despite failed dependency")
		}
	}
	if got := err.Error(); !strings.Contains(got, "pari") || !strings.Contains(got, "eclib") {
		t.Errorf("Build error = %q, want both pari and eclib listed", got)
	}
	// ntl does not depend on pari, so its build proceeds.
	if _, err := manifest.Read(c.Prefix, "ntl"); err != nil {
		t.Errorf("ntl manifest: %v", err)
	}
}

func TestBatchTraceEvents(t *testing.T) {
	var buf bytes.Buffer
	trace.Sink(&buf)

	c, _ := batchCtx(t, nil)
	if err := c.Build(context.Background(), false, 2); err != nil {
		t.Fatal(err)
	}
	for _, pkg := range []string{"ntl", "pari", "eclib"} {
		if want := `"name":"build ` + pkg + `"`; !strings.Contains(buf.String(), want) {
			t.Errorf("trace output lacks %s, got:\n%s", want, buf.String())
		}
	}
}

func TestBatchDryRun(t *testing.T) {
	c, rb := batchCtx(t, nil)
	if err := c.Build(context.Background(), true, 2); err != nil {
		t.Fatal(err)
	}
	if len(rb.order) != 0 {
		t.Errorf("dry run built packages: %v", rb.order)
	}
}
